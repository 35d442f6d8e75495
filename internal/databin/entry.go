// Message store grouping pending items into per-entity baskets with a byte budget per entity
package databin

import (
	"cromp/internal/global"
	"cromp/pkg/protocol"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pbnjay/memory"
)

const (
	DefaultMaxPerEntity int = 14 * 1024 * 1024

	// Batch budget used when the caller does not supply one
	defaultBatchBudget int = 20 * 1024

	// Largest share of physical memory a single entity may hold
	memoryShareDivisor uint64 = 8
)

// Creates new bin. Per-entity budget is clamped to a share of physical memory.
func New(namespace []string, maxPerEntity int) (new *Bin) {
	if maxPerEntity <= 0 {
		maxPerEntity = DefaultMaxPerEntity
	}
	total := memory.TotalMemory()
	if total > 0 && uint64(maxPerEntity) > total/memoryShareDivisor {
		maxPerEntity = int(total / memoryShareDivisor)
	}

	ns := append(append([]string(nil), namespace...), global.NSBin)
	new = &Bin{
		Namespace:    ns,
		baskets:      make(map[protocol.Entity]*basket),
		maxPerEntity: maxPerEntity,
		Metrics:      &MetricStorage{},
	}
	return
}

// Effective byte budget for each entity
func (bin *Bin) MaxPerEntity() (max int) {
	max = bin.maxPerEntity
	return
}

// Stores message under its request id's entity.
// Rejects (leaving the basket untouched) when the entity budget would be exceeded.
func (bin *Bin) AddItem(msg protocol.Infoton, id protocol.RequestID) (added bool) {
	if msg == nil {
		return
	}
	size := msg.PackedSize()

	bin.mu.Lock()
	defer bin.mu.Unlock()

	existing := bin.baskets[id.Entity]
	current := 0
	if existing != nil {
		current = existing.bytes
	}
	if current+size > bin.maxPerEntity {
		bin.Metrics.Rejected.Add(1)
		return
	}

	if existing == nil {
		existing = &basket{}
		bin.baskets[id.Entity] = existing
	}
	existing.items = append(existing.items, Item{
		Message: msg,
		ID:      id,
		Added:   time.Now(),
		size:    size,
	})
	existing.bytes += size
	bin.items++
	bin.bytes += size

	bin.Metrics.Added.Add(1)
	added = true
	return
}

// Removes item at index from the entity's basket, deleting the basket when it empties.
// Caller holds the lock.
func (bin *Bin) takeLocked(ent protocol.Entity, bask *basket, index int) (item Item) {
	item = bask.items[index]
	bask.items = append(bask.items[:index], bask.items[index+1:]...)
	bask.bytes -= item.size
	bin.items--
	bin.bytes -= item.size
	if len(bask.items) == 0 {
		delete(bin.baskets, ent)
	}
	bin.Metrics.Acquired.Add(1)
	return
}

// Removes and returns the item stored for exactly this request id
func (bin *Bin) AcquireForIdentifier(id protocol.RequestID) (item Item, found bool) {
	bin.mu.Lock()
	defer bin.mu.Unlock()

	bask := bin.baskets[id.Entity]
	if bask == nil {
		return
	}
	for i := range bask.items {
		if bask.items[i].ID == id {
			item = bin.takeLocked(id.Entity, bask, i)
			found = true
			return
		}
	}
	return
}

// Removes and returns the oldest item of any entity holding data
func (bin *Bin) AcquireForAny() (item Item, found bool) {
	bin.mu.Lock()
	defer bin.mu.Unlock()

	for ent, bask := range bin.baskets {
		item = bin.takeLocked(ent, bask, 0)
		found = true
		return
	}
	return
}

// Removes a batch of the entity's oldest items while the byte budget lasts.
// At least one item is returned when any is held. Non-positive budget uses the default.
func (bin *Bin) AcquireForEntity(ent protocol.Entity, budget int) (items []Item) {
	if budget <= 0 {
		budget = defaultBatchBudget
	}

	bin.mu.Lock()
	defer bin.mu.Unlock()

	for budget > 0 {
		bask := bin.baskets[ent]
		if bask == nil {
			return
		}
		item := bin.takeLocked(ent, bask, 0)
		items = append(items, item)
		budget -= item.size
	}
	return
}

// Discards everything held for the entity, returning count removed
func (bin *Bin) Drain(ent protocol.Entity) (removed int) {
	bin.mu.Lock()
	defer bin.mu.Unlock()

	bask := bin.baskets[ent]
	if bask == nil {
		return
	}
	removed = len(bask.items)
	bin.items -= removed
	bin.bytes -= bask.bytes
	delete(bin.baskets, ent)
	return
}

// Removes items older than decay. Baskets are insertion ordered, so each scan
// stops at the first item still inside the interval.
func (bin *Bin) CleanOutDeadwood(decay time.Duration) (removed int) {
	cutoff := time.Now().Add(-decay)

	bin.mu.Lock()
	defer bin.mu.Unlock()

	for ent, bask := range bin.baskets {
		expired := 0
		for expired < len(bask.items) && bask.items[expired].Added.Before(cutoff) {
			bask.bytes -= bask.items[expired].size
			bin.bytes -= bask.items[expired].size
			expired++
		}
		if expired == 0 {
			continue
		}
		bask.items = append([]Item(nil), bask.items[expired:]...)
		bin.items -= expired
		removed += expired
		if len(bask.items) == 0 {
			delete(bin.baskets, ent)
		}
	}
	bin.Metrics.Decayed.Add(uint64(removed))
	return
}

// Count and byte sum of everything held
func (bin *Bin) Sizes() (items int, bytes int) {
	bin.mu.Lock()
	defer bin.mu.Unlock()
	items = bin.items
	bytes = bin.bytes
	return
}

func (bin *Bin) ItemsHeld() (items int) {
	items, _ = bin.Sizes()
	return
}

// Entities currently holding data
func (bin *Bin) Entities() (entities []protocol.Entity) {
	bin.mu.Lock()
	defer bin.mu.Unlock()

	entities = make([]protocol.Entity, 0, len(bin.baskets))
	for ent := range bin.baskets {
		entities = append(entities, ent)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].String() < entities[j].String()
	})
	return
}

// Human readable summary of held data per entity
func (bin *Bin) String() string {
	entities := bin.Entities()

	bin.mu.Lock()
	defer bin.mu.Unlock()

	var lines []string
	lines = append(lines, fmt.Sprintf("%d items, %d bytes, %d entities", bin.items, bin.bytes, len(bin.baskets)))
	for _, ent := range entities {
		bask := bin.baskets[ent]
		if bask == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %d items, %d bytes", ent, len(bask.items), bask.bytes))
	}
	return strings.Join(lines, "\n")
}
