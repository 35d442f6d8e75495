package databin

import (
	"cromp/pkg/protocol"
	"strings"
	"testing"
	"time"
)

func testEntity(host string) (ent protocol.Entity) {
	ent = protocol.Entity{Hostname: host, ProcessID: 10, Sequencer: 20, Salt: 30}
	return
}

func testBlob(size int) (msg *protocol.Blob) {
	msg = protocol.NewBlob(protocol.NewClassifier("test", "data"), make([]byte, size))
	return
}

func TestAddItem(t *testing.T) {
	tests := []struct {
		name      string
		budget    int
		sizes     []int
		wantAdded []bool
		wantItems int
	}{
		{
			name:      "Single item fits",
			budget:    1024,
			sizes:     []int{100},
			wantAdded: []bool{true},
			wantItems: 1,
		},
		{
			name:      "Second item exceeds budget",
			budget:    300,
			sizes:     []int{100, 200},
			wantAdded: []bool{true, false},
			wantItems: 1,
		},
		{
			name:      "Later smaller item still fits",
			budget:    300,
			sizes:     []int{100, 250, 50},
			wantAdded: []bool{true, false, true},
			wantItems: 2,
		},
		{
			name:      "First item larger than budget",
			budget:    64,
			sizes:     []int{500},
			wantAdded: []bool{false},
			wantItems: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := New([]string{"test"}, tt.budget)
			ent := testEntity("alpha")

			for i, size := range tt.sizes {
				id := protocol.RequestID{Entity: ent, Sequence: uint32(i + 1)}
				added := bin.AddItem(testBlob(size), id)
				if added != tt.wantAdded[i] {
					t.Errorf("item %d: expected added=%v, got %v", i, tt.wantAdded[i], added)
				}
			}

			items, bytes := bin.Sizes()
			if items != tt.wantItems {
				t.Errorf("expected %d items, got %d", tt.wantItems, items)
			}
			if bytes > tt.budget {
				t.Errorf("held bytes %d exceed budget %d", bytes, tt.budget)
			}
			if tt.wantItems == 0 && len(bin.Entities()) != 0 {
				t.Errorf("expected no entities after rejected adds")
			}
		})
	}
}

func TestAcquireForIdentifier(t *testing.T) {
	bin := New([]string{"test"}, 0)
	ent := testEntity("alpha")

	first := protocol.RequestID{Entity: ent, Sequence: 1}
	second := protocol.RequestID{Entity: ent, Sequence: 2}
	bin.AddItem(testBlob(10), first)
	bin.AddItem(testBlob(20), second)

	item, found := bin.AcquireForIdentifier(second)
	if !found {
		t.Fatalf("expected to find second item")
	}
	if item.ID != second {
		t.Errorf("expected id %s, got %s", second, item.ID)
	}

	_, found = bin.AcquireForIdentifier(second)
	if found {
		t.Errorf("expected second item to be gone after acquire")
	}

	_, found = bin.AcquireForIdentifier(protocol.RequestID{Entity: testEntity("other"), Sequence: 1})
	if found {
		t.Errorf("expected no item for unknown entity")
	}

	_, found = bin.AcquireForIdentifier(first)
	if !found {
		t.Fatalf("expected to find first item")
	}
	if len(bin.Entities()) != 0 {
		t.Errorf("expected empty basket to be removed")
	}
}

func TestAcquireForEntity(t *testing.T) {
	tests := []struct {
		name      string
		sizes     []int
		budget    int
		wantCount int
	}{
		{
			name:      "Budget covers all",
			sizes:     []int{10, 10, 10},
			budget:    4096,
			wantCount: 3,
		},
		{
			name:      "Budget smaller than one item still yields one",
			sizes:     []int{500, 500},
			budget:    1,
			wantCount: 1,
		},
		{
			name:      "Default budget",
			sizes:     []int{8 * 1024, 8 * 1024, 8 * 1024, 8 * 1024},
			budget:    0,
			wantCount: 3,
		},
		{
			name:      "Nothing held",
			sizes:     nil,
			budget:    100,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := New([]string{"test"}, 0)
			ent := testEntity("alpha")
			for i, size := range tt.sizes {
				bin.AddItem(testBlob(size), protocol.RequestID{Entity: ent, Sequence: uint32(i + 1)})
			}

			items := bin.AcquireForEntity(ent, tt.budget)
			if len(items) != tt.wantCount {
				t.Fatalf("expected %d items, got %d", tt.wantCount, len(items))
			}
			for i, item := range items {
				if item.ID.Sequence != uint32(i+1) {
					t.Errorf("expected insertion order, item %d has sequence %d", i, item.ID.Sequence)
				}
			}
			if bin.ItemsHeld() != len(tt.sizes)-tt.wantCount {
				t.Errorf("expected %d remaining, got %d", len(tt.sizes)-tt.wantCount, bin.ItemsHeld())
			}
		})
	}
}

func TestAcquireForAny(t *testing.T) {
	bin := New([]string{"test"}, 0)

	_, found := bin.AcquireForAny()
	if found {
		t.Fatalf("expected nothing from empty bin")
	}

	id := protocol.RequestID{Entity: testEntity("alpha"), Sequence: 7}
	bin.AddItem(testBlob(5), id)

	item, found := bin.AcquireForAny()
	if !found || item.ID != id {
		t.Fatalf("expected item %s, got found=%v id=%s", id, found, item.ID)
	}
	if bin.ItemsHeld() != 0 {
		t.Errorf("expected empty bin")
	}
}

func TestCleanOutDeadwood(t *testing.T) {
	bin := New([]string{"test"}, 0)
	stale := testEntity("stale")
	mixed := testEntity("mixed")

	bin.AddItem(testBlob(10), protocol.RequestID{Entity: stale, Sequence: 1})
	bin.AddItem(testBlob(10), protocol.RequestID{Entity: mixed, Sequence: 1})

	// Age the existing items
	bin.mu.Lock()
	for _, bask := range bin.baskets {
		for i := range bask.items {
			bask.items[i].Added = time.Now().Add(-time.Minute)
		}
	}
	bin.mu.Unlock()

	bin.AddItem(testBlob(10), protocol.RequestID{Entity: mixed, Sequence: 2})

	removed := bin.CleanOutDeadwood(30 * time.Second)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	entities := bin.Entities()
	if len(entities) != 1 || entities[0] != mixed {
		t.Fatalf("expected only mixed entity to remain, got %v", entities)
	}

	items := bin.AcquireForEntity(mixed, 0)
	if len(items) != 1 || items[0].ID.Sequence != 2 {
		t.Errorf("expected fresh item to survive")
	}

	_, bytes := bin.Sizes()
	if bytes != 0 {
		t.Errorf("expected zero bytes held, got %d", bytes)
	}
}

func TestDrain(t *testing.T) {
	bin := New([]string{"test"}, 0)
	ent := testEntity("alpha")
	for i := 1; i <= 3; i++ {
		bin.AddItem(testBlob(10), protocol.RequestID{Entity: ent, Sequence: uint32(i)})
	}
	bin.AddItem(testBlob(10), protocol.RequestID{Entity: testEntity("beta"), Sequence: 1})

	removed := bin.Drain(ent)
	if removed != 3 {
		t.Errorf("expected 3 drained, got %d", removed)
	}
	if bin.ItemsHeld() != 1 {
		t.Errorf("expected 1 item left, got %d", bin.ItemsHeld())
	}
	if !strings.Contains(bin.String(), "beta") {
		t.Errorf("expected summary to list remaining entity:\n%s", bin.String())
	}
}

func TestCollectMetrics(t *testing.T) {
	bin := New([]string{"test"}, 100)
	ent := testEntity("alpha")
	bin.AddItem(testBlob(10), protocol.RequestID{Entity: ent, Sequence: 1})
	bin.AddItem(testBlob(500), protocol.RequestID{Entity: ent, Sequence: 2})

	collection := bin.CollectMetrics(time.Second)
	values := make(map[string]uint64)
	for _, metric := range collection {
		values[metric.Name] = metric.Value.Raw.(uint64)
	}

	if values["items_held"] != 1 {
		t.Errorf("expected items_held 1, got %d", values["items_held"])
	}
	if values["added"] != 1 || values["rejected"] != 1 {
		t.Errorf("expected one added and one rejected, got %d/%d", values["added"], values["rejected"])
	}

	collection = bin.CollectMetrics(time.Second)
	for _, metric := range collection {
		if metric.Name == "added" && metric.Value.Raw.(uint64) != 0 {
			t.Errorf("expected counters reset after collection")
		}
	}
}
