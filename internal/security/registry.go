// Entity admission: who may use the server after identifying
package security

import (
	"crypto/subtle"
	"cromp/pkg/protocol"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Policy deciding which entities are logged in
type EntityRegistry interface {
	Authorized(ent protocol.Entity) bool
	Locate(ent protocol.Entity) (lastActive time.Time, verification []byte, found bool)
	// Succeeds for entities already present. Empty verification keeps the stored one.
	Add(ent protocol.Entity, verification []byte) bool
	Refresh(ent protocol.Entity) bool
	Zap(ent protocol.Entity) bool
	String() string
}

// Admits everyone and remembers nothing
type BlankRegistry struct{}

func (BlankRegistry) Authorized(ent protocol.Entity) bool { return true }
func (BlankRegistry) Locate(ent protocol.Entity) (lastActive time.Time, verification []byte, found bool) {
	return
}
func (BlankRegistry) Add(ent protocol.Entity, verification []byte) bool { return true }
func (BlankRegistry) Refresh(ent protocol.Entity) bool                  { return true }
func (BlankRegistry) Zap(ent protocol.Entity) bool                      { return true }
func (BlankRegistry) String() string                                    { return "blank registry" }

type record struct {
	lastActive   time.Time
	verification []byte
}

// Admits any entity that logs in, until it logs out or is zapped
type SimpleRegistry struct {
	mu       sync.Mutex
	entities map[protocol.Entity]*record
}

func NewSimpleRegistry() (new *SimpleRegistry) {
	new = &SimpleRegistry{entities: make(map[protocol.Entity]*record)}
	return
}

func (registry *SimpleRegistry) Authorized(ent protocol.Entity) (authorized bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	_, authorized = registry.entities[ent]
	return
}

func (registry *SimpleRegistry) Locate(ent protocol.Entity) (lastActive time.Time, verification []byte, found bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	existing, found := registry.entities[ent]
	if !found {
		return
	}
	lastActive = existing.lastActive
	verification = append([]byte(nil), existing.verification...)
	return
}

func (registry *SimpleRegistry) Add(ent protocol.Entity, verification []byte) (added bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	existing, found := registry.entities[ent]
	if !found {
		existing = &record{}
		registry.entities[ent] = existing
	}
	existing.lastActive = time.Now()
	if len(verification) > 0 || !found {
		existing.verification = append([]byte(nil), verification...)
	}
	added = true
	return
}

func (registry *SimpleRegistry) Refresh(ent protocol.Entity) (refreshed bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	existing, refreshed := registry.entities[ent]
	if !refreshed {
		return
	}
	existing.lastActive = time.Now()
	return
}

func (registry *SimpleRegistry) Zap(ent protocol.Entity) (zapped bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	_, zapped = registry.entities[ent]
	delete(registry.entities, ent)
	return
}

// Removes entities idle longer than dormancy, returning how many were removed
func (registry *SimpleRegistry) Prune(dormancy time.Duration) (removed int) {
	cutoff := time.Now().Add(-dormancy)
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for ent, existing := range registry.entities {
		if existing.lastActive.Before(cutoff) {
			delete(registry.entities, ent)
			removed++
		}
	}
	return
}

func (registry *SimpleRegistry) Count() (count int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	count = len(registry.entities)
	return
}

func (registry *SimpleRegistry) String() string {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	lines := make([]string, 0, len(registry.entities))
	for ent, existing := range registry.entities {
		lines = append(lines, fmt.Sprintf("ent=%s, active=%s, %d veribytes",
			ent, existing.lastActive.Format(time.RFC3339), len(existing.verification)))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Simple registry that only admits entities presenting the configured token
type TokenRegistry struct {
	*SimpleRegistry
	token []byte
}

func NewTokenRegistry(token []byte) (new *TokenRegistry) {
	new = &TokenRegistry{
		SimpleRegistry: NewSimpleRegistry(),
		token:          append([]byte(nil), token...),
	}
	return
}

func (registry *TokenRegistry) Add(ent protocol.Entity, verification []byte) (added bool) {
	if len(verification) == 0 {
		// Already admitted entities may refresh without resending the token
		added = registry.SimpleRegistry.Refresh(ent)
		return
	}
	if subtle.ConstantTimeCompare(verification, registry.token) != 1 {
		return
	}
	added = registry.SimpleRegistry.Add(ent, verification)
	return
}
