package encryption

import (
	"cromp/internal/crypto"
	"cromp/pkg/protocol"
	"sync"
)

// Session keys per entity
type KeyRepository struct {
	mu   sync.RWMutex
	keys map[protocol.Entity][]byte
}

func NewKeyRepository() (new *KeyRepository) {
	new = &KeyRepository{keys: make(map[protocol.Entity][]byte)}
	return
}

// Stores key for entity, replacing (and zeroing) any previous key
func (repo *KeyRepository) Add(ent protocol.Entity, key []byte) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if old, ok := repo.keys[ent]; ok {
		crypto.Memzero(old)
	}
	repo.keys[ent] = append([]byte(nil), key...)
}

// Copy of the entity's key
func (repo *KeyRepository) Lock(ent protocol.Entity) (key []byte, found bool) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	stored, found := repo.keys[ent]
	if !found {
		return
	}
	key = append([]byte(nil), stored...)
	return
}

// Removes and zeroes the entity's key
func (repo *KeyRepository) Whack(ent protocol.Entity) (removed bool) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	stored, found := repo.keys[ent]
	if !found {
		return
	}
	crypto.Memzero(stored)
	delete(repo.keys, ent)
	removed = true
	return
}

func (repo *KeyRepository) Count() (count int) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	count = len(repo.keys)
	return
}
