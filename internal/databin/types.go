package databin

import (
	"cromp/pkg/protocol"
	"sync"
	"sync/atomic"
	"time"
)

// One stored message awaiting pickup
type Item struct {
	Message protocol.Infoton
	ID      protocol.RequestID
	Added   time.Time
	size    int
}

// Insertion ordered items for one entity
type basket struct {
	items []Item
	bytes int
}

// Per-entity bounded, time decaying store of pending messages
type Bin struct {
	Namespace    []string
	mu           sync.Mutex
	baskets      map[protocol.Entity]*basket // never holds an empty basket
	maxPerEntity int
	items        int
	bytes        int
	Metrics      *MetricStorage
}

type MetricStorage struct {
	Added    atomic.Uint64 // Items accepted
	Rejected atomic.Uint64 // Items refused for exceeding the entity budget
	Acquired atomic.Uint64 // Items removed by pickup
	Decayed  atomic.Uint64 // Items removed by deadwood cleaning
}
