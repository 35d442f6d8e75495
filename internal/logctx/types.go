package logctx

import (
	"sync"
	"sync/atomic"
	"time"
)

// One line waiting for the watcher
type Event struct {
	Timestamp time.Time
	Severity  string
	Tags      []string
	Message   string
}

// Context-carried event buffer drained by a single watcher
type Logger struct {
	ID   string
	Done <-chan struct{}

	level atomic.Int32

	mutex   sync.Mutex
	arrived *sync.Cond // signalled on every append
	pending []Event

	watchers sync.WaitGroup
}

// Collapses bursts of one message into a periodic summary line
type dedupState struct {
	lastMsg          string
	repeatCount      int
	lastSuppressTime time.Time
}

const (
	dedupWindow      = 5 * time.Second
	dedupMinRepeats  = 10
	suppressCooldown = time.Minute
)
