// Security relevant events about connected entities, shared by the server and its audit outputs
package audit

import (
	"cromp/pkg/protocol"
	"time"
)

// Audit actions
const (
	ActionLogin         string = "login"
	ActionLogout        string = "logout"
	ActionRefresh       string = "refresh"
	ActionFixationClash string = "fixation-clash"
	ActionDropped       string = "client-dropped"
)

// One security relevant event about a connected entity
type Event struct {
	Timestamp time.Time
	Action    string
	Entity    protocol.Entity
	Remote    string // peer address, when known
	Result    protocol.Outcome
	Detail    string
}

// Copy of the event timestamped now unless it already carries a time
func (event Event) Stamped() (stamped Event) {
	stamped = event
	if stamped.Timestamp.IsZero() {
		stamped.Timestamp = time.Now()
	}
	return
}

// Refusals and failures as opposed to routine events
func (event Event) Refused() bool {
	return event.Result != protocol.OK
}
