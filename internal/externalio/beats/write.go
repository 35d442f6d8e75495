package beats

import (
	"context"
	"cromp/internal/audit"
	"cromp/internal/global"
	"os"
)

// Sends one audit event to the configured beats server
func (mod *OutModule) Write(ctx context.Context, event audit.Event) (eventsSent int, err error) {
	if mod == nil {
		return
	}

	fields := map[string]interface{}{
		// Minimum required fields
		"@timestamp": event.Timestamp,
		"message":    event.Action + " " + event.Entity.String() + ": " + event.Result.String(),

		"event": map[string]interface{}{
			"action":  event.Action,
			"outcome": event.Result.String(),
			"reason":  event.Detail,
		},
		"source": map[string]interface{}{
			"address": event.Remote,
		},
		"user": map[string]interface{}{
			"name": event.Entity.String(),
			"id":   event.Entity.Sequencer,
		},
		"host": map[string]interface{}{
			"name":     global.Hostname,
			"hostname": global.Hostname,
		},
		"agent": map[string]interface{}{
			"name":    global.Hostname,
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"type":    "auditbeat",
			"pid":     os.Getpid(),
		},
		"process": map[string]interface{}{
			"pid": event.Entity.ProcessID,
		},
	}
	events := []interface{}{fields}

	mod.mu.Lock()
	defer mod.mu.Unlock()
	if mod.sink == nil {
		// Shut down
		return
	}
	eventsSent, err = mod.sink.Send(events)
	return
}
