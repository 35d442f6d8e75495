package logctx

import (
	"cromp/internal/global"
	"fmt"
	"io"
	"strings"
	"time"
)

// Blocks until every watcher of logger has drained and exited
func (logger *Logger) Wait() {
	logger.watchers.Wait()
}

// Rouses waiting watchers so they notice Done
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	logger.arrived.Broadcast()
	logger.mutex.Unlock()
}

// Waits for the oldest pending event. Returns false once Done is closed and nothing is pending.
func (logger *Logger) next() (event Event, ok bool) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	for len(logger.pending) == 0 {
		select {
		case <-logger.Done:
			return
		default:
		}
		logger.arrived.Wait()
	}

	event = logger.pending[0]
	logger.pending[0] = Event{}
	logger.pending = logger.pending[1:]
	ok = true
	return
}

// Writes events to output until logger.Done closes, one line each
func StartWatcher(logger *Logger, output io.Writer) {
	logger.watchers.Add(1)
	go func() {
		defer logger.watchers.Done()

		var dedup dedupState
		for {
			event, ok := logger.next()
			if !ok {
				return
			}

			summary, skip := dedup.admit(event, time.Now())
			if summary != "" {
				io.WriteString(output, summary)
			}
			if skip {
				continue
			}

			line := event.Format()
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			io.WriteString(output, line)
		}
	}()
}

// Decides whether event repeats the previous message closely enough to be dropped.
// Every dedupMinRepeats drops, at most once per cooldown, a summary line is returned.
func (dedup *dedupState) admit(event Event, now time.Time) (summary string, skip bool) {
	repeated := event.Message != "" &&
		event.Message == dedup.lastMsg &&
		now.Sub(event.Timestamp) <= dedupWindow
	if !repeated {
		dedup.lastMsg = event.Message
		dedup.repeatCount = 1
		return
	}

	skip = true
	dedup.repeatCount++
	if dedup.repeatCount < dedupMinRepeats || now.Sub(dedup.lastSuppressTime) < suppressCooldown {
		return
	}

	summary = fmt.Sprintf("[%s] [%s] [%s] Suppressed %d repeated messages: %s",
		stamp(event.Timestamp), strings.Join(event.Tags, "/"), global.InfoLog,
		dedup.repeatCount, strings.TrimSuffix(dedup.lastMsg, "\n"))
	summary += "\n"
	dedup.lastSuppressTime = now
	dedup.repeatCount = 0
	return
}
