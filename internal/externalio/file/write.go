package file

import (
	"context"
	"cromp/internal/audit"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Buffers one audit event as a text line. Lines reach the file in batches.
func (mod *OutModule) Write(ctx context.Context, event audit.Event) (linesWritten int, err error) {
	if mod == nil {
		return
	}

	newLine := formatAsText(event)

	mod.mu.Lock()
	defer mod.mu.Unlock()

	mod.batchBuffer = append(mod.batchBuffer, newLine)
	if len(mod.batchBuffer) >= mod.batchSize {
		linesWritten, err = mod.flushLocked()
	}
	return
}

// Timestamp first so batches can be ordered on it
func formatAsText(event audit.Event) (line string) {
	fields := []string{
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		"action=" + event.Action,
		"entity=" + event.Entity.String(),
		"result=" + event.Result.String(),
	}
	if event.Remote != "" {
		fields = append(fields, "remote="+event.Remote)
	}
	if event.Detail != "" {
		fields = append(fields, "detail="+strconv.Quote(event.Detail))
	}
	line = strings.Join(fields, " ") + "\n"
	return
}

// Flushes line buffer to the file
func (mod *OutModule) FlushBuffer() (flushedCnt int, err error) {
	if mod == nil {
		return
	}
	mod.mu.Lock()
	defer mod.mu.Unlock()
	flushedCnt, err = mod.flushLocked()
	return
}

func (mod *OutModule) flushLocked() (flushedCnt int, err error) {
	if len(mod.batchBuffer) == 0 {
		return
	}

	// Oldest first
	sort.SliceStable(mod.batchBuffer, func(i, j int) bool {
		getTime := func(s string) time.Time {
			ts := s
			if idx := strings.IndexByte(s, ' '); idx != -1 {
				ts = s[:idx]
			}
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return time.Time{}
			}
			return t
		}
		return getTime(mod.batchBuffer[i]).Before(getTime(mod.batchBuffer[j]))
	})

	for _, line := range mod.batchBuffer {
		data := []byte(line)
		for len(data) > 0 {
			var n int
			n, err = mod.sink.Write(data)
			if err != nil {
				// Keep what was not written for the next flush
				mod.batchBuffer = mod.batchBuffer[flushedCnt:]
				err = fmt.Errorf("failed writing audit line: %w", err)
				return
			}
			data = data[n:]
		}
		flushedCnt++
	}

	mod.batchBuffer = mod.batchBuffer[:0]
	return
}
