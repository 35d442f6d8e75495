package logctx

import (
	"strings"
	"time"
)

// RFC3339 with nanoseconds always printed in full so lines align
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Bracketed stamp, tag path and severity followed by the message; absent parts are omitted
func (event Event) Format() (text string) {
	var line strings.Builder
	bracket := func(part string) {
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteByte('[')
		line.WriteString(part)
		line.WriteByte(']')
	}

	if !event.Timestamp.IsZero() {
		bracket(event.Timestamp.Format(stampLayout))
	}
	if len(event.Tags) > 0 {
		bracket(strings.Join(event.Tags, "/"))
	}
	if event.Severity != "" {
		bracket(event.Severity)
	}
	if event.Message != "" {
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(event.Message)
	}

	text = line.String()
	return
}

func stamp(when time.Time) string {
	return when.Format(stampLayout)
}
