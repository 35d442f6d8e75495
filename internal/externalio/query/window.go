package query

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default look back when no start time is given
const defaultSpan time.Duration = time.Minute

// Reads starttime and endtime. Each accepts RFC3339, "now", or a duration relative to now such as -5m.
func parseWindow(form url.Values, now time.Time) (selected window, err error) {
	selected.start, err = parseInstant(form.Get("starttime"), now, now.Add(-defaultSpan))
	if err != nil {
		err = fmt.Errorf("starttime: %w", err)
		return
	}
	selected.end, err = parseInstant(form.Get("endtime"), now, now)
	if err != nil {
		err = fmt.Errorf("endtime: %w", err)
		return
	}
	if selected.end.Before(selected.start) {
		err = fmt.Errorf("endtime %s is before starttime %s",
			selected.end.Format(time.RFC3339), selected.start.Format(time.RFC3339))
	}
	return
}

func parseInstant(raw string, now, fallback time.Time) (instant time.Time, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		instant = fallback
	case raw == "now":
		instant = now
	case raw[0] == '-' || raw[0] == '+':
		var offset time.Duration
		offset, err = time.ParseDuration(raw)
		if err != nil {
			err = fmt.Errorf("invalid relative time %q", raw)
			return
		}
		instant = now.Add(offset)
	default:
		instant, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			err = fmt.Errorf("invalid time %q, want RFC3339 or a relative duration", raw)
		}
	}
	return
}

// Splits the path remainder into a namespace prefix; empty selects everything
func namespaceOf(remainder string) (prefix []string) {
	remainder = strings.Trim(remainder, "/")
	if remainder == "" {
		return
	}
	prefix = strings.Split(remainder, "/")
	return
}
