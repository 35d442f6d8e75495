// Audit output to a systemd-journal-remote endpoint in journal export format
package journald

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	bootIDPath   string        = "/proc/sys/kernel/random/boot_id"
	checkTimeout time.Duration = 3 * time.Second
)

// Output posting to endpoint's upload path. Nil module and nil error when endpoint is empty.
// An empty upload is sent first so a dead endpoint fails daemon startup.
func NewOutput(endpoint string) (module *OutModule, err error) {
	if endpoint == "" {
		return
	}

	base, err := url.Parse(endpoint)
	if err != nil {
		err = fmt.Errorf("invalid journald URL: %w", err)
		return
	}

	candidate := &OutModule{
		url:    base.ResolveReference(&url.URL{Path: "upload"}).String(),
		bootID: readBootID(),
		sink: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     time.Minute,
				TLSHandshakeTimeout: 10 * time.Second,
				// journal-remote rejects Expect: 100-continue
				ExpectContinueTimeout: -1,
			},
		},
	}

	checkCtx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err = candidate.upload(checkCtx, nil); err != nil {
		err = fmt.Errorf("journald endpoint %s unusable: %w", candidate.url, err)
		return
	}

	module = candidate
	return
}

// Kernel boot id without dashes, zeros when unreadable
func readBootID() (id string) {
	raw, err := os.ReadFile(bootIDPath)
	if err == nil {
		id = strings.ReplaceAll(strings.TrimSpace(string(raw)), "-", "")
	}
	if id == "" {
		id = strings.Repeat("0", 32)
	}
	return
}

func (mod *OutModule) Shutdown() (err error) {
	if mod == nil {
		return
	}
	mod.sink.CloseIdleConnections()
	return
}
