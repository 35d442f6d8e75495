package journald

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Longest response body quoted in errors
const maxErrorBody = 512

// Posts export formatted entries. Any non-2xx status is an error carrying the start of the body.
func (mod *OutModule) upload(ctx context.Context, entries []byte) (err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, mod.url, bytes.NewReader(entries))
	if err != nil {
		err = fmt.Errorf("failed building upload: %w", err)
		return
	}
	request.Header.Set("Content-Type", "application/vnd.fdo.journal")

	response, err := mod.sink.Do(request)
	if err != nil {
		err = fmt.Errorf("failed upload: %w", err)
		return
	}
	defer response.Body.Close()

	if response.StatusCode/100 == 2 {
		io.Copy(io.Discard, response.Body)
		return
	}

	err = fmt.Errorf("upload answered %q", response.Status)
	detail, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if text := strings.TrimSpace(string(detail)); text != "" {
		err = fmt.Errorf("%w: %s", err, text)
	}
	return
}
