package journald

import (
	"bytes"
	"context"
	"cromp/internal/audit"
	"cromp/internal/global"
	"cromp/pkg/protocol"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Writes one audit event to systemd journald
func (mod *OutModule) Write(ctx context.Context, event audit.Event) (entriesWritten int, err error) {
	if mod == nil {
		return
	}

	// Warning for refusals, notice for everything else
	priority := "5"
	if event.Result != protocol.OK {
		priority = "4"
	}

	fields := []field{
		// Required fields
		{key: "__REALTIME_TIMESTAMP", val: strconv.FormatInt(event.Timestamp.UnixMicro(), 10)},
		{key: "_BOOT_ID", val: mod.bootID},
		{key: "MESSAGE", val: event.Action + " " + event.Entity.String() + ": " + event.Result.String()},

		{key: "PRIORITY", val: priority},
		{key: "SYSLOG_IDENTIFIER", val: global.ProgBaseName},
		{key: "SYSLOG_PID", val: strconv.Itoa(global.PID)},
		{key: "HOSTNAME", val: global.Hostname},
		{key: "SYSLOG_TIMESTAMP", val: event.Timestamp.Format(time.RFC3339Nano)},
		{key: "CROMP_ACTION", val: event.Action},
		{key: "CROMP_ENTITY", val: event.Entity.String()},
		{key: "CROMP_REMOTE", val: event.Remote},
		{key: "CROMP_RESULT", val: event.Result.String()},
		{key: "CROMP_DETAIL", val: event.Detail},
	}

	var buf bytes.Buffer
	for _, field := range fields {
		if field.key == "" || field.val == "" {
			continue
		}
		writeField(&buf, field)
	}
	// Terminate with double newline
	buf.WriteByte('\n')

	err = mod.upload(ctx, buf.Bytes())
	if err != nil {
		err = fmt.Errorf("%w (event: action '%s', entity '%s')", err, event.Action, event.Entity)
		return
	}
	entriesWritten = 1
	return
}

// Key=val\n for text, key\n<le64 length><data>\n when the value spans lines.
// https://systemd.io/JOURNAL_EXPORT_FORMATS/#journal-export-format
func writeField(buf *bytes.Buffer, field field) {
	if !strings.Contains(field.val, "\n") {
		buf.WriteString(field.key)
		buf.WriteByte('=')
		buf.WriteString(field.val)
		buf.WriteByte('\n')
		return
	}

	buf.WriteString(field.key)
	buf.WriteByte('\n')
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(field.val)))
	buf.Write(size[:])
	buf.WriteString(field.val)
	buf.WriteByte('\n')
}
