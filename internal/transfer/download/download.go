// Requesting side of the file transfer handler
package download

import (
	"context"
	"cromp/internal/client"
	"cromp/internal/transfer"
	"cromp/pkg/protocol"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Bound to one connected client
type Downloader struct {
	conn    *client.Client
	chunk   int
	timeout time.Duration
	decoder *zstd.Decoder
}

// Selects what CopyTree writes
type Options struct {
	Include       []string // file name suffixes; empty copies everything
	SkipUnchanged bool     // leave local files with matching size and modification time alone
	OnlyReport    bool     // count what would be copied without writing
}

func NewDownloader(conn *client.Client, chunk int, timeout time.Duration) (new *Downloader, err error) {
	if conn == nil {
		err = fmt.Errorf("no client given")
		return
	}
	if chunk <= 0 {
		chunk = transfer.DefaultChunk
	}
	chunk = min(chunk, transfer.MaxChunk)

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(transfer.MaxChunk)*2))
	if err != nil {
		err = fmt.Errorf("failed to create chunk decompressor: %w", err)
		return
	}

	// Replacing an existing restorer is harmless, several downloaders may share a client
	conn.Octopus().AddTentacle(transfer.NewRestorer())

	new = &Downloader{
		conn:    conn,
		chunk:   chunk,
		timeout: timeout,
		decoder: decoder,
	}
	return
}

func (downloader *Downloader) Close() {
	downloader.decoder.Close()
}

func (downloader *Downloader) ask(ctx context.Context, request *transfer.Message) (reply *transfer.Message, result protocol.Outcome) {
	request.Request = true
	answer, result := downloader.conn.SynchronousRequest(ctx, request, downloader.timeout)
	if result != protocol.OK {
		return
	}
	reply, ok := answer.(*transfer.Message)
	if !ok || reply.Command != request.Command {
		result = protocol.Garbage
		return
	}
	result = protocol.OK
	return
}

// Lists the tree below dir. complete is false when the server truncated the listing.
func (downloader *Downloader) List(ctx context.Context, mapping, dir string) (entries []transfer.Entry, complete bool, result protocol.Outcome) {
	reply, result := downloader.ask(ctx, &transfer.Message{Command: transfer.CommandList, Mapping: mapping, Path: dir})
	if result != protocol.OK {
		return
	}
	entries, err := transfer.UnpackEntries(reply.Data)
	if err != nil {
		result = protocol.Garbage
		return
	}
	complete = reply.Success != protocol.Partial
	return
}

// Streams one remote file into out, chunk by chunk
func (downloader *Downloader) Fetch(ctx context.Context, mapping, file string, out io.Writer) (written int64, result protocol.Outcome) {
	var offset uint64
	for {
		var reply *transfer.Message
		reply, result = downloader.ask(ctx, &transfer.Message{
			Command: transfer.CommandFetch,
			Mapping: mapping,
			Path:    file,
			Offset:  offset,
			Length:  uint32(downloader.chunk),
		})
		if result != protocol.OK {
			return
		}
		if reply.Offset != offset {
			result = protocol.Garbage
			return
		}

		data := reply.Data
		if reply.Compressed {
			var err error
			data, err = downloader.decoder.DecodeAll(reply.Data, nil)
			if err != nil {
				result = protocol.Garbage
				return
			}
		}
		if len(data) != int(reply.Length) {
			result = protocol.Garbage
			return
		}

		if _, err := out.Write(data); err != nil {
			result = protocol.Failure
			return
		}
		written += int64(len(data))
		offset += uint64(len(data))

		if offset >= reply.Total {
			result = protocol.OK
			return
		}
		// No progress before the end means the file shrank underneath us
		if len(data) == 0 {
			result = protocol.Partial
			return
		}
	}
}

// Mirrors the remote tree below dir into destination
func (downloader *Downloader) CopyTree(ctx context.Context, mapping, dir, destination string, opts Options) (copied int, result protocol.Outcome) {
	entries, complete, result := downloader.List(ctx, mapping, dir)
	if result != protocol.OK {
		return
	}

	for _, entry := range entries {
		local, ok := localPath(destination, entry.Path)
		if !ok {
			result = protocol.Disallowed
			return
		}

		if entry.Dir {
			if opts.OnlyReport {
				continue
			}
			if err := os.MkdirAll(local, 0o755); err != nil {
				result = protocol.Failure
				return
			}
			continue
		}
		if !included(entry.Path, opts.Include) {
			continue
		}
		if opts.SkipUnchanged && unchanged(local, entry) {
			continue
		}
		if opts.OnlyReport {
			copied++
			continue
		}

		result = downloader.copyFile(ctx, mapping, entry, local)
		if result != protocol.OK {
			return
		}
		copied++
	}

	result = protocol.OK
	if !complete {
		result = protocol.Partial
	}
	return
}

// Writes through a temporary file so a failed copy never leaves a truncated file behind
func (downloader *Downloader) copyFile(ctx context.Context, mapping string, entry transfer.Entry, local string) (result protocol.Outcome) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		result = protocol.Failure
		return
	}
	temp, err := os.CreateTemp(filepath.Dir(local), "."+filepath.Base(local)+".*")
	if err != nil {
		result = protocol.Failure
		return
	}
	defer os.Remove(temp.Name())

	_, result = downloader.Fetch(ctx, mapping, entry.Path, temp)
	if closeErr := temp.Close(); closeErr != nil && result == protocol.OK {
		result = protocol.Failure
	}
	if result != protocol.OK {
		return
	}

	if err = os.Chtimes(temp.Name(), entry.Modified, entry.Modified); err != nil {
		result = protocol.Failure
		return
	}
	if err = os.Rename(temp.Name(), local); err != nil {
		result = protocol.Failure
		return
	}
	result = protocol.OK
	return
}

// Joins a server supplied path under destination, refusing anything that climbs out
func localPath(destination, remote string) (local string, ok bool) {
	cleaned := path.Clean("/" + remote)
	if cleaned == "/" {
		return
	}
	local = filepath.Join(destination, filepath.FromSlash(cleaned))
	ok = transfer.Within(filepath.Clean(destination), local)
	return
}

func included(remote string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(remote, suffix) {
			return true
		}
	}
	return false
}

func unchanged(local string, entry transfer.Entry) bool {
	info, err := os.Stat(local)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return uint64(info.Size()) == entry.Size && info.ModTime().Equal(entry.Modified)
}
