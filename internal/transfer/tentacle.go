package transfer

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Creates a backgrounded handler serving chunks of at most chunk bytes
func New(namespace []string, chunk int) (new *Tentacle, err error) {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	chunk = min(chunk, MaxChunk)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		err = fmt.Errorf("failed to create chunk compressor: %w", err)
		return
	}

	new = &Tentacle{
		Base:      octopus.NewBase(Class, false, true, octopus.ExactRestore(Class, Unmarshal)),
		Namespace: append(append([]string(nil), namespace...), global.NSTransfer),
		mappings:  make(map[string]string),
		chunk:     chunk,
		encoder:   encoder,
		Metrics:   &MetricStorage{},
	}
	return
}

// Publishes root under name, replacing any earlier root of the same name
func (tentacle *Tentacle) AddCorrespondence(name, root string) (err error) {
	if name == "" {
		err = fmt.Errorf("mapping name must not be empty")
		return
	}
	resolved, err := filepath.Abs(root)
	if err != nil {
		err = fmt.Errorf("failed to resolve root %q: %w", root, err)
		return
	}
	resolved, err = filepath.EvalSymlinks(resolved)
	if err != nil {
		err = fmt.Errorf("failed to resolve root %q: %w", root, err)
		return
	}
	info, err := os.Stat(resolved)
	if err != nil {
		err = fmt.Errorf("failed to inspect root %q: %w", root, err)
		return
	}
	if !info.IsDir() {
		err = fmt.Errorf("root %q is not a directory", root)
		return
	}

	tentacle.mu.Lock()
	tentacle.mappings[name] = resolved
	tentacle.mu.Unlock()
	return
}

func (tentacle *Tentacle) RemoveCorrespondence(name string) (removed bool) {
	tentacle.mu.Lock()
	defer tentacle.mu.Unlock()

	_, removed = tentacle.mappings[name]
	delete(tentacle.mappings, name)
	return
}

func (tentacle *Tentacle) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	request, ok := item.(*Message)
	if !ok || !request.Request {
		result = protocol.BadInput
		return
	}
	ctx = logctx.AppendCtxTag(ctx, global.NSTransfer)

	root, full, result := tentacle.resolve(request.Mapping, request.Path)
	if result != protocol.OK {
		tentacle.Metrics.Refused.Add(1)
		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"refused %s:%s for %s: %s\n", request.Mapping, request.Path, id.Entity, result)
		return
	}

	var reply *Message
	switch request.Command {
	case CommandList:
		reply, result = tentacle.list(root, full)
		tentacle.Metrics.Listings.Add(1)
	case CommandFetch:
		reply, result = tentacle.fetch(full, request.Offset, int(request.Length))
		tentacle.Metrics.Fetches.Add(1)
	default:
		result = protocol.BadInput
	}
	if result != protocol.OK {
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"transfer of %s:%s for %s failed: %s\n", request.Mapping, request.Path, id.Entity, result)
		return
	}

	reply.Command = request.Command
	reply.Mapping = request.Mapping
	reply.Path = request.Path
	result = tentacle.StoreProduct(reply, id)
	return
}

// Maps a client path onto the filesystem. Nothing outside the root is reachable, symlinks included.
func (tentacle *Tentacle) resolve(name, relative string) (root, full string, result protocol.Outcome) {
	tentacle.mu.RLock()
	root, found := tentacle.mappings[name]
	tentacle.mu.RUnlock()
	if !found {
		result = protocol.NotFound
		return
	}

	joined := filepath.Join(root, filepath.FromSlash(path.Clean("/"+relative)))
	full, err := filepath.EvalSymlinks(joined)
	if err != nil {
		result = protocol.NotFound
		return
	}
	if !Within(root, full) {
		result = protocol.Disallowed
		return
	}
	result = protocol.OK
	return
}

// Reports whether candidate is root or lies below it
func Within(root, candidate string) (inside bool) {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return
	}
	inside = rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	return
}

// Walks the tree below full. Symlinks and special files are left out.
func (tentacle *Tentacle) list(root, full string) (reply *Message, result protocol.Outcome) {
	var entries []Entry
	var packed int
	truncated := false

	err := filepath.WalkDir(full, func(walked string, dirEntry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped rather than failing the listing
			if walked != full {
				return fs.SkipDir
			}
			return walkErr
		}
		if walked == root || (!dirEntry.IsDir() && !dirEntry.Type().IsRegular()) {
			return nil
		}
		if len(entries) >= MaxListEntries {
			truncated = true
			return fs.SkipAll
		}

		info, err := dirEntry.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, walked)
		if err != nil {
			return nil
		}
		packed += entrySize + len(rel)
		if packed > MaxChunk {
			truncated = true
			return fs.SkipAll
		}
		entry := Entry{
			Path:     filepath.ToSlash(rel),
			Dir:      dirEntry.IsDir(),
			Modified: info.ModTime(),
		}
		if !entry.Dir {
			entry.Size = uint64(info.Size())
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		result = protocol.NotFound
		return
	}

	reply = &Message{Success: protocol.OK, Data: packEntries(entries)}
	if truncated {
		reply.Success = protocol.Partial
	}
	result = protocol.OK
	return
}

// Reads one chunk at offset, compressed when that makes it smaller
func (tentacle *Tentacle) fetch(full string, offset uint64, length int) (reply *Message, result protocol.Outcome) {
	file, err := os.Open(full)
	if err != nil {
		result = protocol.NotFound
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		result = protocol.BadInput
		return
	}
	total := uint64(info.Size())
	if offset > total {
		result = protocol.BadInput
		return
	}

	if length <= 0 || length > tentacle.chunk {
		length = tentacle.chunk
	}
	raw := make([]byte, min(uint64(length), total-offset))
	read, err := file.ReadAt(raw, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		result = protocol.Failure
		return
	}
	raw = raw[:read]

	reply = &Message{
		Success: protocol.OK,
		Offset:  offset,
		Length:  uint32(len(raw)),
		Total:   total,
		Data:    raw,
	}
	if len(raw) > 0 {
		packed := tentacle.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
		if len(packed) < len(raw) {
			reply.Data = packed
			reply.Compressed = true
		}
	}

	tentacle.Metrics.BytesServed.Add(uint64(len(raw)))
	tentacle.Metrics.BytesOnWire.Add(uint64(len(reply.Data)))
	result = protocol.OK
	return
}

// Owns the transfer classifier on the requesting side so replies can be restored
func NewRestorer() (restorer *octopus.Base) {
	restorer = octopus.NewBase(Class, false, false, octopus.ExactRestore(Class, Unmarshal))
	return
}
