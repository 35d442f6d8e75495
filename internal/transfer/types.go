// File transfer handler: lists trees and serves file chunks from named roots
package transfer

import (
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	// Chunk size used when a request does not name one
	DefaultChunk int = 256 * 1024

	// Largest chunk served in one reply
	MaxChunk int = 1024 * 1024

	// Listings stop here and are marked incomplete
	MaxListEntries int = 10000
)

// Classifier owned by the transfer handler
var Class = protocol.Classifier{"app", "transfer"}

type Command uint32

const (
	CommandList  Command = 1 // Tree below a path
	CommandFetch Command = 2 // One chunk of a file
)

// Transfer request or reply. Paths are slash separated and relative to the mapping root.
type Message struct {
	Command    Command
	Request    bool
	Success    protocol.Outcome // replies only; Partial marks a truncated listing
	Mapping    string
	Path       string
	Offset     uint64
	Length     uint32 // requested chunk size, or raw bytes carried by a reply
	Total      uint64 // file size in fetch replies
	Compressed bool
	Data       []byte // packed entries for listings, file bytes for fetches
}

// One file or directory in a listing
type Entry struct {
	Path     string
	Size     uint64
	Dir      bool
	Modified time.Time
}

// Server side handler. Mappings are the only names clients may use to reach the filesystem.
type Tentacle struct {
	*octopus.Base
	Namespace []string

	mu       sync.RWMutex
	mappings map[string]string // name to resolved absolute root

	chunk   int
	encoder *zstd.Encoder

	Metrics *MetricStorage
}

type MetricStorage struct {
	Listings    atomic.Uint64 // Listing requests answered
	Fetches     atomic.Uint64 // Chunk requests answered
	BytesServed atomic.Uint64 // Raw file bytes sent
	BytesOnWire atomic.Uint64 // File bytes after compression
	Refused     atomic.Uint64 // Requests for unknown mappings or paths outside a root
}
