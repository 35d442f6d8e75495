package file

import (
	"io"
	"sync"
)

// Line oriented audit log
type OutModule struct {
	mu          sync.Mutex // guards batchBuffer and sink writes
	sink        io.WriteCloser
	batchBuffer []string
	batchSize   int
}
