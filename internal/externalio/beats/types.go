package beats

import (
	"sync"

	lumberjack "github.com/elastic/go-lumber/client/v2"
)

type OutModule struct {
	mu   sync.Mutex // sync client is not safe for concurrent sends
	sink *lumberjack.SyncClient
}
