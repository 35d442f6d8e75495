package journald

import (
	"net/http"
)

type OutModule struct {
	sink   *http.Client
	url    string
	bootID string
}

// One export format field
type field struct {
	key string
	val string
}
