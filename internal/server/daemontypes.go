package server

import (
	"context"
	"cromp/internal/externalio/beats"
	"cromp/internal/externalio/file"
	"cromp/internal/externalio/journald"
	"cromp/internal/externalio/query"
	"cromp/internal/security"
	"cromp/internal/server/metrics"
	"cromp/internal/transfer"
	"sync"
	"sync/atomic"
	"time"
)

type JSONConfig struct {
	Network struct {
		Address   string `json:"address" toml:"address"`
		Port      int    `json:"port" toml:"port"`
		Accepters int    `json:"accepters,omitempty" toml:"accepters,omitempty"`
	} `json:"network" toml:"network"`
	Security struct {
		Encrypt   bool   `json:"encrypt" toml:"encrypt"`
		Token     string `json:"token,omitempty" toml:"token,omitempty"`
		TokenFile string `json:"tokenFile,omitempty" toml:"tokenFile,omitempty"`
		Dormancy  string `json:"dormancy,omitempty" toml:"dormancy,omitempty"`
	} `json:"security" toml:"security"`
	Dispatch struct {
		Instantaneous  bool `json:"instantaneous" toml:"instantaneous"`
		MaxPerEntity   int  `json:"maxPerEntity,omitempty" toml:"maxPerEntity,omitempty"`
		Echo           bool `json:"echo" toml:"echo"`
		EchoBackground bool `json:"echoBackground" toml:"echoBackground"`
		Transfers      []TransferMapping `json:"transfers,omitempty" toml:"transfers,omitempty"`
		TransferChunk  int               `json:"transferChunk,omitempty" toml:"transferChunk,omitempty"`
	} `json:"dispatch" toml:"dispatch"`
	Outputs struct {
		BeatsAddress string `json:"beatsAddress,omitempty" toml:"beatsAddress,omitempty"`
		FilePath     string `json:"filePath,omitempty" toml:"filePath,omitempty"`
		JournaldURL  string `json:"journaldURL,omitempty" toml:"journaldURL,omitempty"`
	} `json:"outputs" toml:"outputs"`
	Metrics struct {
		Interval          string `json:"collectionInterval" toml:"collectionInterval"`
		MaxAge            string `json:"maximumRetention,omitempty" toml:"maximumRetention,omitempty"`
		EnableQueryServer bool   `json:"enableHTTPQueryServer" toml:"enableHTTPQueryServer"`
		QueryServerPort   int    `json:"queryServerPort,omitempty" toml:"queryServerPort,omitempty"`
	} `json:"metrics" toml:"metrics"`
}

// Directory published to transfer clients under Name
type TransferMapping struct {
	Name string `json:"name" toml:"name"`
	Root string `json:"root" toml:"root"`
}

type DaemonConfig struct {
	// Basic settings
	ListenIP   string
	ListenPort int
	Accepters  int

	// Security
	Encrypt  bool
	Token    string        // Empty admits any entity
	Dormancy time.Duration // Registry entries idle this long are pruned

	// Dispatch
	Instantaneous  bool
	MaxPerEntity   int
	EchoEnabled    bool
	EchoBackground bool
	TransferRoots  map[string]string // mapping name to served directory
	TransferChunk  int

	// Audit outputs
	BeatsEndpoint string
	AuditFilePath string
	JournaldURL   string

	// Metrics
	MetricQueryServerEnabled bool
	MetricQueryServerPort    int
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration
}

type Daemon struct {
	cfg    DaemonConfig
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	Server           *Server
	transfers        *transfer.Tentacle
	registry         security.EntityRegistry
	auditBeats       atomic.Pointer[beats.OutModule]
	auditFile        atomic.Pointer[file.OutModule]
	auditJournal     atomic.Pointer[journald.OutModule]
	metricsCollector *metrics.Gatherer
	MetricServer     *query.Endpoint

	Metrics query.Sources // set once Start has the registry running
}
