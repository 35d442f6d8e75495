package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgVersion  string = "v0.3.0"
	ProgBaseName string = "cromp"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultConfigPath string = "/etc/cromp.json"
	DefaultPort       int    = 10008

	// Background handler queue bounds
	DefaultMinQueueSize int = 64
	DefaultMaxQueueSize int = 4096

	// Metric aggregation types
	MetricSum         string = "sum"
	MetricMin         string = "min"
	MetricMax         string = "max"
	MetricAvg         string = "avg"
	MetricTrimmedMean string = "trimmedmean"

	// Timeout values
	ServerShutdownTimeout time.Duration = 20 * time.Second
	DefaultPingTimeout    time.Duration = 10 * time.Second

	// Metric HTTP server
	HTTPListenPortServer int           = 10000 + DefaultPort // Default listen port
	HTTPListenAddr       string        = "localhost"         // Metric queries only exposed to local machine
	HTTPReadTimeout      time.Duration = 30 * time.Second
	HTTPWriteTimeout     time.Duration = 10 * time.Second
	HTTPIdleTimeout      time.Duration = 180 * time.Second
	DataPath             string        = "/data/"
	DiscoveryPath        string        = "/discover/"
	AggregationPath      string        = "/aggregate/"

	// Namespacing Name Components
	NSMetric    string = "Metrics"
	NSMetricSrv string = "Server"
	NSTest      string = "Test"
	NSServer    string = "CrompServer"
	NSClient    string = "CrompClient"
	NSTransport string = "Transport"
	NSOctopus   string = "Octopus"
	NSTentacle  string = "Tentacle"
	NSBin       string = "Bin"
	NSQueue     string = "Queue"
	NSAccepter  string = "Accepter"
	NSDropper   string = "Dropper"
	NSPump      string = "Pump"
	NSConnector string = "Connector"
	NSAudit     string = "Audit"
	NSSecurity  string = "Security"
	NSTransfer  string = "Transfer"
)
