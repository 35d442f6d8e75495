package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cromp/internal/global"

	"github.com/BurntSushi/toml"
)

// Loads daemon config from file. Files ending in .toml are read as TOML, anything else as JSON.
func LoadConfig(path string) (cfg JSONConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %w", err)
		return
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(configFile, &cfg)
	} else {
		err = json.Unmarshal(configFile, &cfg)
	}
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %w", path, err)
		return
	}
	return
}

// Config file contents with every default filled in
func DefaultJSONConfig() (cfg JSONConfig) {
	cfg.Network.Address = "::"
	cfg.Network.Port = global.DefaultPort
	cfg.Network.Accepters = DefaultAccepters
	cfg.Security.Encrypt = true
	cfg.Security.Dormancy = "24h"
	cfg.Dispatch.Echo = true
	cfg.Dispatch.EchoBackground = true
	cfg.Metrics.Interval = "15s"
	cfg.Metrics.MaxAge = "1h"
	cfg.Metrics.QueryServerPort = global.HTTPListenPortServer
	return
}

// Serializes config as "json" or "toml"
func (cfg JSONConfig) Marshal(format string) (encoded []byte, err error) {
	switch strings.ToLower(format) {
	case "", "json":
		encoded, err = json.MarshalIndent(cfg, "", "  ")
		if err == nil {
			encoded = append(encoded, '\n')
		}
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		encoded = buf.Bytes()
	default:
		err = fmt.Errorf("unknown config format %q", format)
	}
	return
}

// Parses file config into daemon config
func (cfg JSONConfig) NewDaemonConf() (config DaemonConfig, err error) {
	// Network settings
	config.ListenIP = cfg.Network.Address
	config.ListenPort = cfg.Network.Port
	config.Accepters = cfg.Network.Accepters

	// Security settings
	config.Encrypt = cfg.Security.Encrypt
	config.Token = cfg.Security.Token
	if cfg.Security.TokenFile != "" {
		var token []byte
		token, err = os.ReadFile(cfg.Security.TokenFile)
		if err != nil {
			err = fmt.Errorf("failed to read token file: %w", err)
			return
		}
		config.Token = strings.TrimSpace(string(token))
	}
	if cfg.Security.Dormancy != "" {
		config.Dormancy, err = time.ParseDuration(cfg.Security.Dormancy)
		if err != nil {
			err = fmt.Errorf("failed to parse registry dormancy time: %w", err)
			return
		}
	}

	// Dispatch settings
	config.Instantaneous = cfg.Dispatch.Instantaneous
	config.MaxPerEntity = cfg.Dispatch.MaxPerEntity
	config.EchoEnabled = cfg.Dispatch.Echo
	config.EchoBackground = cfg.Dispatch.EchoBackground
	config.TransferChunk = cfg.Dispatch.TransferChunk
	for _, root := range cfg.Dispatch.Transfers {
		if root.Name == "" || root.Root == "" {
			err = fmt.Errorf("transfer mapping needs both a name and a root")
			return
		}
		if config.TransferRoots == nil {
			config.TransferRoots = make(map[string]string)
		}
		if _, dup := config.TransferRoots[root.Name]; dup {
			err = fmt.Errorf("transfer mapping %q given twice", root.Name)
			return
		}
		config.TransferRoots[root.Name] = root.Root
	}

	// Output settings
	config.BeatsEndpoint = cfg.Outputs.BeatsAddress
	config.AuditFilePath = cfg.Outputs.FilePath
	config.JournaldURL = cfg.Outputs.JournaldURL

	// Metric settings
	config.MetricQueryServerEnabled = cfg.Metrics.EnableQueryServer
	config.MetricQueryServerPort = cfg.Metrics.QueryServerPort
	if cfg.Metrics.MaxAge != "" {
		config.MetricMaxAge, err = time.ParseDuration(cfg.Metrics.MaxAge)
		if err != nil {
			err = fmt.Errorf("failed to parse metric max age time: %w", err)
			return
		}
	}
	if cfg.Metrics.Interval != "" {
		config.MetricCollectionInterval, err = time.ParseDuration(cfg.Metrics.Interval)
		if err != nil {
			err = fmt.Errorf("failed to parse metric collection interval time: %w", err)
			return
		}
	}
	return
}

// Sets defaults for any missing/invalid values
func (cfg *DaemonConfig) setDefaults() {
	// Network
	if cfg.ListenIP == "" {
		cfg.ListenIP = "::"
	}
	if cfg.ListenPort <= 0 {
		cfg.ListenPort = global.DefaultPort
	}
	if cfg.Accepters <= 0 {
		cfg.Accepters = DefaultAccepters
	}

	// Security
	if cfg.Dormancy == 0 {
		cfg.Dormancy = 24 * time.Hour
	}

	// Metrics
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = 1 * time.Hour
	}
	if cfg.MetricQueryServerPort == 0 {
		cfg.MetricQueryServerPort = global.HTTPListenPortServer
	}
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = 15 * time.Second
	}
}
