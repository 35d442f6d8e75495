package cli

import (
	"bytes"
	"cromp/internal/server"
	"cromp/internal/transfer"
	"flag"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestWriteHelpMenu(t *testing.T) {
	opts := DefineOptions()

	tests := []struct {
		name        string
		command     string
		flags       func(fs *flag.FlagSet)
		wantParts   []string
		unwantParts []string
	}{
		{
			name:    "Root lists subcommands",
			command: RootCLICommand,
			flags:   SetGlobalArguments,
			wantParts: []string{
				"[subcommand]",
				"Subcommands:",
				"configure",
				"ping",
				"serve",
				"transfer",
				"version",
				"-v, --verbosity",
				"[default: 1]",
				"Default server port: 10008",
			},
		},
		{
			name:    "Serve shows description and config flag",
			command: "serve",
			flags: func(fs *flag.FlagSet) {
				var path string
				SetGlobalArguments(fs)
				SetCommon(fs, &path)
			},
			wantParts: []string{
				"Description:",
				"-c, --config",
				"[default: /etc/cromp.json]",
			},
			unwantParts: []string{"Subcommands:", "Default server port"},
		},
		{
			name:    "Long only flag",
			command: "ping",
			flags: func(fs *flag.FlagSet) {
				fs.Bool("ask-token", false, "Prompt for the login token")
			},
			wantParts:   []string{"    --ask-token  Prompt for the login token"},
			unwantParts: []string{"[default: false]"},
		},
		{
			name:      "Unknown command",
			command:   "nope",
			flags:     func(fs *flag.FlagSet) {},
			wantParts: []string{"Unknown command: nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet(tt.command, flag.ContinueOnError)
			tt.flags(fs)

			var out bytes.Buffer
			writeHelpMenu(&out, fs, tt.command, opts)
			text := out.String()

			for _, part := range tt.wantParts {
				if !strings.Contains(text, part) {
					t.Errorf("expected help to contain %q, got:\n%s", part, text)
				}
			}
			for _, part := range tt.unwantParts {
				if strings.Contains(text, part) {
					t.Errorf("expected help not to contain %q, got:\n%s", part, text)
				}
			}
		})
	}
}

func TestWriteFlagOptionsFoldsSpellings(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("a", "x", "Server address")
	fs.String("address", "x", "Server address")
	fs.Int("n", 4, "Count")

	var out bytes.Buffer
	writeFlagOptions(&out, fs, "")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")

	if len(lines) != 3 {
		t.Fatalf("expected header and two option lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "-a, --address") {
		t.Errorf("expected folded address option first, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "-n") || !strings.Contains(lines[2], "[default: 4]") {
		t.Errorf("expected count option with default, got %q", lines[2])
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		format  string
		wantErr bool
	}{
		{"JSON", "cromp.json", "json", false},
		{"TOML", "cromp.toml", "toml", false},
		{"Unknown format", "cromp.yaml", "yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)

			err := writeDefaultConfig(path, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr {
				if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
					t.Errorf("expected no file written on error")
				}
				return
			}

			cfg, err := server.LoadConfig(path)
			if err != nil {
				t.Fatalf("expected written config to load, got %v", err)
			}
			if cfg.Network.Port != server.DefaultJSONConfig().Network.Port {
				t.Errorf("expected default port %d, got %d", server.DefaultJSONConfig().Network.Port, cfg.Network.Port)
			}
		})
	}
}

func TestWriteListing(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 30, 0, 0, time.Local)
	entries := []transfer.Entry{
		{Path: "logs", Dir: true, Modified: stamp},
		{Path: "logs/app.log", Size: 2048, Modified: stamp},
	}

	tests := []struct {
		name     string
		complete bool
		want     []string
	}{
		{"Complete", true, []string{
			"           -  2026-03-01 12:30:00  logs/",
			"        2048  2026-03-01 12:30:00  logs/app.log",
		}},
		{"Truncated", false, []string{
			"           -  2026-03-01 12:30:00  logs/",
			"        2048  2026-03-01 12:30:00  logs/app.log",
			"(listing truncated after 2 entries)",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			writeListing(&out, entries, tt.complete)
			got := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected:\n%s\ngot:\n%s", strings.Join(tt.want, "\n"), out.String())
			}
		})
	}
}

func TestSplitSuffixes(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []string
	}{
		{"Empty", "", nil},
		{"Single", ".log", []string{".log"}},
		{"Spaces and gaps", " .log, ,.conf ,", []string{".log", ".conf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSuffixes(tt.list); !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
