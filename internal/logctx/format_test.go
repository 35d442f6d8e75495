package logctx

import (
	"cromp/internal/global"
	"testing"
	"time"
)

func TestEventFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 5000, time.UTC)
	east := time.FixedZone("east", 2*60*60)

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"Every part",
			Event{Timestamp: at, Severity: global.WarnLog, Tags: []string{"Server", global.NSAccepter}, Message: "login refused"},
			"[2026-03-14T09:26:53.000005000Z] [Server/Accepter] [Warn] login refused"},
		{"Zone offset kept",
			Event{Timestamp: at.In(east), Severity: global.InfoLog, Message: "listening"},
			"[2026-03-14T11:26:53.000005000+02:00] [Info] listening"},
		{"No message",
			Event{Timestamp: at, Severity: global.ErrorLog, Tags: []string{global.NSPump}},
			"[2026-03-14T09:26:53.000005000Z] [Pump] [Error]"},
		{"No timestamp",
			Event{Tags: []string{global.NSClient}, Message: "connected"},
			"[CrompClient] connected"},
		{"Message only", Event{Message: "bare"}, "bare"},
		{"Empty", Event{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Format(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStampWidth(t *testing.T) {
	whole := stamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fractional := stamp(time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC))
	if len(whole) != len(fractional) {
		t.Errorf("expected equal widths, got %q and %q", whole, fractional)
	}
}
