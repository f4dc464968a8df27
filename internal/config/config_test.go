package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}

	if cfg.Port != "3001" {
		t.Fatalf("default port wrong: %q", cfg.Port)
	}
	if cfg.TotalsDBPath != "" {
		t.Fatalf("totals sink should default to disabled: %q", cfg.TotalsDBPath)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("default sweep interval wrong: %v", cfg.SweepInterval)
	}
	if cfg.RoomGrace != 5*time.Second {
		t.Fatalf("default room grace wrong: %v", cfg.RoomGrace)
	}
	if cfg.OTMTTL != 7*24*time.Hour || cfg.FileTTL != 24*time.Hour {
		t.Fatalf("default TTLs wrong: otm=%v file=%v", cfg.OTMTTL, cfg.FileTTL)
	}
	if cfg.MaxFileBody != 12<<20 || cfg.MaxMessageBody != 500<<10 {
		t.Fatalf("default body caps wrong: file=%d msg=%d", cfg.MaxFileBody, cfg.MaxMessageBody)
	}
	if cfg.OTMPostPerWindow != 30 || cfg.OTMGetPerWindow != 60 ||
		cfg.FileUploadPerWindow != 10 || cfg.FileDownloadPerWindow != 30 ||
		cfg.InvitePerWindow != 10 || cfg.MessagePerWindow != 60 {
		t.Fatalf("default rate thresholds wrong: %+v", cfg)
	}
}

func TestLoad_EnvOverridesAndValidation(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TOTALS_DB_PATH", "/tmp/totals.db")
	t.Setenv("ROOM_GRACE", "1s")
	t.Setenv("RATE_OTM_POST", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "9000" || cfg.TotalsDBPath != "/tmp/totals.db" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.RoomGrace != time.Second || cfg.OTMPostPerWindow != 5 {
		t.Fatalf("env overrides not applied: grace=%v post=%d", cfg.RoomGrace, cfg.OTMPostPerWindow)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":        "verbose",
		"SWEEP_INTERVAL":   "-1s",
		"ROOM_GRACE":       "-5s",
		"RATE_OTM_POST":    "0",
		"WS_GUARD_BURST":   "0",
		"MAX_HEADER_BYTES": "-1",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, val)
			}
		})
	}
}

func TestLoad_NormalizesWarning(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning not normalized: %q", cfg.LogLevel)
	}
}
