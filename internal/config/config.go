// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the totals sink path, TTLs, body caps, rate-limit thresholds, and
// observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the relay.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Totals sink. Empty path disables the sink: increments become no-ops
	// and GET /metrics answers 503.
	TotalsDBPath string

	// Lifecycles
	SweepInterval time.Duration // sweeper tick for every store
	RoomGrace     time.Duration // empty-room destruction delay
	OTMTTL        time.Duration
	FileTTL       time.Duration
	InviteTTL     time.Duration // default; client expiresAt overrides per invite
	MailboxTTL    time.Duration

	// Body caps (bytes)
	MaxOTMBody     int64
	MaxFileBody    int64
	MaxInviteBody  int64
	MaxClaimBody   int64
	MaxMessageBody int64
	MaxAckBody     int64

	// Rate limiting: fixed window and per-action admissions per window
	RateWindow            time.Duration
	OTMPostPerWindow      int
	OTMGetPerWindow       int
	FileUploadPerWindow   int
	FileDownloadPerWindow int
	InvitePerWindow       int
	MessagePerWindow      int

	// Websocket churn guard (token bucket)
	WSGuardRPS   float64
	WSGuardBurst int

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "3001"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Totals sink
		TotalsDBPath: getenv("TOTALS_DB_PATH", ""),

		// Lifecycles
		SweepInterval: getdur("SWEEP_INTERVAL", time.Minute),
		RoomGrace:     getdur("ROOM_GRACE", 5*time.Second),
		OTMTTL:        getdur("OTM_TTL", 7*24*time.Hour),
		FileTTL:       getdur("FILE_TTL", 24*time.Hour),
		InviteTTL:     getdur("INVITE_TTL", 24*time.Hour),
		MailboxTTL:    getdur("MAILBOX_TTL", 7*24*time.Hour),

		// Body caps
		MaxOTMBody:     getint64("MAX_OTM_BODY", 1<<20),
		MaxFileBody:    getint64("MAX_FILE_BODY", 12<<20),
		MaxInviteBody:  getint64("MAX_INVITE_BODY", 100<<10),
		MaxClaimBody:   getint64("MAX_CLAIM_BODY", 100<<10),
		MaxMessageBody: getint64("MAX_MESSAGE_BODY", 500<<10),
		MaxAckBody:     getint64("MAX_ACK_BODY", 50<<10),

		// Rate limiting
		RateWindow:            getdur("RATE_WINDOW", time.Minute),
		OTMPostPerWindow:      getint("RATE_OTM_POST", 30),
		OTMGetPerWindow:       getint("RATE_OTM_GET", 60),
		FileUploadPerWindow:   getint("RATE_FILE_UPLOAD", 10),
		FileDownloadPerWindow: getint("RATE_FILE_DOWNLOAD", 30),
		InvitePerWindow:       getint("RATE_CHAT_INVITE", 10),
		MessagePerWindow:      getint("RATE_CHAT_MESSAGE", 60),

		// Websocket guard
		WSGuardRPS:   getfloat("WS_GUARD_RPS", 50.0),
		WSGuardBurst: getint("WS_GUARD_BURST", 100),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "blind-relay"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL must be > 0")
	}
	if cfg.RoomGrace <= 0 {
		return cfg, errors.New("ROOM_GRACE must be > 0")
	}
	if cfg.OTMTTL <= 0 || cfg.FileTTL <= 0 || cfg.InviteTTL <= 0 || cfg.MailboxTTL <= 0 {
		return cfg, errors.New("TTLs must be positive durations")
	}
	if cfg.MaxOTMBody <= 0 || cfg.MaxFileBody <= 0 || cfg.MaxInviteBody <= 0 ||
		cfg.MaxClaimBody <= 0 || cfg.MaxMessageBody <= 0 || cfg.MaxAckBody <= 0 {
		return cfg, errors.New("body caps must be > 0")
	}
	if cfg.RateWindow <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.OTMPostPerWindow < 1 || cfg.OTMGetPerWindow < 1 ||
		cfg.FileUploadPerWindow < 1 || cfg.FileDownloadPerWindow < 1 ||
		cfg.InvitePerWindow < 1 || cfg.MessagePerWindow < 1 {
		return cfg, errors.New("rate thresholds must be >= 1")
	}
	if cfg.WSGuardRPS < 0 {
		return cfg, errors.New("WS_GUARD_RPS must be >= 0")
	}
	if cfg.WSGuardBurst < 1 {
		return cfg, errors.New("WS_GUARD_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
