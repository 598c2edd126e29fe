package whatsapp

import (
	"time"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
)

// BackoffConfig holds the per-failure-class recovery schedules. Every constant
// is independently configurable so deployments can tune either schedule without
// touching the other.
type BackoffConfig struct {
	// Generic disconnects: exponential backoff with jitter.
	GenericBase        time.Duration
	GenericMultiplier  float64
	GenericMax         time.Duration
	GenericMaxAttempts int
	JitterFraction     float64

	// Session conflicts: fixed escalating delays with forced auth clear.
	ConflictBase        time.Duration
	ConflictStep        time.Duration
	ConflictMaxAttempts int

	// Keepalive timeouts: short, medium, then long-with-auth-clear tiers.
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}

// Config carries every tunable of the connection service. Zero values are
// replaced with defaults by NewService.
type Config struct {
	// DataDir holds the session snapshot and message cache files.
	DataDir string

	// SettleTimeout is the named pause between the transport reporting a live
	// session and the initial chat discovery pass.
	SettleTimeout time.Duration

	MessageCapPerChat int
	RetentionWindow   time.Duration

	// PresenceCooldown bounds how often the liveness probe actually sends a
	// presence update.
	PresenceCooldown time.Duration

	// TimeoutAttribution is the window after a keepalive timeout during which
	// a socket closure is classified as a timeout disconnect.
	TimeoutAttribution time.Duration

	PreviewMaxGraphemes int

	Backoff BackoffConfig
}

// ConfigFromEnv builds a Config from the environment, falling back to the
// documented defaults.
func ConfigFromEnv() Config {
	return Config{
		DataDir:             env.GetEnvStringOrDefault("WHATSAPP_DATA_DIR", "./data"),
		SettleTimeout:       env.GetEnvDurationOrDefault("WHATSAPP_BOOTSTRAP_SETTLE_TIMEOUT", 1500*time.Millisecond),
		MessageCapPerChat:   env.GetEnvIntOrDefault("WHATSAPP_MESSAGE_CAP_PER_CHAT", 100),
		RetentionWindow:     env.GetEnvDurationOrDefault("WHATSAPP_MESSAGE_RETENTION", 24*time.Hour),
		PresenceCooldown:    env.GetEnvDurationOrDefault("WHATSAPP_PRESENCE_COOLDOWN", 2*time.Minute),
		TimeoutAttribution:  env.GetEnvDurationOrDefault("WHATSAPP_TIMEOUT_ATTRIBUTION", 90*time.Second),
		PreviewMaxGraphemes: env.GetEnvIntOrDefault("WHATSAPP_PREVIEW_MAX_GRAPHEMES", 80),
		Backoff: BackoffConfig{
			GenericBase:         env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_BACKOFF_BASE", 2*time.Second),
			GenericMultiplier:   env.GetEnvFloatOrDefault("WHATSAPP_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
			GenericMax:          env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_BACKOFF_MAX", 5*time.Minute),
			GenericMaxAttempts:  env.GetEnvIntOrDefault("WHATSAPP_RECONNECT_MAX_ATTEMPTS", 10),
			JitterFraction:      env.GetEnvFloatOrDefault("WHATSAPP_RECONNECT_JITTER_FRACTION", 0.25),
			ConflictBase:        env.GetEnvDurationOrDefault("WHATSAPP_CONFLICT_BACKOFF_BASE", 90*time.Second),
			ConflictStep:        env.GetEnvDurationOrDefault("WHATSAPP_CONFLICT_BACKOFF_STEP", 60*time.Second),
			ConflictMaxAttempts: env.GetEnvIntOrDefault("WHATSAPP_CONFLICT_MAX_ATTEMPTS", 3),
			TimeoutShort:        env.GetEnvDurationOrDefault("WHATSAPP_TIMEOUT_BACKOFF_SHORT", 15*time.Second),
			TimeoutMedium:       env.GetEnvDurationOrDefault("WHATSAPP_TIMEOUT_BACKOFF_MEDIUM", 60*time.Second),
			TimeoutLong:         env.GetEnvDurationOrDefault("WHATSAPP_TIMEOUT_BACKOFF_LONG", 5*time.Minute),
		},
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 1500 * time.Millisecond
	}
	if c.MessageCapPerChat <= 0 {
		c.MessageCapPerChat = 100
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = 24 * time.Hour
	}
	if c.PresenceCooldown <= 0 {
		c.PresenceCooldown = 2 * time.Minute
	}
	if c.TimeoutAttribution <= 0 {
		c.TimeoutAttribution = 90 * time.Second
	}
	if c.PreviewMaxGraphemes <= 0 {
		c.PreviewMaxGraphemes = 80
	}
	b := &c.Backoff
	if b.GenericBase <= 0 {
		b.GenericBase = 2 * time.Second
	}
	if b.GenericMultiplier <= 1 {
		b.GenericMultiplier = 2.0
	}
	if b.GenericMax <= 0 {
		b.GenericMax = 5 * time.Minute
	}
	if b.GenericMaxAttempts <= 0 {
		b.GenericMaxAttempts = 10
	}
	if b.JitterFraction < 0 || b.JitterFraction >= 1 {
		b.JitterFraction = 0.25
	}
	if b.ConflictBase <= 0 {
		b.ConflictBase = 90 * time.Second
	}
	if b.ConflictStep <= 0 {
		b.ConflictStep = 60 * time.Second
	}
	if b.ConflictMaxAttempts <= 0 {
		b.ConflictMaxAttempts = 3
	}
	if b.TimeoutShort <= 0 {
		b.TimeoutShort = 15 * time.Second
	}
	if b.TimeoutMedium <= 0 {
		b.TimeoutMedium = 60 * time.Second
	}
	if b.TimeoutLong <= 0 {
		b.TimeoutLong = 5 * time.Minute
	}
}
