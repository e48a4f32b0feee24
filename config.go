package authority

import (
	"errors"
	"time"
)

// Config defines the engine's immutable configuration. Construct it once,
// pass it to the Builder, and treat it as read-only afterwards.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Cache    CacheConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
	Store    StoreConfig
}

// TokenConfig carries signing parameters and credential lifetimes.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// SessionConfig controls the human-continuity lifecycle, independent of
// token cryptography.
type SessionConfig struct {
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	// MaxSessionsPerSubject caps live sessions per subject. Before a new
	// session is created at the cap, the oldest by CreatedAt is evicted.
	// Zero disables the cap.
	MaxSessionsPerSubject int
}

// CacheConfig bounds store load during validation and role lookups. Entries
// are evicted no later than the cached fact's own expiry.
type CacheConfig struct {
	Enabled       bool
	ValidationTTL time.Duration
	RoleTTL       time.Duration
}

// AuditConfig controls the in-process audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds the optional hardening knobs.
type SecurityConfig struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// StoreConfig bounds store round trips. A deadline overrun surfaces as
// ErrStoreUnavailable, never as a credential failure.
type StoreConfig struct {
	Timeout time.Duration
}

// DefaultConfig returns the baseline configuration. Callers still have to
// supply signing material.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig returns a preset with shorter lifetimes, a tighter
// session cap, and the refresh throttle enabled.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessTTL = 5 * time.Minute
	cfg.Token.RefreshTTL = 24 * time.Hour
	cfg.Session.IdleTimeout = 15 * time.Minute
	cfg.Session.AbsoluteLifetime = 4 * time.Hour
	cfg.Session.MaxSessionsPerSubject = 3
	cfg.Cache.ValidationTTL = 15 * time.Second
	cfg.Cache.RoleTTL = time.Minute
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 10
	cfg.Security.RefreshCooldownDuration = time.Minute
	return cfg
}

// HighThroughputConfig returns a preset that favors store offload: longer
// cache TTLs and latency histograms enabled.
func HighThroughputConfig() Config {
	cfg := defaultConfig()
	cfg.Cache.ValidationTTL = 5 * time.Minute
	cfg.Token.AccessTTL = 30 * time.Minute
	cfg.Cache.RoleTTL = 10 * time.Minute
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authority",
			Audience:   "authority-clients",
		},
		Session: SessionConfig{
			IdleTimeout:           30 * time.Minute,
			AbsoluteLifetime:      8 * time.Hour,
			MaxSessionsPerSubject: 5,
		},
		Cache: CacheConfig{
			Enabled:       true,
			ValidationTTL: 60 * time.Second,
			RoleTTL:       5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      30,
			RefreshCooldownDuration: time.Minute,
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token.AccessTTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token.RefreshTTL must exceed Token.AccessTTL")
	}
	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return errors.New("Token.Issuer and Token.Audience are required")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteLifetime <= 0 {
		return errors.New("Session timeouts must be positive")
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteLifetime {
		return errors.New("Session.IdleTimeout must not exceed Session.AbsoluteLifetime")
	}
	if c.Session.MaxSessionsPerSubject < 0 {
		return errors.New("Session.MaxSessionsPerSubject must not be negative")
	}
	if c.Cache.Enabled {
		if c.Cache.ValidationTTL <= 0 || c.Cache.RoleTTL <= 0 {
			return errors.New("Cache TTLs must be positive when caching is enabled")
		}
		if c.Cache.ValidationTTL > c.Token.AccessTTL {
			return errors.New("Cache.ValidationTTL must not exceed Token.AccessTTL")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("refresh throttle requires positive attempts and cooldown")
		}
	}
	if c.Store.Timeout <= 0 {
		return errors.New("Store.Timeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
