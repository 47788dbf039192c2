package authcore

import (
	"fmt"
	"time"
)

// Config is the full engine configuration tree. Configured once, validated
// at Build, and treated as immutable afterwards.
type Config struct {
	Token       TokenConfig
	Store       StoreConfig
	ActionToken ActionTokenConfig
	Rate        RateConfig
	Quota       QuotaConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the process-wide signing material and token lifetimes.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig namespaces every Redis key the engine writes and bounds how
// long a single durable-store call may take before it surfaces
// [ErrStoreUnavailable] instead of hanging.
type StoreConfig struct {
	KeyPrefix    string
	CallTimeout  time.Duration
	PruneEnabled bool
	PruneEvery   time.Duration
}

/*
====================================
ACTION TOKEN CONFIG
====================================
*/

// ActionTokenConfig controls the single-use token registry.
type ActionTokenConfig struct {
	VerifyEmailTTL   time.Duration
	ResetPasswordTTL time.Duration
	MaxAttempts      int
}

/*
====================================
RATE / QUOTA CONFIG
====================================
*/

// RateConfig is the short fixed-window request-rate policy. Identity is the
// principal ID when authenticated, falling back to the network address.
type RateConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// QuotaConfig is the calendar-period usage policy. Ceilings come from the
// principal's subscription tier; tiers absent from the map use the free
// tier's ceiling.
type QuotaConfig struct {
	Enabled    bool
	TierLimits map[SubscriptionTier]int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process atomic counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Store: StoreConfig{
			KeyPrefix:    "ac:",
			CallTimeout:  2 * time.Second,
			PruneEnabled: true,
			PruneEvery:   time.Minute,
		},
		ActionToken: ActionTokenConfig{
			VerifyEmailTTL:   24 * time.Hour,
			ResetPasswordTTL: time.Hour,
			MaxAttempts:      5,
		},
		Rate: RateConfig{
			Enabled: true,
			Limit:   60,
			Window:  time.Minute,
		},
		Quota: QuotaConfig{
			Enabled: true,
			TierLimits: map[SubscriptionTier]int{
				TierFree:    20,
				TierBasic:   200,
				TierPremium: 2000,
			},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.Token.PrivateKey != nil {
		out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	}
	if cfg.Token.PublicKey != nil {
		out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	}
	if cfg.Quota.TierLimits != nil {
		limits := make(map[SubscriptionTier]int, len(cfg.Quota.TierLimits))
		for tier, limit := range cfg.Quota.TierLimits {
			limits[tier] = limit
		}
		out.Quota.TierLimits = limits
	}

	return out
}

func validateConfig(cfg Config) error {
	if cfg.Token.AccessTTL <= 0 {
		return fmt.Errorf("%w: access ttl must be positive", ErrConfigInvalid)
	}
	if cfg.Token.RefreshTTL <= cfg.Token.AccessTTL {
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", ErrConfigInvalid)
	}
	if cfg.Token.Leeway < 0 || cfg.Token.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: leeway out of range", ErrConfigInvalid)
	}
	if cfg.Store.CallTimeout <= 0 {
		return fmt.Errorf("%w: store call timeout must be positive", ErrConfigInvalid)
	}
	if cfg.Store.PruneEnabled && cfg.Store.PruneEvery <= 0 {
		return fmt.Errorf("%w: prune interval must be positive", ErrConfigInvalid)
	}
	if cfg.ActionToken.VerifyEmailTTL <= 0 || cfg.ActionToken.ResetPasswordTTL <= 0 {
		return fmt.Errorf("%w: action token ttls must be positive", ErrConfigInvalid)
	}
	if cfg.ActionToken.MaxAttempts < 0 {
		return fmt.Errorf("%w: action token max attempts must not be negative", ErrConfigInvalid)
	}
	if cfg.Rate.Enabled {
		if cfg.Rate.Limit <= 0 {
			return fmt.Errorf("%w: rate limit must be positive", ErrConfigInvalid)
		}
		if cfg.Rate.Window <= 0 {
			return fmt.Errorf("%w: rate window must be positive", ErrConfigInvalid)
		}
	}
	if cfg.Quota.Enabled {
		if len(cfg.Quota.TierLimits) == 0 {
			return fmt.Errorf("%w: quota enabled without tier limits", ErrConfigInvalid)
		}
		for tier, limit := range cfg.Quota.TierLimits {
			if limit <= 0 {
				return fmt.Errorf("%w: quota limit for tier %q must be positive", ErrConfigInvalid, tier)
			}
		}
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 0 {
		return fmt.Errorf("%w: audit buffer size must not be negative", ErrConfigInvalid)
	}

	return nil
}
