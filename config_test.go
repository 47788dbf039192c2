package authcore

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := validateConfig(defaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateConfigRejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"refresh not longer than access", func(c *Config) { c.Token.RefreshTTL = c.Token.AccessTTL }},
		{"negative leeway", func(c *Config) { c.Token.Leeway = -time.Second }},
		{"excessive leeway", func(c *Config) { c.Token.Leeway = 10 * time.Minute }},
		{"zero call timeout", func(c *Config) { c.Store.CallTimeout = 0 }},
		{"prune without interval", func(c *Config) { c.Store.PruneEnabled = true; c.Store.PruneEvery = 0 }},
		{"zero verify ttl", func(c *Config) { c.ActionToken.VerifyEmailTTL = 0 }},
		{"zero reset ttl", func(c *Config) { c.ActionToken.ResetPasswordTTL = 0 }},
		{"negative attempts", func(c *Config) { c.ActionToken.MaxAttempts = -1 }},
		{"rate without limit", func(c *Config) { c.Rate.Enabled = true; c.Rate.Limit = 0 }},
		{"rate without window", func(c *Config) { c.Rate.Enabled = true; c.Rate.Window = 0 }},
		{"quota without tiers", func(c *Config) { c.Quota.Enabled = true; c.Quota.TierLimits = nil }},
		{"quota with zero ceiling", func(c *Config) {
			c.Quota.TierLimits = map[SubscriptionTier]int{TierFree: 0}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mut(&cfg)
			if err := validateConfig(cfg); !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("err = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte{1, 2, 3}
	cfg.Token.PublicKey = []byte{4, 5, 6}

	clone := cloneConfig(cfg)

	clone.Token.PrivateKey[0] = 9
	clone.Quota.TierLimits[TierFree] = 999

	if cfg.Token.PrivateKey[0] != 1 {
		t.Fatal("private key shared between clone and original")
	}
	if cfg.Quota.TierLimits[TierFree] == 999 {
		t.Fatal("tier map shared between clone and original")
	}
}

func TestBuilderRequiresRedis(t *testing.T) {
	cfg := engineTestConfig(t)

	_, err := New().
		WithConfig(cfg).
		WithPrincipalProvider(newMemoryProvider()).
		Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestBuilderRequiresPrincipalProvider(t *testing.T) {
	cfg := engineTestConfig(t)
	mr, client := newTestRedis(t)
	defer mr.Close()
	defer client.Close()

	_, err := New().
		WithConfig(cfg).
		WithRedis(client).
		Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestBuilderRejectsMissingSigningKeys(t *testing.T) {
	cfg := defaultConfig()
	mr, client := newTestRedis(t)
	defer mr.Close()
	defer client.Close()

	_, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(newMemoryProvider()).
		Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestBuilderRejectsUnknownSigningMethod(t *testing.T) {
	cfg := engineTestConfig(t)
	cfg.Token.SigningMethod = "rs256"

	mr, client := newTestRedis(t)
	defer mr.Close()
	defer client.Close()

	_, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(newMemoryProvider()).
		Build()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestBuilderNotReusable(t *testing.T) {
	cfg := engineTestConfig(t)
	mr, client := newTestRedis(t)
	defer mr.Close()
	defer client.Close()

	builder := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(newMemoryProvider()).
		WithSecretHasher(plainHasher{})

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("second Build err = %v, want ErrConfigInvalid", err)
	}
}

func TestBuilderFillsPartialConfig(t *testing.T) {
	cfg := engineTestConfig(t)
	cfg.Store.KeyPrefix = ""
	cfg.Store.CallTimeout = 0
	cfg.ActionToken = ActionTokenConfig{}
	cfg.Rate = RateConfig{Enabled: true}

	mr, client := newTestRedis(t)
	defer mr.Close()
	defer client.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(newMemoryProvider()).
		WithSecretHasher(plainHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build with partial config failed: %v", err)
	}
	defer engine.Close()

	if engine.config.Store.CallTimeout != 2*time.Second {
		t.Fatalf("call timeout not defaulted: %v", engine.config.Store.CallTimeout)
	}
	if engine.config.Rate.Limit != 60 {
		t.Fatalf("rate limit not defaulted: %d", engine.config.Rate.Limit)
	}
	if engine.config.ActionToken.MaxAttempts != 5 {
		t.Fatalf("action attempts not defaulted: %d", engine.config.ActionToken.MaxAttempts)
	}
}

func TestSigningMethodMapping(t *testing.T) {
	if m, err := signingMethod(""); err != nil || m != "ed25519" {
		t.Fatalf("default method = %q, %v", m, err)
	}
	if m, err := signingMethod("hs256"); err != nil || m != "hs256" {
		t.Fatalf("hs256 method = %q, %v", m, err)
	}
	if _, err := signingMethod("none"); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}
