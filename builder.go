package authcore

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authcore/authcore/internal/rate"
	"github.com/authcore/authcore/internal/revocation"
	"github.com/authcore/authcore/internal/sessions"
	"github.com/authcore/authcore/internal/stores"
	"github.com/authcore/authcore/password"
	"github.com/authcore/authcore/token"
)

// Builder assembles an [Engine]. Collect the pieces with the With methods
// and call Build once; the builder is not reusable afterwards.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithPrincipalProvider(provider).
//		Build()
type Builder struct {
	config     Config
	configSet  bool
	redis      redis.UniversalClient
	principals PrincipalProvider
	hasher     SecretHasher
	sink       AuditSink
	now        func() time.Time
	built      bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration. Zero-valued sections fall
// back to their defaults at Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithRedis sets the client backing every durable store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalProvider sets the account backend. Required.
func (b *Builder) WithPrincipalProvider(p PrincipalProvider) *Builder {
	b.principals = p
	return b
}

// WithSecretHasher overrides the default argon2id hasher.
func (b *Builder) WithSecretHasher(h SecretHasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the destination for audit events. Without one, events
// are dropped by a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the time source. Tests use this to make expiry and
// window boundaries deterministic.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// [Engine]. Configuration problems surface here wrapped in
// [ErrConfigInvalid]; nothing fails lazily on the first request.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already consumed", ErrConfigInvalid)
	}
	b.built = true

	if b.configSet {
		applyConfigDefaults(&b.config)
	}
	cfg := cloneConfig(b.config)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrConfigInvalid)
	}
	if b.principals == nil {
		return nil, fmt.Errorf("%w: principal provider is required", ErrConfigInvalid)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.NewHasher(password.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		hasher = h
	}

	method, err := signingMethod(cfg.Token.SigningMethod)
	if err != nil {
		return nil, err
	}
	manager, err := token.NewManager(token.Config{
		SigningMethod: method,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	prefix := cfg.Store.KeyPrefix
	engine := &Engine{
		config:      cfg,
		tokens:      manager,
		revocations: revocation.New(b.redis, prefix, now),
		sessions:    sessions.NewRegistry(b.redis, prefix, now),
		actions:     stores.NewActionStore(b.redis, prefix, now),
		gate:        rate.New(b.redis, prefix, now),
		metrics:     NewMetrics(cfg.Metrics),
		principals:  b.principals,
		hasher:      hasher,
		now:         now,
	}
	if cfg.Audit.Enabled {
		engine.audit = newAuditDispatcher(cfg.Audit, sink)
	}
	if cfg.Store.PruneEnabled {
		engine.pruneStop = make(chan struct{})
		engine.pruneWG.Add(1)
		go engine.runPruneLoop(cfg.Store.PruneEvery)
	}
	return engine, nil
}

func signingMethod(name string) (token.SigningMethod, error) {
	switch name {
	case "", "ed25519":
		return token.MethodEd25519, nil
	case "hs256":
		return token.MethodHS256, nil
	default:
		return "", fmt.Errorf("%w: unsupported signing method %q", ErrConfigInvalid, name)
	}
}

// applyConfigDefaults fills zero-valued fields of a caller-supplied config
// so partial configs stay usable.
func applyConfigDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Token.AccessTTL == 0 {
		cfg.Token.AccessTTL = def.Token.AccessTTL
	}
	if cfg.Token.RefreshTTL == 0 {
		cfg.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if cfg.Token.SigningMethod == "" {
		cfg.Token.SigningMethod = def.Token.SigningMethod
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = def.Store.KeyPrefix
	}
	if cfg.Store.CallTimeout == 0 {
		cfg.Store.CallTimeout = def.Store.CallTimeout
	}
	if cfg.Store.PruneEvery == 0 {
		cfg.Store.PruneEvery = def.Store.PruneEvery
	}
	if cfg.ActionToken.VerifyEmailTTL == 0 {
		cfg.ActionToken.VerifyEmailTTL = def.ActionToken.VerifyEmailTTL
	}
	if cfg.ActionToken.ResetPasswordTTL == 0 {
		cfg.ActionToken.ResetPasswordTTL = def.ActionToken.ResetPasswordTTL
	}
	if cfg.ActionToken.MaxAttempts == 0 {
		cfg.ActionToken.MaxAttempts = def.ActionToken.MaxAttempts
	}
	if cfg.Rate.Enabled && cfg.Rate.Window == 0 {
		cfg.Rate.Window = def.Rate.Window
	}
	if cfg.Rate.Enabled && cfg.Rate.Limit == 0 {
		cfg.Rate.Limit = def.Rate.Limit
	}
	if cfg.Quota.Enabled && cfg.Quota.TierLimits == nil {
		cfg.Quota.TierLimits = def.Quota.TierLimits
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
}
