package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/authcore/authcore/internal/rate"
	"github.com/authcore/authcore/internal/revocation"
	"github.com/authcore/authcore/internal/sessions"
	"github.com/authcore/authcore/internal/stores"
	"github.com/authcore/authcore/token"
)

// Engine is the credential and session lifecycle subsystem: issuance,
// verification, rotation, and revocation of signed tokens; single-use action
// tokens; and the per-identity quota/rate gate. Constructed once through
// [Builder.Build] and safe for concurrent use afterwards. The four shared
// stores it owns are keyed and atomic at key granularity; unrelated keys
// never contend.
type Engine struct {
	config      Config
	tokens      *token.Manager
	revocations *revocation.Store
	sessions    *sessions.Registry
	actions     *stores.ActionStore
	gate        *rate.Gate
	audit       *auditDispatcher
	metrics     *Metrics
	principals  PrincipalProvider
	hasher      SecretHasher
	now         func() time.Time

	pruneStop chan struct{}
	pruneWG   sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the audit dispatcher and the cache prune loop. Safe to call
// more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.pruneStop != nil {
			close(e.pruneStop)
			e.pruneWG.Wait()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Prune sweeps expired entries out of the in-process revocation cache and
// returns the number removed. The durable layer prunes itself through key
// TTLs. Runs automatically when StoreConfig.PruneEnabled is set.
func (e *Engine) Prune() int {
	if e == nil || e.revocations == nil {
		return 0
	}
	return e.revocations.Prune(e.now())
}

func (e *Engine) runPruneLoop(every time.Duration) {
	defer e.pruneWG.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.revocations.Prune(e.now())
		case <-e.pruneStop:
			return
		}
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, d)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	event.Timestamp = e.now()
	e.audit.Emit(ctx, event)
}

// storeCtx bounds a durable-store call so an unreachable store surfaces
// [ErrStoreUnavailable] instead of hanging the request.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.CallTimeout)
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// mapStoreErr folds the per-store unavailability sentinels (and deadline
// expiry) into [ErrStoreUnavailable]; everything else passes through.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, revocation.ErrRedisUnavailable),
		errors.Is(err, sessions.ErrRedisUnavailable),
		errors.Is(err, stores.ErrActionRedisUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// Login authenticates an identifier/secret pair and returns a fresh token
// pair. Unknown identifier and wrong secret are indistinguishable to the
// caller.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	email := NormalizeEmail(identifier)

	principal, err := e.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailed, Error: "unknown identifier"})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	ok, err := e.hasher.Verify(secret, principal.SecretHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailed, PrincipalID: principal.ID, Error: "secret mismatch"})
		return TokenPair{}, ErrInvalidCredentials
	}

	if !principal.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailed, PrincipalID: principal.ID, Error: "account disabled"})
		return TokenPair{}, ErrAccountDisabled
	}

	pair, err := e.issuePair(ctx, principal.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, PrincipalID: principal.ID, Success: true})
	return pair, nil
}

// Register creates a new principal with a hashed secret. Emails are
// normalized before lookup and storage.
func (e *Engine) Register(ctx context.Context, email, secret, fullName string) (Principal, error) {
	if e == nil {
		return Principal{}, ErrEngineNotReady
	}

	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return Principal{}, err
	}

	principal, err := e.principals.Create(ctx, CreatePrincipalInput{
		Email:      NormalizeEmail(email),
		SecretHash: hash,
		FullName:   fullName,
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			e.metricInc(MetricRegisterDuplicate)
		}
		return Principal{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: AuditRegister, PrincipalID: principal.ID, Success: true})
	return principal, nil
}

// issuePair mints an access/refresh pair and persists the refresh session
// record. A persist failure invalidates the whole pair; no token leaves this
// function without its durable record.
func (e *Engine) issuePair(ctx context.Context, principalID string) (TokenPair, error) {
	access, _, err := e.tokens.Issue(principalID, token.KindAccess, e.config.Token.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	refresh, claims, err := e.tokens.Issue(principalID, token.KindRefresh, e.config.Token.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	err = e.sessions.Persist(sctx, &sessions.Record{
		TokenID:   claims.ID,
		OwnerID:   principalID,
		CreatedAt: claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, mapStoreErr(err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
