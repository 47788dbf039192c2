package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/authcore/authcore/internal/sessions"
	"github.com/authcore/authcore/token"
)

// Rotate exchanges a refresh token for a fresh access/refresh pair,
// retiring the presented one. Rejection causes collapse to
// [ErrUnauthorized]; see [Engine.RotateDetailed] for the distinct
// sentinels.
func (e *Engine) Rotate(ctx context.Context, rawRefresh string) (TokenPair, error) {
	pair, err := e.RotateDetailed(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrEngineNotReady) ||
			errors.Is(err, ErrConfigInvalid) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrUnauthorized
	}
	return pair, nil
}

// RotateDetailed performs one refresh rotation with exactly-once semantics.
// The session record transition not-revoked to revoked is a single atomic
// check-and-set in the registry, so among any number of concurrent calls
// presenting the same token precisely one receives a new pair; the rest see
// [ErrSessionRevoked]. A replay of an already rotated token is the same
// signal and is counted separately because it can indicate token theft.
func (e *Engine) RotateDetailed(ctx context.Context, rawRefresh string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(rawRefresh, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		switch {
		case errors.Is(err, token.ErrExpired):
			return TokenPair{}, ErrTokenExpired
		case errors.Is(err, token.ErrKindMismatch):
			return TokenPair{}, ErrTokenTypeMismatch
		default:
			return TokenPair{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	revoked, err := e.revocations.Contains(sctx, claims.ID)
	if err != nil {
		return TokenPair{}, mapStoreErr(err)
	}
	if revoked {
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, ErrTokenRevoked
	}

	rec, err := e.sessions.Rotate(sctx, claims.ID)
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			e.metricInc(MetricRotateFailure)
			return TokenPair{}, ErrSessionNotFound
		case errors.Is(err, sessions.ErrExpired):
			e.metricInc(MetricRotateFailure)
			return TokenPair{}, ErrSessionExpired
		case errors.Is(err, sessions.ErrRevoked):
			e.metricInc(MetricRotateReplayed)
			e.emitAudit(ctx, AuditEvent{
				EventType:   AuditRotateReplayed,
				PrincipalID: claims.Subject,
				TokenID:     claims.ID,
				Error:       "refresh token presented after rotation",
			})
			return TokenPair{}, ErrSessionRevoked
		case errors.Is(err, sessions.ErrCorrupt):
			e.metricInc(MetricRotateFailure)
			return TokenPair{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		default:
			return TokenPair{}, mapStoreErr(err)
		}
	}

	// We won the transition. Blacklist the retired jti so the old token also
	// fails plain verification for the rest of its signed lifetime.
	if err := e.revocations.Add(sctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return TokenPair{}, mapStoreErr(err)
	}
	e.metricInc(MetricRevocationAdded)

	principal, err := e.principals.GetByID(ctx, rec.OwnerID)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, err
	}
	if !principal.Active {
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, ErrAccountDisabled
	}

	pair, err := e.issuePair(ctx, rec.OwnerID)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, err
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditRotate,
		PrincipalID: rec.OwnerID,
		TokenID:     claims.ID,
		Success:     true,
	})
	return pair, nil
}

// Logout retires the presented refresh token. Idempotent: an expired,
// unknown, or already retired token is treated as already logged out.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(rawRefresh, token.KindRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil
		}
		return ErrUnauthorized
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	_, err = e.sessions.Revoke(sctx, claims.ID)
	switch {
	case err == nil:
		if err := e.revocations.Add(sctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return mapStoreErr(err)
		}
	case errors.Is(err, sessions.ErrRevoked),
		errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, sessions.ErrExpired):
		// Already gone one way or another.
	default:
		return mapStoreErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditLogout,
		PrincipalID: claims.Subject,
		TokenID:     claims.ID,
		Success:     true,
	})
	return nil
}

// LogoutWithAccess retires a refresh token and blacklists its companion
// access token in the same call, so the pair dies together instead of the
// access token lingering until expiry.
func (e *Engine) LogoutWithAccess(ctx context.Context, rawRefresh, rawAccess string) error {
	if err := e.Logout(ctx, rawRefresh); err != nil {
		return err
	}
	if rawAccess == "" {
		return nil
	}
	err := e.RevokeToken(ctx, rawAccess, token.KindAccess)
	if err != nil && !errors.Is(err, ErrStoreUnavailable) {
		// A bad access token does not undo the completed logout.
		return nil
	}
	return err
}

// LogoutAll signs a principal out everywhere: every live refresh session is
// revoked and blacklisted, and a per-owner watermark invalidates all access
// tokens issued up to now. Returns how many refresh sessions were retired.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if principalID == "" {
		return 0, ErrPrincipalNotFound
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	recs, err := e.sessions.RevokeAll(sctx, principalID)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	for _, rec := range recs {
		expiry := timeFromUnix(rec.ExpiresAt)
		if err := e.revocations.Add(sctx, rec.TokenID, expiry); err != nil {
			return len(recs), mapStoreErr(err)
		}
	}

	// Retain the watermark for one access lifetime plus leeway; after that
	// every token it could have caught has expired on its own.
	retain := e.config.Token.AccessTTL + e.config.Token.Leeway
	if err := e.revocations.RevokeOwner(sctx, principalID, e.now(), retain); err != nil {
		return len(recs), mapStoreErr(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditLogoutAll,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"sessions": fmt.Sprintf("%d", len(recs))},
	})
	return len(recs), nil
}

// Session reports the registry state of one refresh session by token
// identifier.
func (e *Engine) Session(ctx context.Context, tokenID string) (SessionInfo, error) {
	if e == nil {
		return SessionInfo{}, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec, err := e.sessions.Get(sctx, tokenID)
	if err != nil {
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			return SessionInfo{}, ErrSessionNotFound
		case errors.Is(err, sessions.ErrExpired):
			return SessionInfo{}, ErrSessionExpired
		default:
			return SessionInfo{}, mapStoreErr(err)
		}
	}

	return SessionInfo{
		TokenID:   rec.TokenID,
		OwnerID:   rec.OwnerID,
		CreatedAt: timeFromUnix(rec.CreatedAt),
		ExpiresAt: timeFromUnix(rec.ExpiresAt),
		Revoked:   rec.Revoked,
	}, nil
}

// SessionCount reports how many refresh sessions, live or retired but not
// yet pruned, a principal currently has in the registry.
func (e *Engine) SessionCount(ctx context.Context, principalID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.sessions.OwnerSessionCount(sctx, principalID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return n, nil
}
