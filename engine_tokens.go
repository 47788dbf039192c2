package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/authcore/authcore/internal/sessions"
	"github.com/authcore/authcore/token"
)

// IssueAccess mints a standalone access token for a principal. No session
// record is created; use [Engine.Login] or [Engine.Rotate] when a refresh
// token should accompany it.
func (e *Engine) IssueAccess(ctx context.Context, principalID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	raw, _, err := e.tokens.Issue(principalID, token.KindAccess, e.config.Token.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	e.metricInc(MetricTokensIssued)
	return raw, nil
}

// IssueRefresh mints a refresh token and persists its session record. The
// token is unusable for rotation unless the record write succeeds, so a
// store failure here returns no token.
func (e *Engine) IssueRefresh(ctx context.Context, principalID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	raw, claims, err := e.tokens.Issue(principalID, token.KindRefresh, e.config.Token.RefreshTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigInvalid, err)
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
		return "", mapStoreErr(err)
	}

	e.metricInc(MetricTokensIssued)
	return raw, nil
}

// Verify checks a presented token end to end and returns the principal it
// was issued to. All rejection causes collapse to [ErrUnauthorized] so the
// caller cannot be used as an oracle for why a token failed; only
// [ErrStoreUnavailable] stays distinct because it signals an outage, not a
// bad token. Use [Engine.VerifyDetailed] where the caller is trusted with
// the cause.
func (e *Engine) Verify(ctx context.Context, raw string, kind token.Kind) (string, error) {
	claims, err := e.VerifyDetailed(ctx, raw, kind)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrEngineNotReady) {
			return "", err
		}
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// VerifyDetailed checks a presented token and reports the precise rejection
// cause. Checks run cheapest first: signature, expiry, kind, then the
// revocation store, then (refresh only) the session registry. A token whose
// signature fails is never looked up, so forged input costs no store
// round-trip.
func (e *Engine) VerifyDetailed(ctx context.Context, raw string, kind token.Kind) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	defer func() { e.observeVerify(e.now().Sub(start)) }()

	claims, err := e.tokens.Parse(raw, kind)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, token.ErrKindMismatch):
			return nil, ErrTokenTypeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	revoked, err := e.revocations.Contains(sctx, claims.ID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if revoked {
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricVerifyRevoked)
		return nil, ErrTokenRevoked
	}

	// A sign-out-everywhere sets a per-owner watermark; anything issued at
	// or before it is dead even though its jti was never individually
	// blacklisted.
	revokedAt, found, err := e.revocations.OwnerRevokedAt(sctx, claims.Subject)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if found && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(revokedAt) {
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricVerifyRevoked)
		return nil, ErrTokenRevoked
	}

	if kind == token.KindRefresh {
		rec, err := e.sessions.Get(sctx, claims.ID)
		if err != nil {
			e.metricInc(MetricVerifyFailure)
			switch {
			case errors.Is(err, sessions.ErrNotFound):
				return nil, ErrSessionNotFound
			case errors.Is(err, sessions.ErrExpired):
				return nil, ErrSessionExpired
			case errors.Is(err, sessions.ErrCorrupt):
				return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
			default:
				return nil, mapStoreErr(err)
			}
		}
		if rec.Revoked {
			e.metricInc(MetricVerifyFailure)
			return nil, ErrSessionRevoked
		}
	}

	e.metricInc(MetricVerifySuccess)
	return claims, nil
}

// RevokeToken blacklists a presented token by its identifier for the rest
// of its natural lifetime. The token must still verify structurally; a
// forged or expired token has nothing to revoke. Revoking an
// already-revoked token succeeds.
func (e *Engine) RevokeToken(ctx context.Context, raw string, kind token.Kind) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(raw, kind)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			// Already dead on its own; nothing to record.
			return nil
		case errors.Is(err, token.ErrKindMismatch):
			return ErrTokenTypeMismatch
		default:
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.revocations.Add(sctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(MetricRevocationAdded)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditTokenRevoked,
		PrincipalID: claims.Subject,
		TokenID:     claims.ID,
		Success:     true,
	})
	return nil
}
