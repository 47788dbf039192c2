package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authcore/authcore/internal"
	"github.com/authcore/authcore/internal/stores"
)

func purposeCode(p ActionPurpose) (uint8, bool) {
	switch p {
	case PurposeVerifyEmail:
		return stores.PurposeVerifyEmail, true
	case PurposeResetPassword:
		return stores.PurposeResetPassword, true
	default:
		return 0, false
	}
}

func (e *Engine) actionTTL(p ActionPurpose) time.Duration {
	switch p {
	case PurposeResetPassword:
		return e.config.ActionToken.ResetPasswordTTL
	default:
		return e.config.ActionToken.VerifyEmailTTL
	}
}

// CreateActionToken mints a single-use token bound to one principal and one
// purpose. A non-positive ttl falls back to the configured lifetime for the
// purpose. The opaque string is returned exactly once; only a hash of its
// secret half is stored, so a store compromise yields nothing redeemable.
func (e *Engine) CreateActionToken(ctx context.Context, principalID string, purpose ActionPurpose, ttl time.Duration) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	code, ok := purposeCode(purpose)
	if !ok {
		return "", fmt.Errorf("%w: unknown purpose %q", ErrActionTokenInvalid, purpose)
	}
	if principalID == "" {
		return "", ErrPrincipalNotFound
	}

	id, err := internal.NewActionID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewActionSecret()
	if err != nil {
		return "", err
	}

	if ttl <= 0 {
		ttl = e.actionTTL(purpose)
	}
	record := &stores.ActionRecord{
		OwnerID:    principalID,
		SecretHash: internal.HashActionSecret(secret),
		Purpose:    code,
		ExpiresAt:  e.now().Add(ttl).Unix(),
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.actions.Save(sctx, id.String(), record, ttl); err != nil {
		return "", mapStoreErr(err)
	}

	e.metricInc(MetricActionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditActionCreated,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"purpose": string(purpose)},
	})
	return internal.EncodeActionToken(id, secret), nil
}

// ConsumeActionToken redeems a single-use token for the stated purpose and
// returns the principal it was bound to. Redemption is exactly-once: the
// used flag flips in one atomic check-and-set, so of any number of
// concurrent presentations precisely one succeeds and the rest see
// [ErrActionTokenUsed]. A token presented for the wrong purpose is reported
// unknown and stays redeemable for its real purpose.
func (e *Engine) ConsumeActionToken(ctx context.Context, raw string, purpose ActionPurpose) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	code, ok := purposeCode(purpose)
	if !ok {
		return "", fmt.Errorf("%w: unknown purpose %q", ErrActionTokenInvalid, purpose)
	}

	id, secret, err := internal.DecodeActionToken(raw)
	if err != nil {
		e.metricInc(MetricActionConsumeFailure)
		return "", fmt.Errorf("%w: %v", ErrActionTokenInvalid, err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	record, err := e.actions.Consume(sctx, id.String(), internal.HashActionSecret(secret), code, e.config.ActionToken.MaxAttempts)
	if err != nil {
		e.metricInc(MetricActionConsumeFailure)
		switch {
		case errors.Is(err, stores.ErrActionNotFound):
			return "", ErrActionTokenInvalid
		case errors.Is(err, stores.ErrActionExpired):
			return "", ErrActionTokenExpired
		case errors.Is(err, stores.ErrActionUsed):
			return "", ErrActionTokenUsed
		case errors.Is(err, stores.ErrActionSecretMismatch),
			errors.Is(err, stores.ErrActionAttemptsExceeded):
			return "", ErrActionTokenInvalid
		default:
			return "", mapStoreErr(err)
		}
	}

	e.metricInc(MetricActionConsumed)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditActionConsumed,
		PrincipalID: record.OwnerID,
		Success:     true,
		Metadata:    map[string]string{"purpose": string(purpose)},
	})
	return record.OwnerID, nil
}

// RequestPasswordReset mints a reset token for the account behind an email
// address. To avoid confirming which addresses exist, an unknown address
// returns an empty token and no error; callers deliver the token out of
// band either way.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	principal, err := e.principals.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", nil
		}
		return "", err
	}

	return e.CreateActionToken(ctx, principal.ID, PurposeResetPassword, 0)
}

// ConfirmPasswordReset redeems a reset token, installs the new secret, and
// signs the principal out everywhere so credentials stolen before the reset
// stop working.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	hash, err := e.hasher.Hash(newSecret)
	if err != nil {
		return err
	}

	principalID, err := e.ConsumeActionToken(ctx, rawToken, PurposeResetPassword)
	if err != nil {
		return err
	}

	if err := e.principals.UpdateSecretHash(ctx, principalID, hash); err != nil {
		return err
	}
	if _, err := e.LogoutAll(ctx, principalID); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditPasswordReset,
		PrincipalID: principalID,
		Success:     true,
	})
	return nil
}

// RequestEmailVerification mints a verify-email token for a principal.
func (e *Engine) RequestEmailVerification(ctx context.Context, principalID string) (string, error) {
	return e.CreateActionToken(ctx, principalID, PurposeVerifyEmail, 0)
}

// ConfirmEmailVerification redeems a verify-email token and marks the
// principal verified. Verifying an already verified principal succeeds.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, rawToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	principalID, err := e.ConsumeActionToken(ctx, rawToken, PurposeVerifyEmail)
	if err != nil {
		return "", err
	}

	verified := true
	if _, err := e.principals.Update(ctx, principalID, PrincipalUpdate{Verified: &verified}); err != nil {
		return "", err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditEmailVerified,
		PrincipalID: principalID,
		Success:     true,
	})
	return principalID, nil
}
