package authcore

import "errors"

var (
	// ErrUnauthorized is the only failure an untrusted caller sees from the
	// verification path. Expired, forged, mistyped, and revoked all collapse
	// to it at the boundary so the distinctions cannot be used as an oracle.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers both unknown identifier and wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is returned by principal providers for a missing
	// identity record.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalExists is returned on registration with a taken email.
	ErrPrincipalExists = errors.New("principal already exists")
	// ErrAccountDisabled is returned when the principal is not active.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountUnverified is returned when an operation requires a verified
	// email address.
	ErrAccountUnverified = errors.New("account unverified")

	// ErrTokenInvalid is the detailed form of a malformed token or failed
	// signature.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is the detailed form of a past-expiry token. The
	// boundary instant counts as expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenTypeMismatch is the detailed form of a valid token presented
	// where the other kind was expected.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrTokenRevoked is the detailed form of a jti found in the revocation
	// store. Revocation wins over an otherwise valid token.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound means no refresh session record exists for the jti.
	ErrSessionNotFound = errors.New("refresh session not found")
	// ErrSessionExpired means the refresh session record is past its expiry.
	ErrSessionExpired = errors.New("refresh session expired")
	// ErrSessionRevoked means the refresh session was already revoked. The
	// loser of a rotation race observes this.
	ErrSessionRevoked = errors.New("refresh session revoked")

	// ErrActionTokenInvalid covers absent records, malformed tokens, wrong
	// secrets, and wrong purposes. Deliberately one sentinel: none of those
	// cases should be distinguishable to the presenter.
	ErrActionTokenInvalid = errors.New("invalid action token")
	// ErrActionTokenExpired is returned for a recognized but expired token.
	ErrActionTokenExpired = errors.New("action token expired")
	// ErrActionTokenUsed is returned when the token was already consumed.
	ErrActionTokenUsed = errors.New("action token already used")

	// ErrQuotaExceeded is returned when the calendar-period usage ceiling is
	// reached. Not retryable until the period rolls over.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrRateLimited is returned when the request-rate window is full.
	// Retryable; the accompanying [RateResult] carries the reset time.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable means a durable store could not be reached. The
	// system fails closed: an unreachable revocation store is never treated
	// as "not revoked".
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConfigInvalid is returned by Build for unusable configuration,
	// including absent or invalid signing keys.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
