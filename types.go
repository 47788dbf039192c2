package authcore

import (
	"context"
	"strings"
	"time"
)

// SubscriptionTier drives the per-principal usage quota ceiling.
type SubscriptionTier string

const (
	// TierFree is the default tier for new principals.
	TierFree SubscriptionTier = "free"
	// TierBasic is the entry paid tier.
	TierBasic SubscriptionTier = "basic"
	// TierPremium is the top paid tier.
	TierPremium SubscriptionTier = "premium"
)

// Principal is the identity record the engine reads. The identity store owns
// it; this subsystem never writes anything except through the explicit
// [PrincipalProvider] mutators.
type Principal struct {
	ID         string
	Email      string
	SecretHash string
	FullName   string
	Active     bool
	Verified   bool
	Admin      bool
	Tier       SubscriptionTier
}

// CreatePrincipalInput carries the fields for a new identity record. The
// secret arrives already hashed; plaintext never crosses this interface.
type CreatePrincipalInput struct {
	Email      string
	SecretHash string
	FullName   string
}

// PrincipalUpdate is the whitelisted field-update record: one optional per
// mutable field, nil meaning "leave unchanged". Updates are applied through
// an explicit merge, never by reflecting over an arbitrary payload.
type PrincipalUpdate struct {
	Email    *string
	FullName *string
	Active   *bool
	Verified *bool
	Admin    *bool
	Tier     *SubscriptionTier
}

// ApplyPrincipalUpdate merges the set fields of u into p. Provider
// implementations can delegate to it so the whitelist lives in one place.
func ApplyPrincipalUpdate(p *Principal, u PrincipalUpdate) {
	if u.Email != nil {
		p.Email = NormalizeEmail(*u.Email)
	}
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	if u.Verified != nil {
		p.Verified = *u.Verified
	}
	if u.Admin != nil {
		p.Admin = *u.Admin
	}
	if u.Tier != nil {
		p.Tier = *u.Tier
	}
}

// NormalizeEmail lowercases and trims an email so lookup and storage agree
// on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PrincipalProvider is the identity lookup and mutation capability the
// caller must implement to integrate the engine with their identity store.
// GetByEmail receives emails already normalized. Missing records return
// [ErrPrincipalNotFound]; duplicate creation returns [ErrPrincipalExists].
type PrincipalProvider interface {
	GetByID(ctx context.Context, id string) (Principal, error)
	GetByEmail(ctx context.Context, email string) (Principal, error)
	Create(ctx context.Context, input CreatePrincipalInput) (Principal, error)
	UpdateSecretHash(ctx context.Context, id string, newHash string) error
	Update(ctx context.Context, id string, update PrincipalUpdate) (Principal, error)
}

// SecretHasher is the opaque credential-check capability. The engine never
// looks inside hashes; [password.Hasher] is the default implementation.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encodedHash string) (bool, error)
}

// TokenPair is the result of login and rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ActionPurpose names the out-of-band flow an action token belongs to. A
// token minted for one purpose can never redeem another.
type ActionPurpose string

const (
	// PurposeVerifyEmail tokens confirm ownership of an email address.
	PurposeVerifyEmail ActionPurpose = "verify-email"
	// PurposeResetPassword tokens authorize a credential reset.
	PurposeResetPassword ActionPurpose = "reset-password"
)

// RateResult carries gate metadata back to the caller so rejected requests
// can be answered with remaining-count and reset-time headers.
type RateResult struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// SessionInfo is a read-only view of one refresh session record.
type SessionInfo struct {
	TokenID   string
	OwnerID   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}
