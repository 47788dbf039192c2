package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates the two signed credential families. The value is
// embedded in the payload as the "type" claim and checked on parse.
type Kind string

const (
	// KindAccess marks short-lived, stateless per-request credentials.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived credentials tracked by the session registry.
	KindRefresh Kind = "refresh"
)

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidSignature is returned for malformed input or a signature that
	// does not verify. Signature validity is the trust anchor; no other claim
	// field is inspected until it holds.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired is returned when the token is past its expiry. A token whose
	// expiry equals the current instant is already expired.
	ErrExpired = errors.New("token expired")
	// ErrKindMismatch is returned when a structurally valid token carries the
	// wrong "type" claim for the call site.
	ErrKindMismatch = errors.New("token kind mismatch")
)

// Config defines signing material and parse constraints for a [Manager].
//
// Config instances are intended to be configured during initialization and then
// treated as immutable.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the typed payload of every signed token: subject, kind, issuance
// and expiry instants, and a globally unique token ID (jti) used as the
// revocation key. It is produced once by [Manager.Parse]; callers never
// re-parse the raw payload.
type Claims struct {
	Kind Kind `json:"type"`
	jwt.RegisteredClaims
}

// TokenID returns the jti claim.
func (c *Claims) TokenID() string {
	return c.ID
}

// Manager mints and parses signed tokens. It holds the process-wide signing
// key and is safe for concurrent use after construction.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the signing configuration and returns a [Manager].
// An absent or unparseable key is a configuration error and fails here, never
// at issuance time.
func NewManager(cfg Config, now func() time.Time) (*Manager, error) {
	if now == nil {
		now = time.Now
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, now: now}, nil
}

// Issue mints a signed token of the given kind for subject, valid for ttl.
// The jti is freshly generated and globally unique; issuance performs no
// persistence and no I/O beyond CPU-bound signing.
func (m *Manager) Issue(subject string, kind Kind, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("empty subject")
	}
	if ttl <= 0 {
		return "", nil, errors.New("non-positive ttl")
	}

	now := m.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	tok := jwt.NewWithClaims(m.method(), claims)

	signKey, err := m.signKey()
	if err != nil {
		return "", nil, err
	}

	raw, err := tok.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}

	return raw, claims, nil
}

// Parse verifies signature and expiry, then checks the kind claim. Checks
// short-circuit in that order: a failed signature is terminal before any
// other claim field is trusted. Revocation is the caller's concern; Parse is
// purely stateless.
func (m *Manager) Parse(raw string, expected Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrInvalidSignature
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidSignature
	}

	// The library treats exp == now as still valid; the boundary counts as
	// expired here.
	if claims.ExpiresAt == nil || !m.now().Before(claims.ExpiresAt.Time.Add(m.config.Leeway)) {
		return nil, ErrExpired
	}

	if claims.Kind != expected {
		return nil, ErrKindMismatch
	}

	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
