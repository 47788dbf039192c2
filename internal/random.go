package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// Action tokens are bearer secrets looked up server-side, never signed. The
// wire form is base64url(id || secret): a 16-byte lookup ID plus a 32-byte
// secret, of which only the sha256 is stored.
const (
	actionIDSize       = 16
	actionSecretSize   = 32
	actionTokenRawSize = actionIDSize + actionSecretSize
)

type ActionID [actionIDSize]byte

func NewActionID() (ActionID, error) {
	var id ActionID
	_, err := rand.Read(id[:])
	return id, err
}

func (a ActionID) String() string {
	return base64.RawURLEncoding.EncodeToString(a[:])
}

func ParseActionID(s string) (ActionID, error) {
	var id ActionID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid action id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewActionSecret() ([actionSecretSize]byte, error) {
	var secret [actionSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashActionSecret(secret [actionSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

func HashActionBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

func EncodeActionToken(id ActionID, secret [actionSecretSize]byte) string {
	var raw [actionTokenRawSize]byte
	copy(raw[:actionIDSize], id[:])
	copy(raw[actionIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeActionToken(token string) (ActionID, [actionSecretSize]byte, error) {
	var (
		id     ActionID
		secret [actionSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != actionTokenRawSize {
		return id, secret, errors.New("invalid action token size")
	}

	copy(id[:], raw[:actionIDSize])
	copy(secret[:], raw[actionIDSize:])

	return id, secret, nil
}
