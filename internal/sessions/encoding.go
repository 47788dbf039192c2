package sessions

import (
	"encoding/binary"
	"errors"
)

const (
	recordVersionV1 = 1

	// Fixed layout so the rotation script can test and flip the revoked flag
	// without a full parse: version(1) revoked(1) created(8) expires(8)
	// ownerLen(2) owner(n).
	offsetRevoked   = 1
	offsetCreated   = 2
	offsetExpires   = 10
	offsetOwnerLen  = 18
	offsetOwner     = 20
	maxOwnerIDBytes = 65535
)

var errRecordCorrupt = errors.New("session record corrupt")

// Record is the durable state of one issued refresh token, keyed by its jti.
// Records are mutated (revoked flips false to true) but never rewritten;
// pruning happens through the key TTL once the token would have expired.
type Record struct {
	TokenID   string
	OwnerID   string
	CreatedAt int64
	ExpiresAt int64
	Revoked   bool
}

func encodeRecord(rec *Record) ([]byte, error) {
	if len(rec.OwnerID) == 0 {
		return nil, errors.New("session record missing owner")
	}
	if len(rec.OwnerID) > maxOwnerIDBytes {
		return nil, errors.New("session record owner id too long")
	}

	buf := make([]byte, offsetOwner+len(rec.OwnerID))
	buf[0] = recordVersionV1
	if rec.Revoked {
		buf[offsetRevoked] = 1
	}
	binary.BigEndian.PutUint64(buf[offsetCreated:], uint64(rec.CreatedAt))
	binary.BigEndian.PutUint64(buf[offsetExpires:], uint64(rec.ExpiresAt))
	binary.BigEndian.PutUint16(buf[offsetOwnerLen:], uint16(len(rec.OwnerID)))
	copy(buf[offsetOwner:], rec.OwnerID)

	return buf, nil
}

func decodeRecord(data []byte) (*Record, error) {
	if len(data) < offsetOwner {
		return nil, errRecordCorrupt
	}
	if data[0] != recordVersionV1 {
		return nil, errRecordCorrupt
	}

	ownerLen := int(binary.BigEndian.Uint16(data[offsetOwnerLen:]))
	if len(data) != offsetOwner+ownerLen || ownerLen == 0 {
		return nil, errRecordCorrupt
	}

	return &Record{
		Revoked:   data[offsetRevoked] != 0,
		CreatedAt: int64(binary.BigEndian.Uint64(data[offsetCreated:])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[offsetExpires:])),
		OwnerID:   string(data[offsetOwner:]),
	}, nil
}
