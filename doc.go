// Package authcore is a credential and session lifecycle subsystem: signed
// access/refresh token issuance and verification, exactly-once refresh
// rotation, token and session revocation, single-use action tokens for
// out-of-band flows, and a per-identity rate and quota gate.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, MetricsSnapshot, SessionInfo, RateResult).
// All internal coordination, session record encoding, revocation caching,
// single-use consumption, and window counting lives under internal/ and is
// never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Answer "valid" for any token it cannot positively verify; when a
//     durable store is unreachable, verification fails with
//     [ErrStoreUnavailable] rather than guessing.
//
// # Error discipline
//
// The boundary-facing calls Verify and Rotate collapse every rejection
// cause to [ErrUnauthorized] so callers cannot be used as an oracle for why
// a credential failed. The Detailed variants report distinct sentinels for
// trusted callers and audit trails. [ErrStoreUnavailable] is never
// collapsed; it signals an outage, not a bad credential.
package authcore
