// Package stores provides the Redis-backed registry of single-use action
// records: server-stored bearer tokens for email verification and password
// reset.
//
// # Design
//
// Each record is a versioned, binary-encoded blob with a TTL. Consume uses a
// WATCH/MULTI optimistic transaction with automatic retry on contention, so
// the used-flag transition is an atomic check-and-set per key. Secret
// comparisons are constant-time. Consumed records stay until their natural
// TTL so replays read as "already used", not "not found".
//
// # What this package must NOT do
//
//   - Generate tokens (internal owns the id/secret material).
//   - Import authcore or any sibling internal package.
//   - Log or expose plaintext secrets.
package stores
