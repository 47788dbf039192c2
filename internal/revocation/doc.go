// Package revocation provides the durable set of invalidated token IDs with
// an in-process cache layer. Membership in this set always wins over an
// otherwise valid signature and expiry check.
//
// # What this package must NOT do
//
//   - Treat a Redis failure as "not revoked" (fail-closed only).
//   - Import authcore or any sibling internal package.
package revocation
