// Package token mints and parses the signed credentials used by the engine:
// short-lived access tokens and long-lived refresh tokens, both carrying a
// typed claims payload (subject, kind, iat, exp, jti).
//
// # Verification order
//
// Parse establishes signature validity first, then expiry, then the kind
// claim. The order is fixed: no claim field is trusted before the signature
// holds. Revocation is out of scope here: the jti is handed to the caller,
// which consults the revocation store.
//
// # What this package must NOT do
//
//   - Perform I/O: issuance and parsing are CPU-bound fast paths.
//   - Import authcore or any internal package.
//   - Persist anything; access tokens are stateless.
package token
