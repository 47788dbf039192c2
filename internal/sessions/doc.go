// Package sessions persists the durable record of every issued refresh token
// and provides the atomic revoked-flag transition that makes rotation
// exactly-once.
//
// # Binary encoding
//
// Records are stored as a fixed-layout binary blob (version, revoked flag,
// created, expires, owner) so the Lua take script can test and flip the
// revoked flag at a fixed offset without parsing the whole record.
//
// # What this package must NOT do
//
//   - Interpret signed tokens or issue replacements (the engine's job).
//   - Import authcore or any sibling internal package.
package sessions
