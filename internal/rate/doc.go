// Package rate provides the Redis counter mechanism shared by the two gate
// policies: per-identity request-rate windows and per-principal calendar
// usage quotas.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - "arl:" request rate per identity
//   - "aqt:" usage quota per owner and calendar period
//
// # What this package must NOT do
//
//   - Choose limits (policy lives in the engine config).
//   - Be imported outside this module.
package rate
