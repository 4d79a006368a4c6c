// Package rate provides internal primitives used to build Redis-backed rate limit keys,
// errors, and limiter behavior for the proof authentication handshake.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - azr:n:: nonce issuance per-IP
//   - azr:a:: rejected proof submissions per-IP
//
// # What this package must NOT do
//
//   - Decide whether a proof is valid.
//   - Be imported outside the zuauth module.
package rate
