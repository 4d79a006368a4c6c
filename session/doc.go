// Package session owns the per-browser session of the login handshake: the
// pending nonce and, after a proof is accepted, the authenticated user.
//
// # Backends
//
// In [ModeRedis] the session is stored as a compact versioned binary record
// and the cookie carries a signed token naming it. In [ModeSealed] the whole
// record is encrypted into the cookie with XChaCha20-Poly1305 and no server
// state is kept. Both modes derive their keys from one configured password
// with HKDF-SHA256.
//
// # Architecture boundaries
//
// This package owns cookies, the [Store] and the [Session] model. It does NOT
// verify proofs or decide authentication outcomes; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import zuauth or jwt (tokens are reached through [TokenCodec]).
//   - Treat a tampered or expired cookie as an error; it loads as a fresh session.
package session
