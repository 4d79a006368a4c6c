// Package middleware exposes HTTP middleware around [zuauth.Engine] sessions.
//
// # Middleware
//
//   - [LoadSession]: resolves the session cookie once and stores the session,
//     client IP and User-Agent in the request context.
//   - [RequireUser]: 401 unless the session carries an authenticated user.
//   - [Recover]: converts handler panics into 500 "Unknown error" responses.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// verify proofs or touch the replay guard; those decisions belong to
// Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Decode or write session cookies directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Trust client-supplied forwarding headers.
package middleware
