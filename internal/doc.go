// Package internal contains helpers that are private to zuauth: session
// identifiers and challenge nonces.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - rate: Redis-backed per-IP budgets for nonce and proof requests
//   - security: security posture report
//   - stores: the nullifier replay guard
//
// # What this package must NOT do
//
//   - Export types that appear in the public zuauth API.
//   - Be imported by any package outside the zuauth module.
package internal
