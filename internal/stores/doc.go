// Package stores provides the replay guard used by proof authentication:
// a keyed record of every accepted proof nullifier.
//
// # Design
//
// Records are versioned and binary-encoded. Acceptance is a single atomic
// check-and-insert (Redis SET NX, or a mutex for the in-memory store), so two
// concurrent requests carrying the same nullifier can never both be accepted.
// Nullifiers are kept forever unless a retention window is configured.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for nullifiers. It
// does NOT verify proofs or make authentication decisions; those belong to
// the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import zuauth or any sibling internal package.
//   - Remove a nullifier claimed by a different session.
package stores
