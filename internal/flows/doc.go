// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueNonce, RunAuthenticate, RunLogout) accepts a
// typed dependency struct and returns results without side-effects beyond
// those dependencies. This keeps the handshake state machine testable with
// fake verifiers and in-memory stores, and keeps the Engine type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the proof verifier, nullifier store,
// session persistence, rate limiter, audit dispatcher, and metrics. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import zuauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
