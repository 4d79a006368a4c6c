// Package zuauth authenticates web visitors with a zero-knowledge event
// ticket proof (PCD) produced by the Zupass passport.
//
// The handshake has three steps: the client fetches a nonce
// ([Engine.IssueNonce]), proves ticket ownership out of band with the nonce
// as watermark, and submits the proof ([Engine.Authenticate]). An accepted
// proof records its nullifier so it can never log in twice, and the session
// carries the derived user until [Engine.Logout].
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// zuauth is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (AuthResult, MetricsSnapshot, etc.). All internal coordination (flow orchestration,
// nullifier storage, rate limiting, audit dispatch) lives under internal/ and is never
// exported. Proof formats live in pcd/, session transport in session/, HTTP handlers
// in api/.
//
// # What this package must NOT do
//
//   - Set the session user before every proof check has passed.
//   - Mutate the session or the nullifier store on a rejected proof.
//   - Import any sub-package that re-imports zuauth (no import cycles).
package zuauth
