// Package api serves the login handshake over HTTP.
//
// # Routes
//
//	GET      /api/auth/nonce         issue a challenge (text/plain)
//	POST     /api/auth/authenticate  {"pcd": "...", "type": "..."} → partial ticket
//	GET|POST /api/auth/logout        {"ok": true}
//	GET      /api/auth/user          {"user": "..."} or 401
//	GET      /healthz                session and replay backend ping
//	GET      /metrics                Prometheus text, with [WithMetricsEndpoint]
//
// Failures are written as plain text with [zuauth.HTTPStatus] and
// [zuauth.Reason].
//
// # What this package must NOT do
//
//   - Inspect proofs or sessions beyond what the Engine returns.
package api
