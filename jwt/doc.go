// Package jwt signs and verifies the session token carried by the session
// cookie when sessions are kept server-side.
package jwt
