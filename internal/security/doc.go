// Package security summarizes the effective security posture of a
// configured engine.
//
// # Architecture boundaries
//
// BuildReport is a pure function over plain values. It does not read
// configuration or talk to Redis; the root package gathers its input.
//
// # What this package must NOT do
//
//   - Import zuauth or any sibling internal package.
package security
