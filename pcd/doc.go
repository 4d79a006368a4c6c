// Package pcd defines the contract between the authentication engine and
// proof-carrying data (PCD) implementations, and the [Verifier] adapter that
// turns a serialized proof into a verified [Claim].
//
// Concrete PCD types live in subpackages; zkticket implements the Zupass
// zero-knowledge event ticket.
package pcd
