// Package client drives the login handshake from the browser side.
//
// [Client.Login] fetches a nonce, asks a [Prover] for a ticket proof bound
// to it and posts the proof back. [PopupProver] implements the Zupass popup
// round trip: [ProveURL] builds the prove-screen URL and [PopupBroker]
// matches the returning proof to the waiting login by a random token.
//
// By default a rejected proof is swallowed and the previous ticket is kept
// ([FailSilently]); [FailWithError] surfaces it as an [*AuthError].
package client
