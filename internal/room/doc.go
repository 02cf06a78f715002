// Package room implements the relay-side heart of the protocol: the
// authoritative roster store, the session coordinator that admits and removes
// participants, and the fan-out of sealed envelopes.
//
// Everything that mutates the roster or broadcasts to it runs under one
// mutex per room, so "admit the sender" and "announce the sender" are
// observably atomic to every other participant.
package room
