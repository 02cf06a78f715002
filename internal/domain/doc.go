// Package domain holds the shared types of the parley protocol: the
// participant record, the message envelope, the websocket event schema, and
// the interfaces the relay and client are wired together with.
//
// The relay never holds decryption capability. Every type here is either
// public key material, opaque ciphertext, or plain metadata.
package domain
