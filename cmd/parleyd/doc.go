// Command parleyd runs the parley relay: one in-memory room, a websocket
// event endpoint, and the read-only roster/audit/metrics HTTP surface.
//
// The relay forwards sealed envelopes without decryption capability; the
// only state that can outlive the process is the ciphertext audit trail,
// and only when the sqlite audit backend is configured.
package main
