// Package audit implements the relay's append-only ciphertext log.
//
// Three sinks share one interface: an in-memory slice (default, vanishes
// with the process like the rest of the room), a sealed sink that encrypts
// each record under a relay-held log key before storing it, and a sqlite
// sink for operators who want the ciphertext trail to survive restarts.
// No sink ever sees key material or plaintext; the relay has neither.
package audit
