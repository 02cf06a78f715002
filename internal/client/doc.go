// Package client implements the participant side of the protocol: a linear
// join state machine, a shadow copy of the relay's roster with a lazy cache
// of imported public-key handles, and the seal/send/receive flow.
//
// Key material is generated fresh on every join and never leaves the
// process. The mirror converges on the relay's authoritative roster through
// the participants pushes; messages are always sealed against the snapshot
// current at send time.
package client
