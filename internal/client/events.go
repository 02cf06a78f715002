package client

import "parley/internal/domain"

// Event is one occurrence delivered by Client.Next. Concrete types below;
// callers type-switch on them.
type Event interface{ isEvent() }

// Message is a decrypted incoming chat message.
type Message struct {
	From      string
	Plaintext []byte
	Timestamp int64
}

// NotAddressed reports an envelope that carried no wrapped key for us.
// Expected whenever a sender sealed against a snapshot taken before we
// joined; nothing failed.
type NotAddressed struct {
	From string
}

// DecryptFailed reports an envelope addressed to us that did not
// authenticate. Unlike NotAddressed this is worth surfacing: the message
// was corrupted or tampered with in transit.
type DecryptFailed struct {
	From string
}

// RosterUpdate carries a full roster push; the mirror has already been
// reconciled when this event is delivered.
type RosterUpdate struct {
	Participants []domain.Participant
}

// PeerJoined and PeerLeft are the incremental presence notifications.
type PeerJoined struct {
	Username    string
	Fingerprint string
}

type PeerLeft struct {
	Username    string
	Fingerprint string
}

// DeliveryError is the relay's structural rejection of one of our sends.
type DeliveryError struct {
	Message string
}

// PeerKey answers a RequestPublicKey call. Known is false when the relay
// does not currently know the username.
type PeerKey struct {
	Username    string
	PublicKey   string
	Fingerprint string
	Known       bool
}

func (Message) isEvent()       {}
func (NotAddressed) isEvent()  {}
func (DecryptFailed) isEvent() {}
func (RosterUpdate) isEvent()  {}
func (PeerJoined) isEvent()    {}
func (PeerLeft) isEvent()      {}
func (DeliveryError) isEvent() {}
func (PeerKey) isEvent()       {}
