package domain

import "encoding/json"

// Websocket event names. Client-to-relay: register, send_message,
// request_public_key, leave_chat. Relay-to-client: the rest.
const (
	EventRegister         = "register"
	EventRegisterSuccess  = "register_success"
	EventRegisterError    = "register_error"
	EventParticipants     = "participants"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventSendMessage      = "send_message"
	EventReceiveMessage   = "receive_message"
	EventDeliveryError    = "delivery_error"
	EventRequestPublicKey = "request_public_key"
	EventPublicKey        = "public_key"
	EventLeaveChat        = "leave_chat"
)

// Frame is the envelope of every websocket message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a Frame for the given event.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// RegisterRequest announces a username and public key to the coordinator.
type RegisterRequest struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// RegisterSuccess is the personal acknowledgment sent to a joining
// connection: its accepted identity plus the roster snapshot it can seal
// against immediately.
type RegisterSuccess struct {
	Username     string        `json:"username"`
	Fingerprint  string        `json:"fingerprint"`
	Participants []Participant `json:"participants"`
}

// ErrorPayload carries register_error and delivery_error messages.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Presence is the user_joined / user_left notification payload.
type Presence struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fingerprint"`
}

// RosterPayload is the full-snapshot participants push.
type RosterPayload struct {
	Participants []Participant `json:"participants"`
}

// PublicKeyRequest asks the relay for one participant's key material.
type PublicKeyRequest struct {
	Username string `json:"username"`
}

// PublicKeyPayload answers a PublicKeyRequest. The pointer fields are null
// when the username is unknown.
type PublicKeyPayload struct {
	Username    *string `json:"username"`
	PublicKey   *string `json:"public_key"`
	Fingerprint *string `json:"fingerprint"`
}
