package types

import (
	"encoding/json"
	"time"
)

// Real-time event names exchanged over the websocket envelope
// ARCHITECTURAL DISCOVERY: Event names are part of the client contract and must
// stay byte-identical to what browser clients already emit and listen for
const (
	EventRegister          = "register"
	EventSendMessage       = "sendMessage"
	EventSeenMessage       = "seenMessage"
	EventUpdateOnlineUsers = "updateOnlineUsers"
	EventReceiveMessage    = "receiveMessage"
)

// Identity is a durable (name, id) pair created on first join
// FUNCTIONAL DISCOVERY: Identity is immutable after creation and never deleted
// by the relay, so it is safe to cache in memory for the process lifetime
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session binds an identity to one live transport handle.
// The handle never crosses the wire.
type Session struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a persisted direct message
// FUNCTIONAL DISCOVERY: Messages are never mutated after creation, only deleted
// by acknowledgment or by the retention sweep
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

// Envelope is the frame format for every websocket message in both directions
// TECHNICAL DISCOVERY: Data is kept raw on the inbound path so the dispatcher
// decodes it into the payload type selected by Event
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is the write-side counterpart of Envelope with an already typed payload
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RegisterPayload announces the identity owning a connection
type RegisterPayload struct {
	ID   string `json:"id" validate:"required,max=128"`
	Name string `json:"name" validate:"max=200"`
}

// SendMessagePayload is a client request to deliver a message
type SendMessagePayload struct {
	SenderID   string `json:"senderId" validate:"required,max=128"`
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
	Body       string `json:"body" validate:"required,max=65536"`
}

// SeenMessagePayload acknowledges a batch of delivered messages
type SeenMessagePayload struct {
	MessageIDs []string `json:"messageIds"`
}

// JoinRequest is the body of POST /join
type JoinRequest struct {
	Username string `json:"username" validate:"required,max=200"`
}

// DirectoryPage is one page of the online-user directory
type DirectoryPage struct {
	Total int       `json:"total"`
	Users []Session `json:"users"`
}
