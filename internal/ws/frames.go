package ws

import "github.com/tbourn/blind-relay/internal/domain"

// Server-emitted and server-recognized frame shapes. Anything that does not
// match one of these is opaque client traffic and is relayed verbatim.

type presenceFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

type roomDestroyedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// controlFrame is the only inbound text frame the room path interprets.
// It must name this room's id to trigger the burn.
type controlFrame struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	RoomID string `json:"roomId"`
}

type connectedFrame struct {
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
}

type newMessageFrame struct {
	Type    string      `json:"type"`
	Message pushPayload `json:"message"`
}

// pushPayload is the live-push view of a queued message. The stored
// timestamp is not part of the push; clients that need it fetch the mailbox.
type pushPayload struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Payload string `json:"payload"`
}

// ackFrame is the inbound chat-socket frame that drops messages from the
// caller's mailbox.
type ackFrame struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"messageIds"`
}

func newMessagePush(msg domain.Message) newMessageFrame {
	return newMessageFrame{
		Type: "newMessage",
		Message: pushPayload{
			ID:      msg.ID,
			From:    msg.From,
			Payload: msg.Payload,
		},
	}
}
