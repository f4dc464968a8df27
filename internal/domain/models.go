// Package domain defines the wire-level types the relay stores and forwards.
// Every payload field is opaque ciphertext produced by clients; the server
// never inspects or validates the content of these values.
package domain

// Message is a single store-and-forward mailbox entry. The ID is chosen by
// the sending client and doubles as its idempotency key: a mailbox never
// holds two messages with the same ID.
//
// Fields:
//   - ID: client-chosen identifier, unique per mailbox.
//   - From: sender fingerprint (opaque, may be empty).
//   - Payload: encrypted message body, opaque to the server.
//   - Timestamp: server receive time in Unix milliseconds; insertion order
//     within a mailbox follows this value.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// InviteView is the read model of an invite returned to clients. It exposes
// the creator's bundle both before and after the claim; ClaimerBundle is nil
// until the invite has been claimed and immutable afterwards.
type InviteView struct {
	InviteID        string  `json:"inviteId"`
	PublicKeyBundle string  `json:"publicKeyBundle"`
	Claimed         bool    `json:"claimed"`
	ClaimerBundle   *string `json:"claimerBundle"`
}
