// Package handlers implements the relay's HTTP endpoints.
//
// Mailbox endpoints: store-and-forward chat messages with client-driven
// dedup and acknowledgment. messageId is the sender's idempotency key, so a
// transport-level retry of the same message reports success rather than
// storing twice.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/blind-relay/internal/totals"
)

type postMessageRequest struct {
	To               string `json:"to"`
	From             string `json:"from"`
	EncryptedMessage string `json:"encryptedMessage"`
	MessageID        string `json:"messageId"`
}

type ackRequest struct {
	Fingerprint string   `json:"fingerprint"`
	MessageIDs  []string `json:"messageIds"`
}

// PostMessage queues a message for a recipient fingerprint. A repeated
// messageId is an idempotent no-op answered with 200 and duplicate:true;
// a fresh message is stored (and live-pushed when the recipient has a
// socket) and answered with 201.
func (a *API) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if !readJSON(c, &req) {
		return
	}
	if req.To == "" || req.EncryptedMessage == "" || req.MessageID == "" {
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	if a.Mailbox.Enqueue(req.To, req.From, req.EncryptedMessage, req.MessageID) {
		c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true})
		return
	}
	a.Totals.Increment(totals.ChatMessagesSent)
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// ListMessages returns every pending message for a fingerprint in insertion
// order. Reading does not dequeue.
func (a *API) ListMessages(c *gin.Context) {
	msgs := a.Mailbox.Fetch(c.Param("fp"))
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// AckMessages removes the named messages from a fingerprint's mailbox.
func (a *API) AckMessages(c *gin.Context) {
	var req ackRequest
	if !readJSON(c, &req) {
		return
	}
	if req.Fingerprint == "" || req.MessageIDs == nil {
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	a.Mailbox.Ack(req.Fingerprint, req.MessageIDs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
