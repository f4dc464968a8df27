// Package handlers implements the relay's HTTP endpoints.
//
// One-time message endpoints. The stored ciphertext is opaque; the server
// neither validates nor decodes it.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/blind-relay/internal/totals"
)

type otmRequest struct {
	Ciphertext string `json:"ciphertext"`
}

// CreateOTM stores a one-time ciphertext and returns its fresh id.
func (a *API) CreateOTM(c *gin.Context) {
	var req otmRequest
	if !readJSON(c, &req) {
		return
	}
	if req.Ciphertext == "" {
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	id := a.OTM.Put([]byte(req.Ciphertext))
	a.Totals.Increment(totals.OTMCreated)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// TakeOTM consumes a one-time ciphertext. Whatever the reason the entry is
// unavailable (unknown, consumed, expired), the answer is the same 404
// {"used":true}.
func (a *API) TakeOTM(c *gin.Context) {
	payload, err := a.OTM.Take(c.Param("id"))
	if err != nil {
		failUsed(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ciphertext": string(payload)})
}
