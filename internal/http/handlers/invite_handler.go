// Package handlers implements the relay's HTTP endpoints.
//
// Invite endpoints: the two-phase key-bundle rendezvous. Bundles are opaque
// key material; the server stores and returns them without interpretation.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/blind-relay/internal/store"
	"github.com/tbourn/blind-relay/internal/totals"
)

type createInviteRequest struct {
	InviteID        string `json:"inviteId"`
	PublicKeyBundle string `json:"publicKeyBundle"`
	ExpiresAt       int64  `json:"expiresAt"`
}

type claimInviteRequest struct {
	ClaimerBundle string `json:"claimerBundle"`
}

// CreateInvite deposits a creator bundle under a client-chosen invite id.
// 409 when the id is already taken.
func (a *API) CreateInvite(c *gin.Context) {
	var req createInviteRequest
	if !readJSON(c, &req) {
		return
	}
	if req.InviteID == "" || req.PublicKeyBundle == "" {
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	if err := a.Invites.Create(req.InviteID, req.PublicKeyBundle, req.ExpiresAt); err != nil {
		fail(c, http.StatusConflict, errConflict)
		return
	}
	a.Totals.Increment(totals.ChatInvitesCreated)
	c.JSON(http.StatusCreated, gin.H{"success": true, "inviteId": req.InviteID})
}

// GetInvite returns the invite's read model. Reads are permitted pre- and
// post-claim and never change state.
func (a *API) GetInvite(c *gin.Context) {
	view, err := a.Invites.Get(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, errNotFound)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ClaimInvite performs the one-shot claim transition, exchanging the
// claimer's bundle for the creator's. 404 for unknown or expired ids, 409
// when the invite was already claimed.
func (a *API) ClaimInvite(c *gin.Context) {
	var req claimInviteRequest
	if !readJSON(c, &req) {
		return
	}
	if req.ClaimerBundle == "" {
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	creatorBundle, err := a.Invites.Claim(c.Param("id"), req.ClaimerBundle)
	switch {
	case errors.Is(err, store.ErrGone):
		fail(c, http.StatusNotFound, errNotFound)
	case errors.Is(err, store.ErrInviteClaimed):
		fail(c, http.StatusConflict, errConflict)
	case err != nil:
		fail(c, http.StatusInternalServerError, errBadRequest)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "creatorBundle": creatorBundle})
	}
}
