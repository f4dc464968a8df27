// Package handlers implements the relay's HTTP endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/blind-relay/internal/store"
	"github.com/tbourn/blind-relay/internal/totals"
)

// API bundles the stores an endpoint needs. All dependencies are injected;
// the zero value is not usable.
type API struct {
	OTM     *store.OneTime
	Files   *store.OneTime
	Invites *store.Invites
	Mailbox *store.Mailbox
	Totals  *totals.Sink
}

// New constructs the endpoint set.
func New(otm, files *store.OneTime, invites *store.Invites, mbox *store.Mailbox, sink *totals.Sink) *API {
	return &API{
		OTM:     otm,
		Files:   files,
		Invites: invites,
		Mailbox: mbox,
		Totals:  sink,
	}
}

// Health reports liveness.
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics returns the persisted usage totals. 503 when no sink is
// configured, 500 when the sink cannot be read.
func (a *API) Metrics(c *gin.Context) {
	snap, err := a.Totals.Read(c.Request.Context())
	if err != nil {
		if err == totals.ErrDisabled {
			fail(c, http.StatusServiceUnavailable, errMetricsDisabled)
			return
		}
		fail(c, http.StatusInternalServerError, errMetricsRead)
		return
	}
	c.JSON(http.StatusOK, snap)
}
