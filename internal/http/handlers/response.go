// Package handlers implements the relay's HTTP endpoints.
//
// This file defines the response conventions shared by every endpoint. Error
// responses are a flat JSON object {"error":"<label>"} with a stable label
// (see errors.go). The one exception is the one-time stores' not-found
// answer, {"used":true}, which does not distinguish "never existed" from
// "already consumed": an observer must not be able to probe whether an id was
// ever live.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// fail aborts the request with the relay's flat error body.
func fail(c *gin.Context, status int, label string) {
	c.AbortWithStatusJSON(status, gin.H{"error": label})
}

// failUsed is the one-time stores' uniform not-found answer.
func failUsed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"used": true})
}

// readJSON binds the request body into v. A body-cap overrun aborts with
// 413 and no body (the cap middleware already destroyed the stream); any
// other bind failure is a 400. Returns false when the request was aborted.
func readJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return false
		}
		fail(c, http.StatusBadRequest, errBadRequest)
		return false
	}
	return true
}
