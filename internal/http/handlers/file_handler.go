// Package handlers implements the relay's HTTP endpoints.
//
// One-time file endpoints: raw binary bodies in, octet-stream out, single
// download, same privacy-preserving 404 as the one-time message store.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/blind-relay/internal/totals"
)

// UploadFile stores a one-time binary payload and returns its fresh id. The
// body is read under the route's byte cap; an overrun aborts with 413 and no
// body.
func (a *API) UploadFile(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		fail(c, http.StatusBadRequest, errBadRequest)
		return
	}

	id := a.Files.Put(data)
	a.Totals.Increment(totals.FilesCreated)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DownloadFile consumes a one-time file, returning the raw bytes as
// application/octet-stream.
func (a *API) DownloadFile(c *gin.Context) {
	data, err := a.Files.Take(c.Param("id"))
	if err != nil {
		failUsed(c)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}
