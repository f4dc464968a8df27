// Package ws implements the relay's real-time layer.
//
// This file performs the websocket handshake and classifies the socket by
// query parameter: chatFingerprint registers a chat socket, roomId joins a
// room, and chatFingerprint wins when both are present. A handshake with
// neither is upgraded and closed immediately so the client sees a clean
// websocket close rather than an HTTP error.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// upgrader accepts any origin, matching the permissive CORS policy of the
// HTTP surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler returns the gin handler that upgrades and dispatches websocket
// connections. guard is a process-wide token bucket bounding connection
// churn; exceeding it rejects the handshake with 429 before the upgrade.
func Handler(rooms *Rooms, chat *Chat, guard *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard != nil && !guard.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}

		fp := c.Query("chatFingerprint")
		roomID := c.Query("roomId")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		switch {
		case fp != "":
			chat.Attach(fp, conn)
		case roomID != "":
			rooms.Join(roomID, conn)
		default:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing roomId or chatFingerprint"))
			conn.Close()
		}
	}
}
