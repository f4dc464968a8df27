// Package ws implements the relay's real-time layer: ephemeral rooms with
// presence and burn semantics, and per-fingerprint chat sockets that receive
// live pushes from the mailbox.
//
// This file wraps a gorilla/websocket connection in a peer with a single
// writer goroutine. The websocket library allows at most one concurrent
// writer per connection, so every outbound frame goes through the peer's
// buffered send channel; a full buffer drops the frame rather than blocking
// the registry (slow consumers catch up through the mailbox or the next
// presence change).
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// frame is one outbound websocket message.
type frame struct {
	messageType int
	data        []byte
}

// peer owns the write side of a websocket connection. Reads stay with the
// registry that accepted the socket.
type peer struct {
	conn    *websocket.Conn
	send    chan frame
	closing sync.Once
	done    chan struct{}
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{
		conn: conn,
		send: make(chan frame, sendBuffer),
		done: make(chan struct{}),
	}
	go p.writePump()
	return p
}

// queue enqueues a frame without blocking. Returns false if the peer's
// buffer is full or the peer is shutting down.
func (p *peer) queue(messageType int, data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame{messageType: messageType, data: data}:
		return true
	default:
		return false
	}
}

// queueJSON marshals v and enqueues it as a text frame.
func (p *peer) queueJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return p.queue(websocket.TextMessage, data)
}

// shutdown drains queued frames, sends a close frame, and closes the
// connection. Idempotent.
func (p *peer) shutdown() {
	p.closing.Do(func() {
		close(p.done)
	})
}

// writePump is the connection's only writer. It flushes the send channel,
// emits keepalive pings, and on shutdown writes a close frame after the
// pending frames have drained.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case f := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			// Drain whatever was queued before the shutdown.
			for {
				select {
				case f := <-p.send:
					p.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if p.conn.WriteMessage(f.messageType, f.data) != nil {
						return
					}
				default:
					p.conn.SetWriteDeadline(time.Now().Add(writeWait))
					p.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
