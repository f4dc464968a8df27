// Package ws implements the relay's real-time layer.
//
// This file contains the chat socket registry: at most one live socket per
// fingerprint, registered at handshake time and used by the mailbox for
// best-effort live pushes. Registration is last-writer-wins; a newer socket
// silently replaces the old one. A closing socket only clears its map entry
// if it is still the mapped one, so a stale close can never evict its
// replacement.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/blind-relay/internal/domain"
	"github.com/tbourn/blind-relay/internal/store"
)

// Chat is the live chat socket map. It implements store.Notifier so the
// mailbox can push queued messages to connected recipients.
type Chat struct {
	mu    sync.Mutex
	socks map[string]*peer
	mbox  *store.Mailbox
}

var _ store.Notifier = (*Chat)(nil)

// NewChat constructs an empty chat registry bound to the mailbox it serves
// acks to.
func NewChat(mbox *store.Mailbox) *Chat {
	return &Chat{
		socks: make(map[string]*peer),
		mbox:  mbox,
	}
}

// Attach registers conn as the live socket for fp and services it until it
// closes. Blocks for the lifetime of the connection.
func (ch *Chat) Attach(fp string, conn *websocket.Conn) {
	p := newPeer(conn)

	ch.mu.Lock()
	old := ch.socks[fp]
	ch.socks[fp] = p
	ch.mu.Unlock()

	if old != nil {
		// Last writer wins; the replaced socket is just closed.
		old.shutdown()
	}

	p.queueJSON(connectedFrame{Type: "connected", Fingerprint: fp})
	log.Debug().Str("fp", fp).Msg("chat socket attached")

	ch.readLoop(fp, p)
}

// readLoop consumes inbound frames. The only recognized shape is the ack
// frame; everything else is ignored.
func (ch *Chat) readLoop(fp string, p *peer) {
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			ch.detach(fp, p)
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		var ack ackFrame
		if json.Unmarshal(data, &ack) != nil || ack.Type != "ack" {
			continue
		}
		ch.mbox.Ack(fp, ack.MessageIDs)
	}
}

// detach clears the map entry for fp, but only when p is still the mapped
// socket (stale-close safety for replaced connections).
func (ch *Chat) detach(fp string, p *peer) {
	p.shutdown()
	ch.mu.Lock()
	if ch.socks[fp] == p {
		delete(ch.socks, fp)
	}
	ch.mu.Unlock()
}

// Notify pushes a newMessage frame to the live socket for fp, if any. The
// push is best-effort: a missing socket or full buffer leaves the message
// waiting in the mailbox.
func (ch *Chat) Notify(fp string, msg domain.Message) {
	ch.mu.Lock()
	p := ch.socks[fp]
	ch.mu.Unlock()
	if p == nil {
		return
	}
	if !p.queueJSON(newMessagePush(msg)) {
		log.Debug().Str("fp", fp).Str("id", msg.ID).Msg("live push dropped")
	}
}

// Connected reports whether fp has a live socket. For tests.
func (ch *Chat) Connected(fp string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	_, ok := ch.socks[fp]
	return ok
}
