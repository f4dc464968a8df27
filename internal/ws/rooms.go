// Package ws implements the relay's real-time layer.
//
// This file contains the room registry. A room is an ephemeral fan-out group
// identified by a client-supplied opaque id: members' frames are relayed
// verbatim to every other member, presence changes are broadcast, and a
// control frame may burn the room, sealing its id against rejoining for the
// rest of the process lifetime.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/blind-relay/internal/totals"
)

// room is the registry's view of one live room.
//
// A room exists while it has members or while a destruction timer is
// pending. The timer is armed only when the member set becomes empty and is
// disarmed by any join, so a briefly-empty room stays addressable through
// the grace period.
type room struct {
	id      string
	members map[*peer]struct{}
	destroy *time.Timer
}

// Rooms is the room registry plus the burned set. Burning is monotonic: once
// an id enters the burned set no socket may join it again until restart.
//
// Safe for concurrent use; membership transitions, burn checks, and timer
// arming all happen under one mutex, while frame fan-out runs on member
// snapshots outside it.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[string]*room
	burned map[string]struct{}
	grace  time.Duration
	sink   *totals.Sink
}

// NewRooms constructs an empty registry. grace is how long an empty room
// survives before destruction; sink receives rooms_created increments and
// may be nil.
func NewRooms(grace time.Duration, sink *totals.Sink) *Rooms {
	return &Rooms{
		rooms:  make(map[string]*room),
		burned: make(map[string]struct{}),
		grace:  grace,
		sink:   sink,
	}
}

// Join attaches conn to roomID and services it until the socket closes. It
// blocks for the lifetime of the connection, so callers run it from the
// connection's handler goroutine.
//
// A join against a burned id is answered with a roomDestroyed frame and an
// immediate close.
func (rr *Rooms) Join(roomID string, conn *websocket.Conn) {
	p := newPeer(conn)

	rr.mu.Lock()
	if _, dead := rr.burned[roomID]; dead {
		rr.mu.Unlock()
		p.queueJSON(roomDestroyedFrame{Type: "roomDestroyed", RoomID: roomID})
		p.shutdown()
		return
	}
	r, ok := rr.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[*peer]struct{})}
		rr.rooms[roomID] = r
		rr.sink.Increment(totals.RoomsCreated)
	}
	if r.destroy != nil {
		r.destroy.Stop()
		r.destroy = nil
	}
	r.members[p] = struct{}{}
	members, count := rr.snapshotLocked(r)
	rr.mu.Unlock()

	log.Debug().Str("room", roomID).Int("count", count).Msg("room join")
	broadcastJSON(members, presenceFrame{Type: "presence", RoomID: roomID, Count: count})

	rr.readLoop(roomID, p)
}

// readLoop consumes frames from one member until the socket errors out.
func (rr *Rooms) readLoop(roomID string, p *peer) {
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			rr.leave(roomID, p)
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			// Opaque by contract: relayed without inspection.
			rr.relay(roomID, p, mt, data)
		case websocket.TextMessage:
			if isBurnControl(data, roomID) {
				rr.Burn(roomID)
				return
			}
			// Parse failures and every other shape are opaque text.
			rr.relay(roomID, p, mt, data)
		}
	}
}

// isBurnControl reports whether data is the burn control frame for roomID.
func isBurnControl(data []byte, roomID string) bool {
	var ctl controlFrame
	if err := json.Unmarshal(data, &ctl); err != nil {
		return false
	}
	return ctl.Type == "control" && ctl.Action == "burnRoom" && ctl.RoomID == roomID
}

// relay forwards a frame to every member of roomID except sender.
func (rr *Rooms) relay(roomID string, sender *peer, messageType int, data []byte) {
	rr.mu.Lock()
	r, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.Unlock()
		return
	}
	targets := make([]*peer, 0, len(r.members))
	for m := range r.members {
		if m != sender {
			targets = append(targets, m)
		}
	}
	rr.mu.Unlock()

	for _, t := range targets {
		t.queue(messageType, data)
	}
}

// Burn seals roomID, ejects every current member with a roomDestroyed frame,
// closes their sockets, and removes the room.
func (rr *Rooms) Burn(roomID string) {
	rr.mu.Lock()
	rr.burned[roomID] = struct{}{}
	r, ok := rr.rooms[roomID]
	var members []*peer
	if ok {
		if r.destroy != nil {
			r.destroy.Stop()
		}
		for m := range r.members {
			members = append(members, m)
		}
		delete(rr.rooms, roomID)
	}
	rr.mu.Unlock()

	log.Info().Str("room", roomID).Int("ejected", len(members)).Msg("room burned")
	destroyed := roomDestroyedFrame{Type: "roomDestroyed", RoomID: roomID}
	for _, m := range members {
		m.queueJSON(destroyed)
		m.shutdown()
	}
}

// leave removes p from roomID. The last member out arms the grace timer that
// destroys the room unless a join lands first.
func (rr *Rooms) leave(roomID string, p *peer) {
	p.shutdown()

	rr.mu.Lock()
	r, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.Unlock()
		return
	}
	delete(r.members, p)
	if len(r.members) == 0 {
		r.destroy = time.AfterFunc(rr.grace, func() { rr.reap(roomID, r) })
		rr.mu.Unlock()
		return
	}
	members, count := rr.snapshotLocked(r)
	rr.mu.Unlock()

	broadcastJSON(members, presenceFrame{Type: "presence", RoomID: roomID, Count: count})
}

// reap deletes a room whose grace period elapsed, unless a join re-created
// activity in the meantime.
func (rr *Rooms) reap(roomID string, r *room) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	cur, ok := rr.rooms[roomID]
	if !ok || cur != r || len(cur.members) != 0 {
		return
	}
	delete(rr.rooms, roomID)
	log.Debug().Str("room", roomID).Msg("room destroyed after grace period")
}

// Live reports whether roomID currently exists in the registry. For tests.
func (rr *Rooms) Live(roomID string) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	_, ok := rr.rooms[roomID]
	return ok
}

// Burned reports whether roomID is in the burned set. For tests.
func (rr *Rooms) Burned(roomID string) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	_, ok := rr.burned[roomID]
	return ok
}

// snapshotLocked copies the member set and its size; callers hold rr.mu.
func (rr *Rooms) snapshotLocked(r *room) ([]*peer, int) {
	members := make([]*peer, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	return members, len(members)
}

func broadcastJSON(members []*peer, v any) {
	for _, m := range members {
		m.queueJSON(v)
	}
}
