// Package store implements the relay's in-memory vaults.
//
// This file contains the per-recipient mailbox: a FIFO store-and-forward
// queue keyed by fingerprint, with client-driven dedup, acknowledgment-based
// removal, and an optional live-push notifier. The mailbox is the source of
// truth; the live push is an optimization layered on top. Enqueue always
// stores first and notifies second, so a recipient connecting concurrently
// can never lose a message to a failed push.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/blind-relay/internal/domain"
	"github.com/tbourn/blind-relay/internal/ident"
)

// Notifier receives a best-effort signal that a message was queued for a
// fingerprint. Implementations must not block; failures are ignored by the
// mailbox and the message simply waits for the next fetch.
type Notifier interface {
	Notify(fp string, msg domain.Message)
}

// Mailbox holds the pending messages of every fingerprint. Messages expire
// after the configured TTL; empty mailboxes are removed from the map so the
// key set tracks only recipients with pending traffic.
//
// Safe for concurrent use. Enqueue's dedup check and append are a single
// critical section, so retries of the same messageId can never store twice.
type Mailbox struct {
	mu       sync.Mutex
	boxes    map[string][]domain.Message
	ttl      time.Duration
	notifier Notifier
}

// NewMailbox constructs an empty mailbox store with the given message TTL.
func NewMailbox(ttl time.Duration) *Mailbox {
	return &Mailbox{
		boxes: make(map[string][]domain.Message),
		ttl:   ttl,
	}
}

// SetNotifier installs the live-push notifier. Must be called before the
// server starts accepting traffic; nil disables pushes.
func (m *Mailbox) SetNotifier(n Notifier) {
	m.notifier = n
}

// Enqueue appends a message to the mailbox of to, unless a message with the
// same id is already pending there, in which case it reports duplicate=true
// and changes nothing. After a successful append the notifier, when present,
// is invoked outside the lock.
func (m *Mailbox) Enqueue(to, from, payload, id string) (duplicate bool) {
	msg := domain.Message{
		ID:        id,
		From:      from,
		Payload:   payload,
		Timestamp: ident.NowMillis(),
	}

	m.mu.Lock()
	for _, q := range m.boxes[to] {
		if q.ID == id {
			m.mu.Unlock()
			return true
		}
	}
	m.boxes[to] = append(m.boxes[to], msg)
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Notify(to, msg)
	}
	return false
}

// Fetch returns a copy of all non-expired messages pending for fp in
// insertion order. It does not mutate the mailbox.
func (m *Mailbox) Fetch(fp string) []domain.Message {
	cutoff := ident.NowMillis() - m.ttl.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.boxes[fp]
	out := make([]domain.Message, 0, len(q))
	for _, msg := range q {
		if msg.Timestamp > cutoff {
			out = append(out, msg)
		}
	}
	return out
}

// Ack removes the messages whose ids appear in ids from the mailbox of fp.
// Unknown ids are ignored. When the mailbox becomes empty its key is dropped.
func (m *Mailbox) Ack(fp string, ids []string) {
	if len(ids) == 0 {
		return
	}
	acked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		acked[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.boxes[fp]
	if !ok {
		return
	}
	kept := q[:0]
	for _, msg := range q {
		if _, drop := acked[msg.ID]; !drop {
			kept = append(kept, msg)
		}
	}
	if len(kept) == 0 {
		delete(m.boxes, fp)
		return
	}
	m.boxes[fp] = kept
}

// Pending reports the number of messages queued for fp. Intended for tests.
func (m *Mailbox) Pending(fp string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes[fp])
}

// Sweep drops messages older than the TTL from every mailbox and removes
// mailboxes that end up empty. Returns the number of messages removed.
func (m *Mailbox) Sweep(nowMillis int64) int {
	cutoff := nowMillis - m.ttl.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for fp, q := range m.boxes {
		kept := q[:0]
		for _, msg := range q {
			if msg.Timestamp > cutoff {
				kept = append(kept, msg)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(m.boxes, fp)
		} else {
			m.boxes[fp] = kept
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is canceled.
func (m *Mailbox) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.Sweep(ident.NowMillis()); n > 0 {
					log.Debug().Int("removed", n).Msg("mailbox sweep")
				}
			}
		}
	}()
}
