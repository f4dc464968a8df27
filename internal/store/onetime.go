// Package store implements the relay's in-memory vaults.
//
// This file contains the one-time vault used by both the one-time message
// store (string ciphertext, 7 day TTL) and the one-time file store (binary
// payloads, 24 h TTL). The two differ only in TTL and payload encoding, so
// they share one implementation instantiated twice.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/blind-relay/internal/ident"
)

// oneTimeEntry is a stored blob with its creation time in Unix milliseconds.
type oneTimeEntry struct {
	payload   []byte
	createdAt int64
}

// OneTime is a vault whose entries can be read at most once. Take is an
// atomic compare-and-delete: under any interleaving of concurrent calls,
// exactly one caller observes the payload and all others observe ErrGone.
//
// Entries additionally expire after the configured TTL; expired entries are
// unreadable immediately and removed either lazily on access or by the
// periodic sweeper. The type is safe for concurrent use.
type OneTime struct {
	mu      sync.Mutex
	entries map[string]oneTimeEntry
	ttl     time.Duration
}

// NewOneTime constructs an empty vault whose entries expire after ttl.
func NewOneTime(ttl time.Duration) *OneTime {
	return &OneTime{
		entries: make(map[string]oneTimeEntry),
		ttl:     ttl,
	}
}

// Put stores payload under a freshly generated id and returns the id.
func (s *OneTime) Put(payload []byte) string {
	id := ident.NewID()
	s.mu.Lock()
	s.entries[id] = oneTimeEntry{payload: payload, createdAt: ident.NowMillis()}
	s.mu.Unlock()
	return id
}

// Take removes and returns the payload stored under id. It returns ErrGone
// when the id is unknown, already consumed, or expired; an expired entry is
// deleted on the way out.
func (s *OneTime) Take(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrGone
	}
	delete(s.entries, id)
	if s.expired(e, ident.NowMillis()) {
		return nil, ErrGone
	}
	return e.payload, nil
}

// Len reports the number of live entries. Intended for tests and logging.
func (s *OneTime) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep deletes every entry older than the TTL relative to nowMillis and
// returns the number of entries removed.
func (s *OneTime) Sweep(nowMillis int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e, nowMillis) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is canceled.
func (s *OneTime) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(ident.NowMillis()); n > 0 {
					log.Debug().Int("removed", n).Msg("one-time sweep")
				}
			}
		}
	}()
}

func (s *OneTime) expired(e oneTimeEntry, nowMillis int64) bool {
	return nowMillis-e.createdAt > s.ttl.Milliseconds()
}
