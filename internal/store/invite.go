// Package store implements the relay's in-memory vaults.
//
// This file contains the invite store: a two-phase rendezvous where a creator
// deposits a public key bundle under a client-chosen id and exactly one
// counterparty may later claim it, depositing its own bundle in exchange for
// the creator's.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/blind-relay/internal/domain"
	"github.com/tbourn/blind-relay/internal/ident"
)

// inviteEntry is the mutable state of a single invite.
//
// State machine: an entry starts unclaimed; Claim transitions it to claimed
// exactly once and is the only transition. Both states remain readable via
// Get until expiresAt, after which the entry is unreadable and swept.
type inviteEntry struct {
	creatorBundle string
	claimerBundle string
	claimed       bool
	createdAt     int64
	expiresAt     int64
}

// Invites is the invite store. Safe for concurrent use; Claim is atomic, so
// of any number of concurrent claims for one id exactly one succeeds.
type Invites struct {
	mu         sync.Mutex
	entries    map[string]*inviteEntry
	defaultTTL time.Duration
}

// NewInvites constructs an empty invite store. defaultTTL applies when the
// creator does not supply an expiry.
func NewInvites(defaultTTL time.Duration) *Invites {
	return &Invites{
		entries:    make(map[string]*inviteEntry),
		defaultTTL: defaultTTL,
	}
}

// Create registers an invite under the client-chosen id. expiresAt is a Unix
// millisecond timestamp; zero or negative selects the default TTL. Returns
// ErrDuplicateInvite when the id is already taken by a live entry.
func (s *Invites) Create(id, creatorBundle string, expiresAt int64) error {
	now := ident.NowMillis()
	if expiresAt <= 0 {
		expiresAt = now + s.defaultTTL.Milliseconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		if e.expiresAt > now {
			return ErrDuplicateInvite
		}
		// Expired but not yet swept: the id is free again.
		delete(s.entries, id)
	}
	s.entries[id] = &inviteEntry{
		creatorBundle: creatorBundle,
		createdAt:     now,
		expiresAt:     expiresAt,
	}
	return nil
}

// Get returns the read model of an invite. Reading does not change state and
// is permitted both before and after the claim. Expired entries are deleted
// and reported as ErrGone.
func (s *Invites) Get(id string) (domain.InviteView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.InviteView{}, ErrGone
	}
	if e.expiresAt <= ident.NowMillis() {
		delete(s.entries, id)
		return domain.InviteView{}, ErrGone
	}

	view := domain.InviteView{
		InviteID:        id,
		PublicKeyBundle: e.creatorBundle,
		Claimed:         e.claimed,
	}
	if e.claimed {
		cb := e.claimerBundle
		view.ClaimerBundle = &cb
	}
	return view, nil
}

// Claim atomically transitions an unclaimed invite to claimed, recording the
// claimer's bundle and returning the creator's. Returns ErrGone for unknown
// or expired ids and ErrInviteClaimed when the transition already happened.
func (s *Invites) Claim(id, claimerBundle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return "", ErrGone
	}
	if e.expiresAt <= ident.NowMillis() {
		delete(s.entries, id)
		return "", ErrGone
	}
	if e.claimed {
		return "", ErrInviteClaimed
	}
	e.claimed = true
	e.claimerBundle = claimerBundle
	return e.creatorBundle, nil
}

// Len reports the number of live entries. Intended for tests.
func (s *Invites) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep deletes entries past their expiry and returns the number removed.
func (s *Invites) Sweep(nowMillis int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.expiresAt <= nowMillis {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is canceled.
func (s *Invites) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(ident.NowMillis()); n > 0 {
					log.Debug().Int("removed", n).Msg("invite sweep")
				}
			}
		}
	}()
}
