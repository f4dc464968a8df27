// Package store implements the relay's in-memory vaults: the one-time
// ciphertext and file stores, the invite exchange, and the per-recipient
// mailbox. Each store is a separately lockable unit with its own TTL sweeper;
// no invariants cross store boundaries.
//
// This file centralizes the sentinel errors returned by the stores so that
// handlers can map them to HTTP results with errors.Is.
package store

import "errors"

var (
	// ErrGone indicates that an entry does not exist, has expired, or has
	// already been consumed. One-time stores deliberately do not distinguish
	// these cases.
	ErrGone = errors.New("entry gone")

	// ErrDuplicateInvite is returned when creating an invite whose id is
	// already present.
	ErrDuplicateInvite = errors.New("invite id already exists")

	// ErrInviteClaimed is returned when claiming an invite that has already
	// been claimed.
	ErrInviteClaimed = errors.New("invite already claimed")
)
