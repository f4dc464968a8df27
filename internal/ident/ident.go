// Package ident provides the server's identifier and clock primitives.
//
// Identifiers are 128-bit random values rendered as 32 lowercase hex
// characters. They are opaque to clients and are never parsed back by the
// server; collisions are statistically negligible and not defended against.
// Timestamps are millisecond Unix times, which is the resolution every TTL
// in the system is expressed in.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// IDLen is the length in characters of a generated identifier.
const IDLen = 32

// NewID returns a fresh 32-character lowercase hex identifier backed by
// crypto/rand. It panics if the system RNG is unavailable, which is treated
// the same way as running out of memory: not a recoverable condition.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("ident: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// NowMillis returns the current wall-clock time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
