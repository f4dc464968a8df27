// Package totals persists the relay's usage counters, the only state that
// survives a restart. The sink is a single-row SQLite table updated with
// fire-and-forget increments: a failed write is logged and never surfaces to
// the request that triggered it.
//
// Backed by GORM with the pure-Go glebarez/sqlite driver.
package totals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Counter names accepted by Increment. Anything else is logged and dropped.
const (
	RoomsCreated       = "rooms_created"
	OTMCreated         = "otm_created"
	FilesCreated       = "files_created"
	ChatInvitesCreated = "chat_invites_created"
	ChatMessagesSent   = "chat_messages_sent"
)

// ErrDisabled is returned by Read when no sink is configured. Handlers map
// it to HTTP 503.
var ErrDisabled = errors.New("totals sink disabled")

// row is the persistence model: one logical row holding all counters.
type row struct {
	ID                 int   `gorm:"primaryKey"`
	RoomsCreated       int64 `gorm:"not null;default:0"`
	OTMCreated         int64 `gorm:"column:otm_created;not null;default:0"`
	FilesCreated       int64 `gorm:"not null;default:0"`
	ChatInvitesCreated int64 `gorm:"not null;default:0"`
	ChatMessagesSent   int64 `gorm:"not null;default:0"`
}

// TableName returns the database table name for the counters row.
func (row) TableName() string { return "totals" }

// Snapshot is the read model of the counters, shaped for the /metrics
// response.
type Snapshot struct {
	RoomsCreated       int64 `json:"roomsCreated"`
	OTMCreated         int64 `json:"otmCreated"`
	FilesCreated       int64 `json:"filesCreated"`
	ChatInvitesCreated int64 `json:"chatInvitesCreated"`
	ChatMessagesSent   int64 `json:"chatMessagesSent"`
}

// Sink wraps the counters database. A nil *Sink is valid and turns every
// increment into a silent no-op and every read into ErrDisabled, which is
// how an unconfigured deployment runs.
type Sink struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite sink at path, migrates the schema, and
// guarantees the counters row exists with zero-initialized columns.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, err
	}
	// Seed the single row; a concurrent or previous seed is fine.
	seed := row{ID: 1}
	if err := db.Clauses().Where(row{ID: 1}).FirstOrCreate(&seed).Error; err != nil {
		return nil, err
	}
	return &Sink{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// column maps a counter name to its totals column.
func column(name string) (string, bool) {
	switch name {
	case RoomsCreated:
		return "rooms_created", true
	case OTMCreated:
		return "otm_created", true
	case FilesCreated:
		return "files_created", true
	case ChatInvitesCreated:
		return "chat_invites_created", true
	case ChatMessagesSent:
		return "chat_messages_sent", true
	}
	return "", false
}

// Increment bumps the named counter by one. The write happens on a
// background goroutine with a short timeout; failures are logged at warn
// level and otherwise ignored. Safe to call on a nil Sink.
func (s *Sink) Increment(name string) {
	if s == nil {
		return
	}
	col, ok := column(name)
	if !ok {
		log.Warn().Str("counter", name).Msg("unknown totals counter")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.db.WithContext(ctx).
			Model(&row{}).
			Where("id = ?", 1).
			UpdateColumn(col, gorm.Expr(col+" + 1")).Error
		if err != nil {
			log.Warn().Err(err).Str("counter", name).Msg("totals increment failed")
		}
	}()
}

// Read returns the current counter values. Returns ErrDisabled on a nil
// Sink and the underlying database error on read failure.
func (s *Sink) Read(ctx context.Context) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, ErrDisabled
	}
	var r row
	if err := s.db.WithContext(ctx).First(&r, 1).Error; err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		RoomsCreated:       r.RoomsCreated,
		OTMCreated:         r.OTMCreated,
		FilesCreated:       r.FilesCreated,
		ChatInvitesCreated: r.ChatInvitesCreated,
		ChatMessagesSent:   r.ChatMessagesSent,
	}, nil
}
