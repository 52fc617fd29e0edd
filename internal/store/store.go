// Package store persists conversations, turns and bookmarks in a local
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrConversationNotFound is returned when no conversation of the user
// matches the requested ID.
var ErrConversationNotFound = errors.New("conversation not found")

// AmbiguousIDError is returned when multiple conversations match a prefix
type AmbiguousIDError struct {
	Prefix  string
	Matches []chat.Conversation
}

func (e *AmbiguousIDError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous session ID %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s, %d messages)",
			match.ShortID(),
			match.DisplayName(),
			match.CreatedAt.Format("2006-01-02"),
			match.MessageCount))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use a longer prefix or run 'advchat sessions list'.")
	return strings.Join(lines, "\n")
}

// Store is a SQLite backed implementation of chat.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ chat.Store = (*Store)(nil)

// Open opens the database at path, creating it and its directory when
// needed, and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	// a single connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("store: database opened")
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return errors.Wrap(err, "failed to create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	for _, r := range results {
		log.Debug().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("store: migration applied")
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n)
}
