package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in PRAGMA user_version once the schema is applied.
const schemaVersion = 1

// Store bundles the SQLite repositories over one connection pool.
type Store struct {
	pool *ConnectionPool

	Users    *UserRepository
	Trackers *TrackerRepository
	Classes  *ClassRepository
	Sessions *SessionRepository
}

// Open connects to the database described by config. Call Migrate before use
// on a fresh database.
func Open(config Config) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{
		pool:     pool,
		Users:    NewUserRepository(pool),
		Trackers: NewTrackerRepository(pool),
		Classes:  NewClassRepository(pool),
		Sessions: NewSessionRepository(pool),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Pool exposes the connection pool backing the store.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}

// Migrate creates the schema when it is missing. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range splitStatements(schemaSQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
			}
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	})
}

// SchemaVersion reports the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.pool.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func formatDate(t time.Time) string {
	return t.Format(persistence.DateLayout)
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(persistence.DateLayout, value)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

var (
	_ persistence.UserRepository    = (*UserRepository)(nil)
	_ persistence.TrackerRepository = (*TrackerRepository)(nil)
	_ persistence.ClassRepository   = (*ClassRepository)(nil)
	_ persistence.SessionRepository = (*SessionRepository)(nil)
)
