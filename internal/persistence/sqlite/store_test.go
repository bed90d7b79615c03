package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "attendance.db")
	store, err := Open(TempFileTestConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func createUser(t *testing.T, store *Store, id string) persistence.User {
	t.Helper()
	user, err := store.Users.EnsureUser(context.Background(), persistence.User{ID: id, DisplayName: strings.ToUpper(id)})
	require.NoError(t, err)
	return user
}

func createTracker(t *testing.T, store *Store, owner *string, global bool) persistence.Tracker {
	t.Helper()
	tracker, err := store.Trackers.CreateTracker(context.Background(), persistence.Tracker{
		Name:        "Semester",
		StartDate:   date(2024, time.January, 1),
		EndDate:     date(2024, time.May, 1),
		IsGlobal:    global,
		OwnerUserID: owner,
	})
	require.NoError(t, err)
	return tracker
}

func createClass(t *testing.T, store *Store, trackerID int64, subject string, weekday int, start, end string) persistence.Class {
	t.Helper()
	class, err := store.Classes.CreateClass(context.Background(), persistence.Class{
		TrackerID: trackerID,
		Subject:   subject,
		Weekday:   weekday,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return class
}

func strPtr(s string) *string {
	return &s
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestStore_ForeignKeysEnabledOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conns := make([]interface{ Close() error }, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := store.Pool().DB().Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)

		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled, "connection %d", i)
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "empty dsn", mutate: func(c *Config) { c.DSN = " " }, wantErr: "DSN"},
		{name: "journal mode", mutate: func(c *Config) { c.JournalMode = "FAST" }, wantErr: "journal mode"},
		{name: "synchronous", mutate: func(c *Config) { c.Synchronous = "SOMETIMES" }, wantErr: "synchronous"},
		{name: "negative busy timeout", mutate: func(c *Config) { c.BusyTimeout = -time.Second }, wantErr: "BusyTimeout"},
		{name: "negative pool size", mutate: func(c *Config) { c.MaxOpenConns = -1 }, wantErr: "MaxOpenConns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("attendance.db")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ConnectionString(t *testing.T) {
	cfg := DefaultConfig("data/attendance.db")
	dsn := cfg.connectionString()

	assert.True(t, strings.HasPrefix(dsn, "data/attendance.db?_txlock=immediate"))
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(30000)")

	cfg.DSN = "file:attendance.db?mode=rwc"
	assert.Contains(t, cfg.connectionString(), "mode=rwc&_txlock=immediate")
	assert.Equal(t, "attendance.db", cfg.databasePath())

	assert.Empty(t, InMemoryTestConfig().databasePath())
}

func TestErrorMapper_MapError(t *testing.T) {
	mapper := NewErrorMapper()

	assert.Nil(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(persistence.ErrNotFound), persistence.ErrNotFound)
	assert.ErrorIs(t, mapper.MapError(errString("UNIQUE constraint failed: users.username")), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapper.MapError(errString("FOREIGN KEY constraint failed")), persistence.ErrConstraintViolation)
	assert.ErrorIs(t, mapper.MapError(errString("CHECK constraint failed: day_of_week")), persistence.ErrConstraintViolation)
}

func TestRetryHelper_StopsOnPermanentError(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		return persistence.ErrDuplicate
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicate)
	assert.Equal(t, 1, calls)

	calls = 0
	err = helper.WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errString("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

type errString string

func (e errString) Error() string { return string(e) }
