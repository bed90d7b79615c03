package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "attendance.db")
	t.Setenv("ATTENDANCE_ENV_FILE", filepath.Join(dir, "absent.env"))
	t.Setenv("ATTENDANCE_SQLITE_DSN", dsn)
	t.Setenv("ATTENDANCE_GLOBAL_TRACKER_NAME", "Shared Timetable")
	t.Setenv("ATTENDANCE_LOG_LEVEL", "warn")
	return dsn
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

type seeded struct {
	userID    string
	trackerID int64
}

func seed(t *testing.T, dsn string) seeded {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(sqlite.TempFileTestConfig(dsn))
	require.NoError(t, err)
	defer store.Close()

	user, err := store.Users.EnsureUser(ctx, persistence.User{ID: "u-1", DisplayName: "Asha"})
	require.NoError(t, err)
	owner := user.ID
	tracker, err := store.Trackers.CreateTracker(ctx, persistence.Tracker{
		Name:        "Semester",
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		OwnerUserID: &owner,
	})
	require.NoError(t, err)
	class, err := store.Classes.CreateClass(ctx, persistence.Class{
		TrackerID: tracker.ID, Subject: "Math", Weekday: 0, StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)

	keys := []persistence.SessionKey{
		{UserID: owner, ClassID: class.ID, Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{UserID: owner, ClassID: class.ID, Date: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
	}
	_, err = store.Sessions.InsertPendingSessions(ctx, keys)
	require.NoError(t, err)
	sessions, err := store.Sessions.ListSessions(ctx, persistence.SessionFilter{UserID: owner, TrackerID: tracker.ID})
	require.NoError(t, err)
	require.NoError(t, store.Sessions.UpdateSessionStatus(ctx, sessions[0].ID, persistence.StatusAttended))
	require.NoError(t, store.Sessions.UpdateSessionStatus(ctx, sessions[1].ID, persistence.StatusMissed))

	return seeded{userID: owner, trackerID: tracker.ID}
}

func TestMigrateCreatesGlobalTracker(t *testing.T) {
	setupEnv(t)

	stdout, _, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, `global tracker 1 "Shared Timetable"`)

	stdout, _, err = run(t, "migrate", "--log-format", "text")
	require.NoError(t, err)
	assert.Contains(t, stdout, "global tracker 1 ", "migrate is repeatable")
}

func TestStatsCommand(t *testing.T) {
	dsn := setupEnv(t)
	_, _, err := run(t, "migrate")
	require.NoError(t, err)
	data := seed(t, dsn)
	tracker := strconv.FormatInt(data.trackerID, 10)

	stdout, _, err := run(t, "stats", "--user", data.userID, "--tracker", tracker, "--json")
	require.NoError(t, err)
	var stats []application.CourseStat
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	assert.Equal(t, []application.CourseStat{
		{Subject: "Math", Attended: 1, Missed: 1, Denominator: 2, Percentage: 50},
	}, stats)

	stdout, _, err = run(t, "stats", "--user", data.userID, "--tracker", tracker)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SUBJECT"))
	assert.Contains(t, lines[1], "50.00")

	_, _, err = run(t, "stats", "--user", "stranger", "--tracker", tracker)
	assert.ErrorIs(t, err, application.ErrPermission)
}

func TestPromptsCommand(t *testing.T) {
	dsn := setupEnv(t)
	_, _, err := run(t, "migrate")
	require.NoError(t, err)
	data := seed(t, dsn)

	stdout, _, err := run(t, "prompts", "--user", data.userID, "--tracker", strconv.FormatInt(data.trackerID, 10), "--json")
	require.NoError(t, err)
	var prompts []persistence.SessionView
	require.NoError(t, json.Unmarshal([]byte(stdout), &prompts))

	// Mondays from 2024-01-15 through 2024-04-29; the first two are answered.
	require.Len(t, prompts, 16)
	assert.Equal(t, "2024-01-15", prompts[0].Date.Format(persistence.DateLayout))
	assert.Equal(t, "2024-04-29", prompts[len(prompts)-1].Date.Format(persistence.DateLayout))
	for _, p := range prompts {
		assert.Equal(t, persistence.StatusPending, p.Status)
		assert.Equal(t, "Math", p.Subject)
	}

	stdout, _, err = run(t, "prompts", "--user", data.userID, "--tracker", strconv.FormatInt(data.trackerID, 10))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 17)
	assert.Contains(t, lines[1], "2024-01-15")
	assert.Contains(t, lines[1], "09:00-10:00")
}

func TestCommandErrors(t *testing.T) {
	setupEnv(t)

	_, _, err := run(t, "stats", "--tracker", "1")
	assert.Error(t, err, "--user is required")

	_, _, err = run(t, "migrate", "--log-format", "xml")
	assert.Error(t, err)

	t.Setenv("ATTENDANCE_PROMPT_BUFFER", "soon")
	_, _, err = run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ATTENDANCE_PROMPT_BUFFER")
}

func TestPromptsRecordsUnseenUser(t *testing.T) {
	dsn := setupEnv(t)
	_, _, err := run(t, "migrate")
	require.NoError(t, err)

	ctx := context.Background()
	store, err := sqlite.Open(sqlite.TempFileTestConfig(dsn))
	require.NoError(t, err)
	global, err := store.Trackers.GetGlobalTracker(ctx)
	require.NoError(t, err)
	for weekday := 0; weekday < 7; weekday++ {
		_, err := store.Classes.CreateClass(ctx, persistence.Class{
			TrackerID: global.ID, Subject: "Math", Weekday: weekday, StartTime: "00:00", EndTime: "00:01",
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	_, _, err = run(t, "prompts", "--user", "fresh-user", "--tracker", strconv.FormatInt(global.ID, 10), "--json")
	require.NoError(t, err)

	stdout, _, err := run(t, "stats", "--user", "fresh-user", "--tracker", strconv.FormatInt(global.ID, 10), "--json")
	require.NoError(t, err)
	var stats []application.CourseStat
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "Math", stats[0].Subject)

	store, err = sqlite.Open(sqlite.TempFileTestConfig(dsn))
	require.NoError(t, err)
	defer store.Close()
	user, err := store.Users.GetUser(ctx, "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, "fresh-user", user.ID)
}
