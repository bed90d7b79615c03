package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// ClassLister returns the classes of a tracker.
type ClassLister interface {
	ListClasses(ctx context.Context, trackerID int64) ([]persistence.Class, error)
}

// PendingSessionInserter creates PENDING sessions, skipping keys that already exist.
type PendingSessionInserter interface {
	InsertPendingSessions(ctx context.Context, keys []persistence.SessionKey) (int64, error)
}

// Materializer creates the session rows a user's week views and prompts read.
// Every insert is an idempotent upsert, so callers may ensure the same week
// any number of times, concurrently or not.
type Materializer struct {
	trackers TrackerReader
	classes  ClassLister
	sessions PendingSessionInserter
	group    singleflight.Group
	logger   *slog.Logger
}

// NewMaterializer constructs a materializer with the provided dependencies.
func NewMaterializer(trackers TrackerReader, classes ClassLister, sessions PendingSessionInserter) *Materializer {
	return NewMaterializerWithLogger(trackers, classes, sessions, nil)
}

// NewMaterializerWithLogger constructs a materializer with a specified logger.
func NewMaterializerWithLogger(trackers TrackerReader, classes ClassLister, sessions PendingSessionInserter, logger *slog.Logger) *Materializer {
	return &Materializer{
		trackers: trackers,
		classes:  classes,
		sessions: sessions,
		logger:   defaultLogger(logger),
	}
}

func (m *Materializer) loggerWith(ctx context.Context, operation string, actor Actor, attrs ...any) *slog.Logger {
	attrs = append([]any{"actor_id", actor.UserID}, attrs...)
	return serviceLogger(ctx, m.logger, "Materializer", operation, attrs...)
}

// EnsureWeek inserts a PENDING session for every class of the tracker whose
// date in the week starting at weekStart falls inside the tracker's window.
// weekStart is normalized to its Monday. It returns the number of new rows.
func (m *Materializer) EnsureWeek(ctx context.Context, actor Actor, trackerID int64, weekStart time.Time) (created int64, err error) {
	if m == nil {
		err = fmt.Errorf("Materializer is nil")
		return
	}

	monday := recurrence.WeekStart(weekStart)
	logger := m.loggerWith(ctx, "EnsureWeek", actor, "tracker_id", trackerID, "week_start", monday.Format(persistence.DateLayout))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to materialize week", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("created_sessions", created).DebugContext(ctx, "week materialized")
	}()

	tracker, slots, err := m.load(ctx, actor, trackerID)
	if err != nil {
		return
	}
	window := recurrence.Window{Start: tracker.StartDate, End: tracker.EndDate}
	keys := sessionKeys(actor.UserID, recurrence.ExpandWeek(slots, monday, window))
	created, err = m.insert(ctx, keys)
	return
}

// EnsureBacklog materializes every whole week from the tracker's start through
// the week containing min(upto, tracker end), so historically due sessions
// exist even for weeks the user never opened. Concurrent calls for the same
// user, tracker, and date inside this process share one execution, which a
// cancelled caller abandons without stopping it for the others.
func (m *Materializer) EnsureBacklog(ctx context.Context, actor Actor, trackerID int64, upto time.Time) (created int64, err error) {
	if m == nil {
		err = fmt.Errorf("Materializer is nil")
		return
	}

	uptoDate := recurrence.DateOf(upto)
	logger := m.loggerWith(ctx, "EnsureBacklog", actor, "tracker_id", trackerID, "upto", uptoDate.Format(persistence.DateLayout))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to materialize backlog", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("created_sessions", created).DebugContext(ctx, "backlog materialized")
	}()

	if err = ctx.Err(); err != nil {
		return
	}
	key := fmt.Sprintf("%s|%d|%s", actor.UserID, trackerID, uptoDate.Format(persistence.DateLayout))
	shared := context.WithoutCancel(ctx)
	results := m.group.DoChan(key, func() (any, error) {
		return m.backlog(shared, actor, trackerID, uptoDate)
	})
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-results:
		if err = res.Err; err == nil {
			created = res.Val.(int64)
		}
	}
	return
}

func (m *Materializer) backlog(ctx context.Context, actor Actor, trackerID int64, upto time.Time) (int64, error) {
	tracker, slots, err := m.load(ctx, actor, trackerID)
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, nil
	}

	window := recurrence.Window{Start: tracker.StartDate, End: tracker.EndDate}
	var keys []persistence.SessionKey
	for _, monday := range recurrence.Weeks(window, upto) {
		keys = append(keys, sessionKeys(actor.UserID, recurrence.ExpandWeek(slots, monday, window))...)
	}
	return m.insert(ctx, keys)
}

func (m *Materializer) load(ctx context.Context, actor Actor, trackerID int64) (persistence.Tracker, []recurrence.Slot, error) {
	tracker, err := readableTracker(ctx, m.trackers, actor, trackerID)
	if err != nil {
		return persistence.Tracker{}, nil, err
	}
	classes, err := m.classes.ListClasses(ctx, trackerID)
	if err != nil {
		return persistence.Tracker{}, nil, mapRepoError(err)
	}
	slots := make([]recurrence.Slot, 0, len(classes))
	for _, class := range classes {
		slots = append(slots, recurrence.Slot{
			ID:        class.ID,
			Weekday:   class.Weekday,
			StartTime: class.StartTime,
			EndTime:   class.EndTime,
		})
	}
	return tracker, slots, nil
}

func (m *Materializer) insert(ctx context.Context, keys []persistence.SessionKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	created, err := m.sessions.InsertPendingSessions(ctx, keys)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return created, nil
}

func sessionKeys(userID string, occurrences []recurrence.Occurrence) []persistence.SessionKey {
	keys := make([]persistence.SessionKey, 0, len(occurrences))
	for _, occ := range occurrences {
		keys = append(keys, persistence.SessionKey{UserID: userID, ClassID: occ.SlotID, Date: occ.Date})
	}
	return keys
}
