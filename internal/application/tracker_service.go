package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// TrackerRepository captures the persistence operations needed by the tracker service.
type TrackerRepository interface {
	TrackerReader
	CreateTracker(ctx context.Context, tracker persistence.Tracker) (persistence.Tracker, error)
	ListTrackersForUser(ctx context.Context, userID string) ([]persistence.Tracker, error)
	CloneTracker(ctx context.Context, ownerID string, sourceID int64, createdAt time.Time) (persistence.Tracker, bool, error)
	DeleteTracker(ctx context.Context, id int64) error
	EnsureGlobalTracker(ctx context.Context, seed persistence.Tracker) (persistence.Tracker, error)
}

// TimetableClearer removes every class of a tracker.
type TimetableClearer interface {
	ClearClasses(ctx context.Context, trackerID int64) (int64, error)
}

// TrackerService manages trackers and the private copies users make of them.
type TrackerService struct {
	trackers TrackerRepository
	classes  TimetableClearer
	undo     *UndoLog
	engine   *recurrence.Engine
	now      func() time.Time
	logger   *slog.Logger
}

// NewTrackerService constructs a tracker service with the provided dependencies.
func NewTrackerService(trackers TrackerRepository, classes TimetableClearer, undo *UndoLog, engine *recurrence.Engine, now func() time.Time) *TrackerService {
	return NewTrackerServiceWithLogger(trackers, classes, undo, engine, now, nil)
}

// NewTrackerServiceWithLogger constructs a tracker service with a specified logger.
func NewTrackerServiceWithLogger(trackers TrackerRepository, classes TimetableClearer, undo *UndoLog, engine *recurrence.Engine, now func() time.Time, logger *slog.Logger) *TrackerService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &TrackerService{
		trackers: trackers,
		classes:  classes,
		undo:     undo,
		engine:   engine,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *TrackerService) loggerWith(ctx context.Context, operation string, actor Actor, attrs ...any) *slog.Logger {
	attrs = append([]any{"actor_id", actor.UserID}, attrs...)
	return serviceLogger(ctx, s.logger, "TrackerService", operation, attrs...)
}

// Bootstrap asserts the single global tracker. On an empty store one is
// created spanning seed.Days from today.
func (s *TrackerService) Bootstrap(ctx context.Context, seed GlobalTrackerSeed) (tracker persistence.Tracker, err error) {
	if s == nil {
		err = fmt.Errorf("TrackerService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "TrackerService", "Bootstrap")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to ensure global tracker", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("tracker_id", tracker.ID, "tracker_name", tracker.Name).InfoContext(ctx, "global tracker ready")
	}()

	days := seed.Days
	if days < 0 {
		days = 0
	}
	today := s.engine.Today(s.now())
	tracker, err = s.trackers.EnsureGlobalTracker(ctx, persistence.Tracker{
		Name:      strings.TrimSpace(seed.Name),
		StartDate: today,
		EndDate:   today.AddDate(0, 0, days),
		IsGlobal:  true,
		CreatedAt: s.now(),
	})
	err = mapRepoError(err)
	return
}

// Create persists a new tracker owned by the actor.
func (s *TrackerService) Create(ctx context.Context, actor Actor, input TrackerInput) (tracker persistence.Tracker, err error) {
	if s == nil {
		err = fmt.Errorf("TrackerService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", actor)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create tracker", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("tracker_id", tracker.ID).InfoContext(ctx, "tracker created")
	}()

	if err = requireActor(actor); err != nil {
		return
	}

	normalized := TrackerInput{
		Name:      strings.TrimSpace(input.Name),
		StartDate: recurrence.DateOf(input.StartDate),
		EndDate:   recurrence.DateOf(input.EndDate),
	}
	if vErr := validateTrackerInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	owner := actor.UserID
	tracker, err = s.trackers.CreateTracker(ctx, persistence.Tracker{
		Name:        normalized.Name,
		StartDate:   normalized.StartDate,
		EndDate:     normalized.EndDate,
		OwnerUserID: &owner,
		CreatedAt:   s.now(),
	})
	err = mapRepoError(err)
	return
}

// List returns the global tracker followed by the actor's own trackers.
func (s *TrackerService) List(ctx context.Context, actor Actor) (trackers []persistence.Tracker, err error) {
	if s == nil {
		err = fmt.Errorf("TrackerService is nil")
		return
	}

	logger := s.loggerWith(ctx, "List", actor)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list trackers", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(trackers)).DebugContext(ctx, "trackers listed")
	}()

	if err = requireActor(actor); err != nil {
		return
	}
	trackers, err = s.trackers.ListTrackersForUser(ctx, actor.UserID)
	err = mapRepoError(err)
	return
}

// Get returns a tracker the actor may read.
func (s *TrackerService) Get(ctx context.Context, actor Actor, id int64) (persistence.Tracker, error) {
	if s == nil {
		return persistence.Tracker{}, fmt.Errorf("TrackerService is nil")
	}
	return readableTracker(ctx, s.trackers, actor, id)
}

// Clear removes every class of an owned tracker along with their sessions for
// all users. The actor's pending undo entry is dropped.
func (s *TrackerService) Clear(ctx context.Context, actor Actor, id int64) (removed int64, err error) {
	if s == nil {
		err = fmt.Errorf("TrackerService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Clear", actor, "tracker_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to clear timetable", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("removed_classes", removed).InfoContext(ctx, "timetable cleared")
	}()

	if _, err = ownedTracker(ctx, s.trackers, actor, id); err != nil {
		return
	}
	removed, err = s.classes.ClearClasses(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	s.undo.Forget(actor)
	return
}

// Delete removes an owned tracker, its classes, and every session of those
// classes. The actor's pending undo entry is dropped.
func (s *TrackerService) Delete(ctx context.Context, actor Actor, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("TrackerService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", actor, "tracker_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete tracker", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "tracker deleted")
	}()

	if _, err = ownedTracker(ctx, s.trackers, actor, id); err != nil {
		return
	}
	if err = s.trackers.DeleteTracker(ctx, id); err != nil {
		return mapRepoError(err)
	}
	s.undo.Forget(actor)
	return nil
}

// EnsureOwnedCopy returns the actor's private copy of sourceID, creating it
// with the source's classes on first use. Repeated and concurrent calls
// resolve to the same tracker.
func (s *TrackerService) EnsureOwnedCopy(ctx context.Context, actor Actor, sourceID int64) (persistence.Tracker, error) {
	return s.copyTracker(ctx, "EnsureOwnedCopy", actor, sourceID)
}

// Fork is the explicit form of EnsureOwnedCopy. Any tracker the actor can read may be forked.
func (s *TrackerService) Fork(ctx context.Context, actor Actor, sourceID int64) (persistence.Tracker, error) {
	return s.copyTracker(ctx, "Fork", actor, sourceID)
}

func (s *TrackerService) copyTracker(ctx context.Context, operation string, actor Actor, sourceID int64) (clone persistence.Tracker, err error) {
	if s == nil {
		err = fmt.Errorf("TrackerService is nil")
		return
	}

	var created bool
	logger := s.loggerWith(ctx, operation, actor, "source_tracker_id", sourceID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to copy tracker", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("tracker_id", clone.ID, "created", created).InfoContext(ctx, "tracker copy resolved")
	}()

	if _, err = readableTracker(ctx, s.trackers, actor, sourceID); err != nil {
		return
	}
	clone, created, err = s.trackers.CloneTracker(ctx, actor.UserID, sourceID, s.now())
	err = mapRepoError(err)
	return
}

// WritableTracker resolves the tracker a write aimed at id should land on: id
// itself when the actor owns it, or the actor's private copy when id is the
// global tracker and autoFork is set.
func (s *TrackerService) WritableTracker(ctx context.Context, actor Actor, id int64, autoFork bool) (persistence.Tracker, error) {
	if s == nil {
		return persistence.Tracker{}, fmt.Errorf("TrackerService is nil")
	}
	tracker, err := readableTracker(ctx, s.trackers, actor, id)
	if err != nil {
		return persistence.Tracker{}, err
	}
	if tracker.OwnedBy(actor.UserID) {
		return tracker, nil
	}
	if tracker.IsGlobal && autoFork {
		return s.EnsureOwnedCopy(ctx, actor, id)
	}
	return persistence.Tracker{}, ErrPermission
}

func validateTrackerInput(input TrackerInput) *ValidationError {
	vErr := validateStruct(input)
	if !input.StartDate.IsZero() && !input.EndDate.IsZero() && input.EndDate.Before(input.StartDate) {
		vErr.add("end_date", "end date must be on or after start date")
	}
	return vErr
}
