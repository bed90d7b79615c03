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

// ClassRepository captures the persistence operations needed by the timetable service.
type ClassRepository interface {
	CreateClass(ctx context.Context, class persistence.Class) (persistence.Class, error)
	GetClass(ctx context.Context, id int64) (persistence.Class, error)
	UpdateClass(ctx context.Context, class persistence.Class) error
	ListClasses(ctx context.Context, trackerID int64) ([]persistence.Class, error)
	DeleteClass(ctx context.Context, id int64) error
}

// PendingSessionPurger removes not yet answered sessions of a class.
type PendingSessionPurger interface {
	DeletePendingSessionsAfter(ctx context.Context, classID int64, after time.Time) (int64, error)
}

// TimetableService edits the weekly classes of owned trackers. Every
// successful edit becomes the actor's pending undo entry.
//
// Editing a class never rewrites recorded attendance. When the weekday changes,
// PENDING sessions of that class dated after today are removed for all users
// so they are regenerated on the new day.
type TimetableService struct {
	trackers TrackerReader
	classes  ClassRepository
	sessions PendingSessionPurger
	undo     *UndoLog
	engine   *recurrence.Engine
	now      func() time.Time
	logger   *slog.Logger
}

// NewTimetableService constructs a timetable service with the provided dependencies.
func NewTimetableService(trackers TrackerReader, classes ClassRepository, sessions PendingSessionPurger, undo *UndoLog, engine *recurrence.Engine, now func() time.Time) *TimetableService {
	return NewTimetableServiceWithLogger(trackers, classes, sessions, undo, engine, now, nil)
}

// NewTimetableServiceWithLogger constructs a timetable service with a specified logger.
func NewTimetableServiceWithLogger(trackers TrackerReader, classes ClassRepository, sessions PendingSessionPurger, undo *UndoLog, engine *recurrence.Engine, now func() time.Time, logger *slog.Logger) *TimetableService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &TimetableService{
		trackers: trackers,
		classes:  classes,
		sessions: sessions,
		undo:     undo,
		engine:   engine,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *TimetableService) loggerWith(ctx context.Context, operation string, actor Actor, attrs ...any) *slog.Logger {
	attrs = append([]any{"actor_id", actor.UserID}, attrs...)
	return serviceLogger(ctx, s.logger, "TimetableService", operation, attrs...)
}

// ListClasses returns the classes of a readable tracker ordered by weekday,
// start time, end time, and subject.
func (s *TimetableService) ListClasses(ctx context.Context, actor Actor, trackerID int64) ([]persistence.Class, error) {
	if s == nil {
		return nil, fmt.Errorf("TimetableService is nil")
	}
	if _, err := readableTracker(ctx, s.trackers, actor, trackerID); err != nil {
		return nil, err
	}
	classes, err := s.classes.ListClasses(ctx, trackerID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return classes, nil
}

// AddClass adds a weekly class to an owned tracker.
func (s *TimetableService) AddClass(ctx context.Context, actor Actor, trackerID int64, input ClassInput) (class persistence.Class, err error) {
	if s == nil {
		err = fmt.Errorf("TimetableService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddClass", actor, "tracker_id", trackerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add class", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("class_id", class.ID).InfoContext(ctx, "class added")
	}()

	if _, err = ownedTracker(ctx, s.trackers, actor, trackerID); err != nil {
		return
	}
	normalized, vErr := normalizeClassInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	class, err = s.classes.CreateClass(ctx, persistence.Class{
		TrackerID: trackerID,
		Subject:   normalized.Subject,
		Weekday:   normalized.Weekday,
		StartTime: normalized.StartTime,
		EndTime:   normalized.EndTime,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	s.undo.Record(actor, UndoEntry{Kind: UndoAddClass, ClassID: class.ID})
	return
}

// EditClass replaces the subject, weekday, and times of a class on an owned tracker.
func (s *TimetableService) EditClass(ctx context.Context, actor Actor, classID int64, input ClassInput) (class persistence.Class, err error) {
	if s == nil {
		err = fmt.Errorf("TimetableService is nil")
		return
	}

	var purged int64
	logger := s.loggerWith(ctx, "EditClass", actor, "class_id", classID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to edit class", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("purged_pending_sessions", purged).InfoContext(ctx, "class edited")
	}()

	prior, err := s.ownedClass(ctx, actor, classID)
	if err != nil {
		return
	}
	normalized, vErr := normalizeClassInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	class = prior
	class.Subject = normalized.Subject
	class.Weekday = normalized.Weekday
	class.StartTime = normalized.StartTime
	class.EndTime = normalized.EndTime

	if err = s.classes.UpdateClass(ctx, class); err != nil {
		err = mapRepoError(err)
		return
	}

	if class.Weekday != prior.Weekday {
		today := s.engine.Today(s.now())
		if purged, err = s.sessions.DeletePendingSessionsAfter(ctx, class.ID, today); err != nil {
			err = mapRepoError(err)
			return
		}
	}

	s.undo.Record(actor, UndoEntry{Kind: UndoEditClass, ClassID: class.ID, PriorClass: prior})
	return
}

// DeleteClass removes a class of an owned tracker together with every
// session referencing it, for all users. Undo restores the class row but not
// the removed sessions.
func (s *TimetableService) DeleteClass(ctx context.Context, actor Actor, classID int64) (err error) {
	if s == nil {
		return fmt.Errorf("TimetableService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteClass", actor, "class_id", classID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete class", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "class deleted")
	}()

	prior, err := s.ownedClass(ctx, actor, classID)
	if err != nil {
		return err
	}
	if err = s.classes.DeleteClass(ctx, classID); err != nil {
		return mapRepoError(err)
	}

	s.undo.Record(actor, UndoEntry{Kind: UndoDeleteClass, ClassID: classID, PriorClass: prior})
	return nil
}

func (s *TimetableService) ownedClass(ctx context.Context, actor Actor, classID int64) (persistence.Class, error) {
	if err := requireActor(actor); err != nil {
		return persistence.Class{}, err
	}
	class, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		return persistence.Class{}, mapRepoError(err)
	}
	if _, err := ownedTracker(ctx, s.trackers, actor, class.TrackerID); err != nil {
		return persistence.Class{}, err
	}
	return class, nil
}

func normalizeClassInput(input ClassInput) (ClassInput, *ValidationError) {
	normalized := ClassInput{
		Subject:   strings.TrimSpace(input.Subject),
		Weekday:   input.Weekday,
		StartTime: strings.TrimSpace(input.StartTime),
		EndTime:   strings.TrimSpace(input.EndTime),
	}

	vErr := validateStruct(normalized)
	if vErr.HasErrors() {
		return normalized, vErr
	}

	start, _ := recurrence.ParseMinutes(normalized.StartTime)
	end, _ := recurrence.ParseMinutes(normalized.EndTime)
	normalized.StartTime = recurrence.FormatMinutes(start)
	normalized.EndTime = recurrence.FormatMinutes(end)
	if end <= start {
		vErr.add("end_time", "end time must be after start time")
	}
	return normalized, vErr
}
