package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// UndoSessionStore captures the session writes an undo may need.
type UndoSessionStore interface {
	PendingSessionPurger
	UpdateSessionStatus(ctx context.Context, id int64, status persistence.SessionStatus) error
}

// UndoService reverses the actor's most recent timetable or attendance change.
type UndoService struct {
	undo     *UndoLog
	classes  ClassRepository
	sessions UndoSessionStore
	engine   *recurrence.Engine
	now      func() time.Time
	logger   *slog.Logger
}

// NewUndoService constructs an undo service with the provided dependencies.
func NewUndoService(undo *UndoLog, classes ClassRepository, sessions UndoSessionStore, engine *recurrence.Engine, now func() time.Time) *UndoService {
	return NewUndoServiceWithLogger(undo, classes, sessions, engine, now, nil)
}

// NewUndoServiceWithLogger constructs an undo service with a specified logger.
func NewUndoServiceWithLogger(undo *UndoLog, classes ClassRepository, sessions UndoSessionStore, engine *recurrence.Engine, now func() time.Time, logger *slog.Logger) *UndoService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &UndoService{
		undo:     undo,
		classes:  classes,
		sessions: sessions,
		engine:   engine,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Peek reports the actor's pending entry without applying it.
func (s *UndoService) Peek(actor Actor) (UndoEntry, bool) {
	if s == nil {
		return UndoEntry{}, false
	}
	return s.undo.Peek(actor)
}

// Undo applies and consumes the actor's pending entry. It fails with
// ErrUndoUnavailable when there is none. An entry whose target no longer
// exists, including a deleted class whose tracker is gone, is consumed and
// ErrNotFound is returned; any other failure leaves the entry pending.
//
// Reverting an edit that moved a class to another weekday purges the PENDING
// sessions after today, as the edit itself does.
func (s *UndoService) Undo(ctx context.Context, actor Actor) (result UndoResult, err error) {
	if s == nil {
		err = fmt.Errorf("UndoService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UndoService", "Undo", "actor_id", actor.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to undo", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("undo_kind", string(result.Kind), "class_id", result.ClassID, "session_id", result.SessionID).InfoContext(ctx, "change undone")
	}()

	if err = requireActor(actor); err != nil {
		return
	}
	entry, ok := s.undo.Take(actor)
	if !ok {
		err = ErrUndoUnavailable
		return
	}

	result = UndoResult{Kind: entry.Kind, ClassID: entry.ClassID, SessionID: entry.SessionID}
	if err = s.apply(ctx, entry); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.undo.restore(actor, entry)
		}
		result = UndoResult{}
	}
	return
}

func (s *UndoService) apply(ctx context.Context, entry UndoEntry) error {
	var err error
	switch entry.Kind {
	case UndoAddClass:
		err = s.classes.DeleteClass(ctx, entry.ClassID)
	case UndoEditClass:
		return s.revertEdit(ctx, entry.PriorClass)
	case UndoDeleteClass:
		_, err = s.classes.CreateClass(ctx, entry.PriorClass)
		if errors.Is(err, persistence.ErrConstraintViolation) {
			return ErrNotFound
		}
	case UndoStatusChange:
		err = s.sessions.UpdateSessionStatus(ctx, entry.SessionID, entry.PriorStatus)
	default:
		return fmt.Errorf("unknown undo kind %q", entry.Kind)
	}
	return mapRepoError(err)
}

func (s *UndoService) revertEdit(ctx context.Context, prior persistence.Class) error {
	current, err := s.classes.GetClass(ctx, prior.ID)
	if err != nil {
		return mapRepoError(err)
	}
	if err := s.classes.UpdateClass(ctx, prior); err != nil {
		return mapRepoError(err)
	}
	if current.Weekday == prior.Weekday {
		return nil
	}
	_, err = s.sessions.DeletePendingSessionsAfter(ctx, prior.ID, s.engine.Today(s.now()))
	return mapRepoError(err)
}
