package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// DefaultPromptBuffer is the delay after a class ends before its session is prompted.
const DefaultPromptBuffer = 5 * time.Minute

// SessionStore captures the session operations needed by the attendance service.
type SessionStore interface {
	GetSessionView(ctx context.Context, id int64) (persistence.SessionView, error)
	UpdateSessionStatus(ctx context.Context, id int64, status persistence.SessionStatus) error
	ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.SessionView, error)
	TallySubjects(ctx context.Context, userID string, trackerID int64) ([]persistence.SubjectTally, error)
}

// AttendanceService reads and answers a user's sessions.
type AttendanceService struct {
	trackers     TrackerReader
	materializer *Materializer
	sessions     SessionStore
	undo         *UndoLog
	engine       *recurrence.Engine
	now          func() time.Time
	buffer       time.Duration
	logger       *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
// A negative buffer falls back to DefaultPromptBuffer.
func NewAttendanceService(trackers TrackerReader, materializer *Materializer, sessions SessionStore, undo *UndoLog, engine *recurrence.Engine, now func() time.Time, buffer time.Duration) *AttendanceService {
	return NewAttendanceServiceWithLogger(trackers, materializer, sessions, undo, engine, now, buffer, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(trackers TrackerReader, materializer *Materializer, sessions SessionStore, undo *UndoLog, engine *recurrence.Engine, now func() time.Time, buffer time.Duration, logger *slog.Logger) *AttendanceService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if now == nil {
		now = time.Now
	}
	if buffer < 0 {
		buffer = DefaultPromptBuffer
	}
	return &AttendanceService{
		trackers:     trackers,
		materializer: materializer,
		sessions:     sessions,
		undo:         undo,
		engine:       engine,
		now:          now,
		buffer:       buffer,
		logger:       defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, actor Actor, attrs ...any) *slog.Logger {
	attrs = append([]any{"actor_id", actor.UserID}, attrs...)
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// WeekSessions materializes the week containing weekStart and returns the
// actor's sessions for it ordered by date, start time, end time, and subject.
func (s *AttendanceService) WeekSessions(ctx context.Context, actor Actor, trackerID int64, weekStart time.Time) ([]persistence.SessionView, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	monday := recurrence.WeekStart(weekStart)
	if _, err := s.materializer.EnsureWeek(ctx, actor, trackerID, monday); err != nil {
		return nil, err
	}
	sunday := monday.AddDate(0, 0, recurrence.DaysPerWeek-1)
	sessions, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{
		UserID:    actor.UserID,
		TrackerID: trackerID,
		From:      &monday,
		To:        &sunday,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sessions, nil
}

// Prompts returns every PENDING session of the actor on the tracker that is
// due for an answer, oldest first. The backlog is materialized up to today.
func (s *AttendanceService) Prompts(ctx context.Context, actor Actor, trackerID int64) (prompts []persistence.SessionView, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Prompts", actor, "tracker_id", trackerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list prompts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(prompts)).DebugContext(ctx, "prompts listed")
	}()

	now := s.now()
	today := s.engine.Today(now)
	if _, err = s.materializer.EnsureBacklog(ctx, actor, trackerID, today); err != nil {
		return
	}
	prompts, err = s.pending(ctx, actor, trackerID, nil, today, now)
	return
}

// TodayPrompts returns the due PENDING sessions dated today.
func (s *AttendanceService) TodayPrompts(ctx context.Context, actor Actor, trackerID int64) ([]persistence.SessionView, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	now := s.now()
	today := s.engine.Today(now)
	if _, err := s.materializer.EnsureWeek(ctx, actor, trackerID, today); err != nil {
		return nil, err
	}
	return s.pending(ctx, actor, trackerID, &today, today, now)
}

func (s *AttendanceService) pending(ctx context.Context, actor Actor, trackerID int64, from *time.Time, to, now time.Time) ([]persistence.SessionView, error) {
	status := persistence.StatusPending
	sessions, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{
		UserID:    actor.UserID,
		TrackerID: trackerID,
		From:      from,
		To:        &to,
		Status:    &status,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	loc := s.engine.Location()
	due := make([]persistence.SessionView, 0, len(sessions))
	for _, session := range sessions {
		if Eligible(session, now, loc, s.buffer) {
			due = append(due, session)
		}
	}
	SortPrompts(due)
	return due, nil
}

// Mark answers a PENDING session with ATTENDED, MISSED, or CANCELLED.
func (s *AttendanceService) Mark(ctx context.Context, actor Actor, sessionID int64, status persistence.SessionStatus) (persistence.SessionView, error) {
	return s.setStatus(ctx, "Mark", actor, sessionID, status, true)
}

// Modify moves any session of the actor to any status, including back to PENDING.
func (s *AttendanceService) Modify(ctx context.Context, actor Actor, sessionID int64, status persistence.SessionStatus) (persistence.SessionView, error) {
	return s.setStatus(ctx, "Modify", actor, sessionID, status, false)
}

func (s *AttendanceService) setStatus(ctx context.Context, operation string, actor Actor, sessionID int64, status persistence.SessionStatus, answer bool) (session persistence.SessionView, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, operation, actor, "session_id", sessionID, "status", string(status))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set session status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session status set")
	}()

	if err = requireActor(actor); err != nil {
		return
	}
	if answer && !decided(status) {
		err = validationFailure("status", "status must be ATTENDED, MISSED, or CANCELLED")
		return
	}
	if !status.Valid() {
		err = validationFailure("status", fmt.Sprintf("unknown status %q", status))
		return
	}

	session, err = s.sessions.GetSessionView(ctx, sessionID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if session.UserID != actor.UserID {
		session = persistence.SessionView{}
		err = ErrPermission
		return
	}
	if answer && session.Status != persistence.StatusPending {
		err = fmt.Errorf("%w: session %d is already %s", ErrConflict, sessionID, session.Status)
		return
	}

	prior := session.Status
	if err = s.sessions.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		err = mapRepoError(err)
		return
	}
	session.Status = status

	s.undo.Record(actor, UndoEntry{Kind: UndoStatusChange, SessionID: sessionID, PriorStatus: prior})
	return
}

// CourseStats aggregates the actor's attendance on a readable tracker per subject.
func (s *AttendanceService) CourseStats(ctx context.Context, actor Actor, trackerID int64) ([]CourseStat, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}
	if _, err := readableTracker(ctx, s.trackers, actor, trackerID); err != nil {
		return nil, err
	}
	tallies, err := s.sessions.TallySubjects(ctx, actor.UserID, trackerID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return ComputeCourseStats(tallies), nil
}

// ComputeCourseStats derives percentages from per-subject tallies. Cancelled
// sessions are excluded from the denominator; a zero denominator yields 0.
// Results are ordered by subject.
func ComputeCourseStats(tallies []persistence.SubjectTally) []CourseStat {
	stats := make([]CourseStat, 0, len(tallies))
	for _, tally := range tallies {
		stat := CourseStat{
			Subject:     tally.Subject,
			Attended:    tally.Attended,
			Missed:      tally.Missed,
			Cancelled:   tally.Cancelled,
			Denominator: tally.Attended + tally.Missed,
		}
		if stat.Denominator > 0 {
			pct := float64(stat.Attended) / float64(stat.Denominator) * 100
			stat.Percentage = math.Round(pct*100) / 100
		}
		stats = append(stats, stat)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Subject < stats[j].Subject })
	return stats
}

// Eligible reports whether a PENDING session should be prompted at now: once
// the class end time on the session date in loc plus buffer has been reached.
func Eligible(session persistence.SessionView, now time.Time, loc *time.Location, buffer time.Duration) bool {
	if session.Status != persistence.StatusPending {
		return false
	}
	end, err := recurrence.NewEngine(loc).At(session.Date, session.EndTime)
	if err != nil {
		return false
	}
	return !now.Before(end.Add(buffer))
}

// SortPrompts orders sessions by date, end time, start time, and subject.
func SortPrompts(sessions []persistence.SessionView) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EndTime != b.EndTime {
			return a.EndTime < b.EndTime
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.Subject < b.Subject
	})
}
