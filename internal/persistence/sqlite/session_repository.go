package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool, mapper: NewErrorMapper()}
}

const sessionViewColumns = `s.id, s.user_id, s.class_id, s.session_date, s.status, c.tracker_id, c.subject, c.start_time, c.end_time`

// InsertPendingSessions inserts a PENDING row for each key and leaves existing
// rows untouched, returning the number of rows actually created.
func (r *SessionRepository) InsertPendingSessions(ctx context.Context, keys []persistence.SessionKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var inserted int64
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		inserted = 0

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sessions (user_id, class_id, session_date, status)
			VALUES (?, ?, ?, 'PENDING')
			ON CONFLICT(user_id, class_id, session_date) DO NOTHING
		`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for _, key := range keys {
			result, err := stmt.ExecContext(ctx, key.UserID, key.ClassID, formatDate(key.Date))
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += affected
		}
		return nil
	})
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return inserted, nil
}

// GetSession retrieves a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (persistence.Session, error) {
	view, err := r.GetSessionView(ctx, id)
	if err != nil {
		return persistence.Session{}, err
	}
	return view.Session, nil
}

// GetSessionView retrieves a session joined with its class.
func (r *SessionRepository) GetSessionView(ctx context.Context, id int64) (persistence.SessionView, error) {
	if id <= 0 {
		return persistence.SessionView{}, persistence.ErrNotFound
	}
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT `+sessionViewColumns+`
		FROM sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.id = ?
	`, id)
	return r.scanSessionView(row)
}

// UpdateSessionStatus overwrites the status of a session.
func (r *SessionRepository) UpdateSessionStatus(ctx context.Context, id int64, status persistence.SessionStatus) error {
	if id <= 0 {
		return persistence.ErrNotFound
	}
	if !status.Valid() {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListSessions returns the user's sessions on one tracker ordered by date,
// start time, end time, and subject.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.SessionView, error) {
	var (
		clauses = []string{"s.user_id = ?", "c.tracker_id = ?"}
		args    = []any{filter.UserID, filter.TrackerID}
	)
	if filter.From != nil {
		clauses = append(clauses, "s.session_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "s.session_date <= ?")
		args = append(args, formatDate(*filter.To))
	}
	if filter.Status != nil {
		clauses = append(clauses, "s.status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `
		SELECT ` + sessionViewColumns + `
		FROM sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY s.session_date, c.start_time, c.end_time, c.subject, s.id
	`
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var views []persistence.SessionView
	for rows.Next() {
		view, err := r.scanSessionView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return views, nil
}

// DeletePendingSessionsAfter removes PENDING sessions of a class dated strictly after the given date.
func (r *SessionRepository) DeletePendingSessionsAfter(ctx context.Context, classID int64, after time.Time) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE class_id = ? AND status = 'PENDING' AND session_date > ?`,
		classID, formatDate(after))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

// TallySubjects counts decided sessions per subject for one user and tracker.
// Subjects with classes but no sessions are not reported.
func (r *SessionRepository) TallySubjects(ctx context.Context, userID string, trackerID int64) ([]persistence.SubjectTally, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT
			c.subject,
			COALESCE(SUM(CASE WHEN s.status = 'ATTENDED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'MISSED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'CANCELLED' THEN 1 ELSE 0 END), 0)
		FROM sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.user_id = ? AND c.tracker_id = ?
		GROUP BY c.subject
		ORDER BY c.subject
	`, userID, trackerID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var tallies []persistence.SubjectTally
	for rows.Next() {
		var tally persistence.SubjectTally
		if err := rows.Scan(&tally.Subject, &tally.Attended, &tally.Missed, &tally.Cancelled); err != nil {
			return nil, r.mapper.MapError(err)
		}
		tallies = append(tallies, tally)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return tallies, nil
}

func (r *SessionRepository) scanSessionView(row rowScanner) (persistence.SessionView, error) {
	var (
		view        persistence.SessionView
		sessionDate string
		status      string
	)
	if err := row.Scan(
		&view.ID,
		&view.UserID,
		&view.ClassID,
		&sessionDate,
		&status,
		&view.TrackerID,
		&view.Subject,
		&view.StartTime,
		&view.EndTime,
	); err != nil {
		return persistence.SessionView{}, r.mapper.MapError(err)
	}

	date, err := parseDate(sessionDate)
	if err != nil {
		return persistence.SessionView{}, fmt.Errorf("failed to parse session_date: %w", err)
	}
	view.Date = date
	view.Status = persistence.SessionStatus(status)
	return view, nil
}
