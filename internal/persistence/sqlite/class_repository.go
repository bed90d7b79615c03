package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/attendance-tracker/internal/persistence"
)

// ClassRepository implements persistence.ClassRepository using SQLite.
type ClassRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewClassRepository creates a new SQLite class repository.
func NewClassRepository(pool *ConnectionPool) *ClassRepository {
	return &ClassRepository{pool: pool, mapper: NewErrorMapper()}
}

const classColumns = `id, tracker_id, subject, day_of_week, start_time, end_time`

// CreateClass inserts a class. When class.ID is set the row is inserted under
// that id; AUTOINCREMENT guarantees a deleted id has not been handed out again.
func (r *ClassRepository) CreateClass(ctx context.Context, class persistence.Class) (persistence.Class, error) {
	if err := checkClass(class); err != nil {
		return persistence.Class{}, err
	}

	var (
		result sql.Result
		err    error
	)
	if class.ID > 0 {
		result, err = r.pool.db.ExecContext(ctx,
			`INSERT INTO classes (`+classColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			class.ID, class.TrackerID, strings.TrimSpace(class.Subject), class.Weekday, class.StartTime, class.EndTime)
	} else {
		result, err = r.pool.db.ExecContext(ctx,
			`INSERT INTO classes (tracker_id, subject, day_of_week, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
			class.TrackerID, strings.TrimSpace(class.Subject), class.Weekday, class.StartTime, class.EndTime)
	}
	if err != nil {
		return persistence.Class{}, r.mapper.MapError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.Class{}, fmt.Errorf("failed to read class id: %w", err)
	}
	return r.GetClass(ctx, id)
}

// GetClass retrieves a class by id.
func (r *ClassRepository) GetClass(ctx context.Context, id int64) (persistence.Class, error) {
	if id <= 0 {
		return persistence.Class{}, persistence.ErrNotFound
	}
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id)
	return r.scanClass(row)
}

// UpdateClass replaces the slot fields of a class. The owning tracker never changes.
func (r *ClassRepository) UpdateClass(ctx context.Context, class persistence.Class) error {
	if class.ID <= 0 {
		return persistence.ErrNotFound
	}
	if err := checkClass(class); err != nil {
		return err
	}

	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE classes
		SET subject = ?, day_of_week = ?, start_time = ?, end_time = ?
		WHERE id = ?
	`, strings.TrimSpace(class.Subject), class.Weekday, class.StartTime, class.EndTime, class.ID)
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

// ListClasses returns the classes of a tracker ordered by weekday, start, end, and subject.
func (r *ClassRepository) ListClasses(ctx context.Context, trackerID int64) ([]persistence.Class, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+classColumns+`
		FROM classes
		WHERE tracker_id = ?
		ORDER BY day_of_week, start_time, end_time, subject, id
	`, trackerID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var classes []persistence.Class
	for rows.Next() {
		class, err := r.scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return classes, nil
}

// DeleteClass removes a class together with the sessions of every user that reference it.
func (r *ClassRepository) DeleteClass(ctx context.Context, id int64) error {
	if id <= 0 {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE class_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, id)
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
	})
}

// ClearClasses removes every class of a tracker and their sessions, returning
// the number of classes removed.
func (r *ClassRepository) ClearClasses(ctx context.Context, trackerID int64) (int64, error) {
	var removed int64
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = deleteTrackerClasses(ctx, tx, trackerID)
		return err
	})
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return removed, nil
}

func deleteTrackerClasses(ctx context.Context, q queryer, trackerID int64) (int64, error) {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM sessions WHERE class_id IN (SELECT id FROM classes WHERE tracker_id = ?)`, trackerID); err != nil {
		return 0, err
	}
	result, err := q.ExecContext(ctx, `DELETE FROM classes WHERE tracker_id = ?`, trackerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func checkClass(class persistence.Class) error {
	if strings.TrimSpace(class.Subject) == "" {
		return persistence.ErrConstraintViolation
	}
	if class.Weekday < 0 || class.Weekday > 6 {
		return persistence.ErrConstraintViolation
	}
	if class.EndTime <= class.StartTime {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func (r *ClassRepository) scanClass(row rowScanner) (persistence.Class, error) {
	var class persistence.Class
	if err := row.Scan(
		&class.ID,
		&class.TrackerID,
		&class.Subject,
		&class.Weekday,
		&class.StartTime,
		&class.EndTime,
	); err != nil {
		return persistence.Class{}, r.mapper.MapError(err)
	}
	return class, nil
}
