package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// TrackerRepository implements persistence.TrackerRepository using SQLite.
type TrackerRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewTrackerRepository creates a new SQLite tracker repository.
func NewTrackerRepository(pool *ConnectionPool) *TrackerRepository {
	return &TrackerRepository{pool: pool, mapper: NewErrorMapper()}
}

const trackerColumns = `id, name, start_date, end_date, is_global, owner_user_id, cloned_from, created_at`

// CreateTracker inserts a tracker and returns it with its assigned id.
func (r *TrackerRepository) CreateTracker(ctx context.Context, tracker persistence.Tracker) (persistence.Tracker, error) {
	if strings.TrimSpace(tracker.Name) == "" || tracker.EndDate.Before(tracker.StartDate) {
		return persistence.Tracker{}, persistence.ErrConstraintViolation
	}
	if tracker.CreatedAt.IsZero() {
		tracker.CreatedAt = time.Now()
	}

	var created persistence.Tracker
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		id, err := r.insertTracker(ctx, tx, tracker)
		if err != nil {
			return err
		}
		created, err = r.getTracker(ctx, tx, id)
		return err
	})
	if err != nil {
		return persistence.Tracker{}, r.mapper.MapError(err)
	}
	return created, nil
}

func (r *TrackerRepository) insertTracker(ctx context.Context, q queryer, tracker persistence.Tracker) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO trackers (name, start_date, end_date, is_global, owner_user_id, cloned_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		strings.TrimSpace(tracker.Name),
		formatDate(tracker.StartDate),
		formatDate(tracker.EndDate),
		boolToInt(tracker.IsGlobal),
		nullableString(tracker.OwnerUserID),
		nullableInt64(tracker.ClonedFrom),
		formatTimestamp(tracker.CreatedAt),
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.LastInsertId()
}

// GetTracker retrieves a tracker by id.
func (r *TrackerRepository) GetTracker(ctx context.Context, id int64) (persistence.Tracker, error) {
	return r.getTracker(ctx, r.pool.db, id)
}

func (r *TrackerRepository) getTracker(ctx context.Context, q queryer, id int64) (persistence.Tracker, error) {
	if id <= 0 {
		return persistence.Tracker{}, persistence.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE id = ?`, id)
	return r.scanTracker(row)
}

// GetGlobalTracker retrieves the shared read-only tracker.
func (r *TrackerRepository) GetGlobalTracker(ctx context.Context) (persistence.Tracker, error) {
	row := r.pool.db.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE is_global = 1 ORDER BY id LIMIT 1`)
	return r.scanTracker(row)
}

// ListTrackersForUser returns the global tracker followed by the user's own trackers.
func (r *TrackerRepository) ListTrackersForUser(ctx context.Context, userID string) ([]persistence.Tracker, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+trackerColumns+`
		FROM trackers
		WHERE is_global = 1 OR owner_user_id = ?
		ORDER BY is_global DESC, id ASC
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var trackers []persistence.Tracker
	for rows.Next() {
		tracker, err := r.scanTracker(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, tracker)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return trackers, nil
}

// FindClone returns the owner's copy of sourceID.
func (r *TrackerRepository) FindClone(ctx context.Context, ownerID string, sourceID int64) (persistence.Tracker, error) {
	return r.findClone(ctx, r.pool.db, ownerID, sourceID)
}

func (r *TrackerRepository) findClone(ctx context.Context, q queryer, ownerID string, sourceID int64) (persistence.Tracker, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE owner_user_id = ? AND cloned_from = ?`,
		ownerID, sourceID)
	return r.scanTracker(row)
}

// CloneTracker copies the source tracker and its classes for ownerID. Sessions
// are never copied. The (owner, source) unique index turns a concurrent second
// insert into a no-op, in which case the existing copy is returned.
func (r *TrackerRepository) CloneTracker(ctx context.Context, ownerID string, sourceID int64, createdAt time.Time) (persistence.Tracker, bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return persistence.Tracker{}, false, persistence.ErrConstraintViolation
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var (
		clone   persistence.Tracker
		created bool
	)
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		created = false

		source, err := r.getTracker(ctx, tx, sourceID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO trackers (name, start_date, end_date, is_global, owner_user_id, cloned_from, created_at)
			VALUES (?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(owner_user_id, cloned_from) DO NOTHING
		`,
			source.Name,
			formatDate(source.StartDate),
			formatDate(source.EndDate),
			ownerID,
			source.ID,
			formatTimestamp(createdAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			clone, err = r.findClone(ctx, tx, ownerID, source.ID)
			return err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read clone id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO classes (tracker_id, subject, day_of_week, start_time, end_time)
			SELECT ?, subject, day_of_week, start_time, end_time
			FROM classes
			WHERE tracker_id = ?
			ORDER BY id
		`, id, source.ID); err != nil {
			return r.mapper.MapError(err)
		}

		clone, err = r.getTracker(ctx, tx, id)
		created = err == nil
		return err
	})
	if err != nil {
		return persistence.Tracker{}, false, r.mapper.MapError(err)
	}
	return clone, created, nil
}

// DeleteTracker removes a tracker, its classes, and every session of those classes.
func (r *TrackerRepository) DeleteTracker(ctx context.Context, id int64) error {
	if id <= 0 {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := deleteTrackerClasses(ctx, tx, id); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE trackers SET cloned_from = NULL WHERE cloned_from = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM trackers WHERE id = ?`, id)
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

// EnsureGlobalTracker keeps exactly one global tracker. Extra global rows are
// demoted, keeping the lowest id. Without any global row the lowest-id tracker
// is promoted, or a new one is created from seed on an empty store. A non-empty
// seed name is applied to the surviving global tracker.
func (r *TrackerRepository) EnsureGlobalTracker(ctx context.Context, seed persistence.Tracker) (persistence.Tracker, error) {
	var global persistence.Tracker
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		ids, err := r.globalIDs(ctx, tx)
		if err != nil {
			return err
		}

		var keep int64
		switch {
		case len(ids) > 1:
			keep = ids[0]
			if _, err := tx.ExecContext(ctx,
				`UPDATE trackers SET is_global = 0 WHERE is_global = 1 AND id <> ?`, keep); err != nil {
				return r.mapper.MapError(err)
			}
		case len(ids) == 1:
			keep = ids[0]
		default:
			err := tx.QueryRowContext(ctx, `SELECT id FROM trackers ORDER BY id LIMIT 1`).Scan(&keep)
			if errors.Is(err, sql.ErrNoRows) {
				seed.IsGlobal = true
				seed.OwnerUserID = nil
				seed.ClonedFrom = nil
				if seed.CreatedAt.IsZero() {
					seed.CreatedAt = time.Now()
				}
				keep, err = r.insertTracker(ctx, tx, seed)
			}
			if err != nil {
				return r.mapper.MapError(err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE trackers SET is_global = 1, owner_user_id = NULL, cloned_from = NULL WHERE id = ?`, keep); err != nil {
				return r.mapper.MapError(err)
			}
		}

		if name := strings.TrimSpace(seed.Name); name != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE trackers SET name = ? WHERE id = ?`, name, keep); err != nil {
				return r.mapper.MapError(err)
			}
		}

		global, err = r.getTracker(ctx, tx, keep)
		return err
	})
	if err != nil {
		return persistence.Tracker{}, r.mapper.MapError(err)
	}
	return global, nil
}

func (r *TrackerRepository) globalIDs(ctx context.Context, q queryer) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM trackers WHERE is_global = 1 ORDER BY id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, r.mapper.MapError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TrackerRepository) scanTracker(row rowScanner) (persistence.Tracker, error) {
	var (
		tracker            persistence.Tracker
		startDate, endDate string
		isGlobal           int
		owner              sql.NullString
		clonedFrom         sql.NullInt64
		createdAt          string
	)

	if err := row.Scan(
		&tracker.ID,
		&tracker.Name,
		&startDate,
		&endDate,
		&isGlobal,
		&owner,
		&clonedFrom,
		&createdAt,
	); err != nil {
		return persistence.Tracker{}, r.mapper.MapError(err)
	}

	tracker.IsGlobal = isGlobal == 1
	if owner.Valid {
		value := owner.String
		tracker.OwnerUserID = &value
	}
	if clonedFrom.Valid {
		value := clonedFrom.Int64
		tracker.ClonedFrom = &value
	}

	var err error
	if tracker.StartDate, err = parseDate(startDate); err != nil {
		return persistence.Tracker{}, fmt.Errorf("failed to parse start_date: %w", err)
	}
	if tracker.EndDate, err = parseDate(endDate); err != nil {
		return persistence.Tracker{}, fmt.Errorf("failed to parse end_date: %w", err)
	}
	if tracker.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Tracker{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return tracker, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
