package persistence

import (
	"context"
	"time"
)

// UserRepository stores identities known to the tracker.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	EnsureUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
}

// TrackerRepository stores timetables and their ownership.
type TrackerRepository interface {
	CreateTracker(ctx context.Context, tracker Tracker) (Tracker, error)
	GetTracker(ctx context.Context, id int64) (Tracker, error)
	GetGlobalTracker(ctx context.Context) (Tracker, error)
	ListTrackersForUser(ctx context.Context, userID string) ([]Tracker, error)
	FindClone(ctx context.Context, ownerID string, sourceID int64) (Tracker, error)
	// CloneTracker creates the owner's private copy of source with all of its
	// classes in one transaction. When the copy already exists it is returned
	// with created set to false.
	CloneTracker(ctx context.Context, ownerID string, sourceID int64, createdAt time.Time) (tracker Tracker, created bool, err error)
	DeleteTracker(ctx context.Context, id int64) error
	// EnsureGlobalTracker asserts the single global tracker, promoting or
	// creating one from seed when needed and demoting any extras.
	EnsureGlobalTracker(ctx context.Context, seed Tracker) (Tracker, error)
}

// ClassRepository stores weekly slots.
type ClassRepository interface {
	// CreateClass inserts a class. A non-zero ID is kept, which restores a
	// previously deleted row under its original identity.
	CreateClass(ctx context.Context, class Class) (Class, error)
	GetClass(ctx context.Context, id int64) (Class, error)
	UpdateClass(ctx context.Context, class Class) error
	ListClasses(ctx context.Context, trackerID int64) ([]Class, error)
	// DeleteClass removes the class and every session referencing it.
	DeleteClass(ctx context.Context, id int64) error
	// ClearClasses removes all classes of a tracker and their sessions.
	ClearClasses(ctx context.Context, trackerID int64) (int64, error)
}

// SessionFilter narrows session listings. UserID and TrackerID are required.
type SessionFilter struct {
	UserID    string
	TrackerID int64
	From      *time.Time
	To        *time.Time
	Status    *SessionStatus
}

// SessionRepository stores per-user attendance records.
type SessionRepository interface {
	// InsertPendingSessions inserts PENDING rows, ignoring keys that already exist.
	InsertPendingSessions(ctx context.Context, keys []SessionKey) (int64, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	GetSessionView(ctx context.Context, id int64) (SessionView, error)
	UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]SessionView, error)
	// DeletePendingSessionsAfter removes PENDING sessions of a class dated strictly after the given date.
	DeletePendingSessionsAfter(ctx context.Context, classID int64, after time.Time) (int64, error)
	TallySubjects(ctx context.Context, userID string, trackerID int64) ([]SubjectTally, error)
}
