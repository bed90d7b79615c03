package persistence

import "time"

// DateLayout is the storage representation of calendar dates.
const DateLayout = "2006-01-02"

// User is an identity handed over by the external identity provider.
type User struct {
	ID          string
	Username    *string
	DisplayName string
	CreatedAt   time.Time
}

// Tracker is a named timetable with an inclusive validity window.
//
// Exactly one tracker is flagged global; it has no owner and is read-only for
// regular users. Every other tracker has an owner.
type Tracker struct {
	ID          int64
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	IsGlobal    bool
	OwnerUserID *string
	ClonedFrom  *int64
	CreatedAt   time.Time
}

// OwnedBy reports whether the tracker is privately owned by userID.
func (t Tracker) OwnedBy(userID string) bool {
	return !t.IsGlobal && t.OwnerUserID != nil && *t.OwnerUserID == userID
}

// Class is a recurring weekly slot. Weekday is 0 for Monday through 6 for Sunday.
type Class struct {
	ID        int64
	TrackerID int64
	Subject   string
	Weekday   int
	StartTime string
	EndTime   string
}

// SessionStatus is the attendance state of a session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "PENDING"
	StatusAttended  SessionStatus = "ATTENDED"
	StatusMissed    SessionStatus = "MISSED"
	StatusCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether s is one of the four known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAttended, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// Session is a calendar-dated attendance record, unique per (user, class, date).
type Session struct {
	ID      int64         `json:"id"`
	UserID  string        `json:"user_id"`
	ClassID int64         `json:"class_id"`
	Date    time.Time     `json:"date"`
	Status  SessionStatus `json:"status"`
}

// SessionKey identifies a session to materialize.
type SessionKey struct {
	UserID  string
	ClassID int64
	Date    time.Time
}

// SessionView joins a session with the slot fields of its class.
type SessionView struct {
	Session
	TrackerID int64  `json:"tracker_id"`
	Subject   string `json:"subject"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SubjectTally holds per-subject status counts for one user and tracker.
type SubjectTally struct {
	Subject   string
	Attended  int
	Missed    int
	Cancelled int
}
