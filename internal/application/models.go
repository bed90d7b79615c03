package application

import (
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

// Actor identifies the caller of a service method. UserID comes from the
// identity provider; SessionID scopes per-caller state such as the undo slot to
// one sign-in of that user.
type Actor struct {
	UserID    string
	SessionID string
}

// RegisterUserInput captures the fields accepted on signup.
type RegisterUserInput struct {
	Username    string `json:"username" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"max=120"`
}

// TrackerInput captures caller provided tracker fields.
type TrackerInput struct {
	Name      string    `json:"name" validate:"required,max=120"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// ClassInput captures caller provided class fields. Weekday is 0 for Monday
// through 6 for Sunday.
type ClassInput struct {
	Subject   string `json:"subject" validate:"required,max=120"`
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

// GlobalTrackerSeed describes the shared tracker created on an empty store.
type GlobalTrackerSeed struct {
	Name string
	Days int
}

// CourseStat aggregates one subject's attendance for a user on a tracker.
type CourseStat struct {
	Subject     string  `json:"subject"`
	Attended    int     `json:"attended"`
	Missed      int     `json:"missed"`
	Cancelled   int     `json:"cancelled"`
	Denominator int     `json:"denominator"`
	Percentage  float64 `json:"percentage"`
}

// UndoResult reports the reversal that was applied.
type UndoResult struct {
	Kind      UndoKind
	ClassID   int64
	SessionID int64
}

// decided reports whether status is a prompt answer.
func decided(status persistence.SessionStatus) bool {
	switch status {
	case persistence.StatusAttended, persistence.StatusMissed, persistence.StatusCancelled:
		return true
	}
	return false
}
