package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

var (
	userCounter    uint64
	trackerCounter uint64
)

// IST is the zone wall-clock class times are interpreted in by default.
var IST = time.FixedZone("IST", 5*60*60+30*60)

var referenceTime = time.Date(2024, time.January, 1, 9, 0, 0, 0, IST)

// ReferenceTime returns the canonical baseline instant used by fixtures:
// Monday 2024-01-01 09:00 IST, the first day of SemesterStart.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date returns the calendar date at UTC midnight, the form dates are stored in.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

var (
	// SemesterStart is the first day of the default tracker window.
	SemesterStart = Date(2024, time.January, 1)
	// SemesterEnd is the last day of the default tracker window.
	SemesterEnd = Date(2024, time.May, 1)
)

// ----------------------------- User fixtures -----------------------------

// UserOption configures the generated user fixture.
type UserOption func(*persistence.User)

// NewUserFixture returns a deterministic user record with optional overrides.
func NewUserFixture(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	user := persistence.User{
		ID:          fmt.Sprintf("student-%03d", idx),
		DisplayName: fmt.Sprintf("Student %03d", idx),
		CreatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) {
		u.ID = id
	}
}

// WithUsername sets the signup username.
func WithUsername(username string) UserOption {
	return func(u *persistence.User) {
		u.Username = &username
	}
}

// WithDisplayName overrides the generated display name.
func WithDisplayName(name string) UserOption {
	return func(u *persistence.User) {
		u.DisplayName = name
	}
}

// --------------------------- Tracker fixtures ----------------------------

// TrackerOption configures the generated tracker fixture.
type TrackerOption func(*persistence.Tracker)

// NewTrackerFixture returns an unowned, non-global tracker spanning the
// default semester. Use WithOwner or AsGlobal to make it valid for storage.
func NewTrackerFixture(opts ...TrackerOption) persistence.Tracker {
	idx := atomic.AddUint64(&trackerCounter, 1)
	tracker := persistence.Tracker{
		Name:      fmt.Sprintf("Semester %03d", idx),
		StartDate: SemesterStart,
		EndDate:   SemesterEnd,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&tracker)
	}
	return tracker
}

// WithOwner makes the tracker privately owned by userID.
func WithOwner(userID string) TrackerOption {
	return func(t *persistence.Tracker) {
		t.OwnerUserID = &userID
		t.IsGlobal = false
	}
}

// AsGlobal flags the tracker as the shared read-only tracker.
func AsGlobal() TrackerOption {
	return func(t *persistence.Tracker) {
		t.IsGlobal = true
		t.OwnerUserID = nil
	}
}

// WithWindow overrides the validity window.
func WithWindow(start, end time.Time) TrackerOption {
	return func(t *persistence.Tracker) {
		t.StartDate = start
		t.EndDate = end
	}
}

// WithTrackerName overrides the generated name.
func WithTrackerName(name string) TrackerOption {
	return func(t *persistence.Tracker) {
		t.Name = name
	}
}

// ---------------------------- Class fixtures -----------------------------

// NewClassFixture returns a class on trackerID. Weekday is 0 for Monday.
func NewClassFixture(trackerID int64, subject string, weekday int, start, end string) persistence.Class {
	return persistence.Class{
		TrackerID: trackerID,
		Subject:   subject,
		Weekday:   weekday,
		StartTime: start,
		EndTime:   end,
	}
}

// ------------------------------- Seeding ---------------------------------

// SeedUser stores a user fixture.
func (h *SQLiteHarness) SeedUser(tb testing.TB, opts ...UserOption) persistence.User {
	tb.Helper()
	user, err := h.Users.EnsureUser(context.Background(), NewUserFixture(opts...))
	if err != nil {
		tb.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// SeedTracker stores a tracker fixture.
func (h *SQLiteHarness) SeedTracker(tb testing.TB, opts ...TrackerOption) persistence.Tracker {
	tb.Helper()
	tracker, err := h.Trackers.CreateTracker(context.Background(), NewTrackerFixture(opts...))
	if err != nil {
		tb.Fatalf("failed to seed tracker: %v", err)
	}
	return tracker
}

// SeedClass stores a class on trackerID.
func (h *SQLiteHarness) SeedClass(tb testing.TB, trackerID int64, subject string, weekday int, start, end string) persistence.Class {
	tb.Helper()
	class, err := h.Classes.CreateClass(context.Background(), NewClassFixture(trackerID, subject, weekday, start, end))
	if err != nil {
		tb.Fatalf("failed to seed class: %v", err)
	}
	return class
}
