package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

type world struct {
	harness  *testfixtures.SQLiteHarness
	factory  *testfixtures.ServiceFactory
	services *testfixtures.Services
	clock    *testfixtures.Clock
}

func newWorld(t *testing.T) *world {
	t.Helper()
	harness := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory()
	return &world{
		harness:  harness,
		factory:  factory,
		services: factory.NewServices(harness),
		clock:    factory.Clock,
	}
}

// student seeds a user and returns an actor for one sign-in of them.
func (w *world) student(t *testing.T, id string) application.Actor {
	t.Helper()
	w.harness.SeedUser(t, testfixtures.WithUserID(id))
	return application.Actor{UserID: id, SessionID: id + "-session"}
}

func (w *world) ownedTracker(t *testing.T, actor application.Actor) persistence.Tracker {
	t.Helper()
	return w.harness.SeedTracker(t, testfixtures.WithOwner(actor.UserID))
}

func (w *world) globalTracker(t *testing.T) persistence.Tracker {
	t.Helper()
	return w.harness.SeedTracker(t, testfixtures.AsGlobal(), testfixtures.WithTrackerName("Sem 6"))
}

func (w *world) addClass(t *testing.T, actor application.Actor, trackerID int64, subject string, weekday int, start, end string) persistence.Class {
	t.Helper()
	class, err := w.services.Timetable.AddClass(context.Background(), actor, trackerID, application.ClassInput{
		Subject:   subject,
		Weekday:   weekday,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return class
}

func (w *world) week(t *testing.T, actor application.Actor, trackerID int64, weekStart time.Time) []persistence.SessionView {
	t.Helper()
	sessions, err := w.services.Attendance.WeekSessions(context.Background(), actor, trackerID, weekStart)
	require.NoError(t, err)
	return sessions
}

func (w *world) classes(t *testing.T, actor application.Actor, trackerID int64) []persistence.Class {
	t.Helper()
	classes, err := w.services.Timetable.ListClasses(context.Background(), actor, trackerID)
	require.NoError(t, err)
	return classes
}

func subjects(sessions []persistence.SessionView) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Subject)
	}
	return out
}
