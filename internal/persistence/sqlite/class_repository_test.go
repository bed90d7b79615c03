package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/persistence"
)

func TestClassRepository_CreateValidates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := createTracker(t, store, nil, true)

	tests := []struct {
		name  string
		class persistence.Class
	}{
		{name: "empty subject", class: persistence.Class{TrackerID: tracker.ID, Subject: "  ", Weekday: 0, StartTime: "09:00", EndTime: "10:00"}},
		{name: "weekday out of range", class: persistence.Class{TrackerID: tracker.ID, Subject: "Math", Weekday: 7, StartTime: "09:00", EndTime: "10:00"}},
		{name: "end before start", class: persistence.Class{TrackerID: tracker.ID, Subject: "Math", Weekday: 0, StartTime: "10:00", EndTime: "09:00"}},
		{name: "unknown tracker", class: persistence.Class{TrackerID: 999, Subject: "Math", Weekday: 0, StartTime: "09:00", EndTime: "10:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Classes.CreateClass(ctx, tt.class)
			assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
		})
	}
}

func TestClassRepository_ListOrdersByWeekdayAndTime(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := createTracker(t, store, nil, true)

	createClass(t, store, tracker.ID, "Physics", 2, "09:00", "10:00")
	createClass(t, store, tracker.ID, "Math", 0, "11:00", "12:00")
	createClass(t, store, tracker.ID, "Chemistry", 0, "09:00", "10:00")

	classes, err := store.Classes.ListClasses(ctx, tracker.ID)
	require.NoError(t, err)
	require.Len(t, classes, 3)
	assert.Equal(t, []string{"Chemistry", "Math", "Physics"}, []string{classes[0].Subject, classes[1].Subject, classes[2].Subject})
}

func TestClassRepository_Update(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := createTracker(t, store, nil, true)
	class := createClass(t, store, tracker.ID, "Math", 0, "09:00", "10:00")

	class.Subject = "Algebra"
	class.Weekday = 3
	class.StartTime = "14:00"
	class.EndTime = "15:30"
	require.NoError(t, store.Classes.UpdateClass(ctx, class))

	fetched, err := store.Classes.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class, fetched)

	class.ID = 999
	assert.ErrorIs(t, store.Classes.UpdateClass(ctx, class), persistence.ErrNotFound)
}

func TestClassRepository_DeleteCascadesAcrossUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createUser(t, store, "u-1")
	createUser(t, store, "u-2")
	tracker := createTracker(t, store, nil, true)
	class := createClass(t, store, tracker.ID, "Math", 0, "09:00", "10:00")
	other := createClass(t, store, tracker.ID, "Physics", 1, "09:00", "10:00")

	_, err := store.Sessions.InsertPendingSessions(ctx, []persistence.SessionKey{
		{UserID: "u-1", ClassID: class.ID, Date: date(2024, time.January, 1)},
		{UserID: "u-2", ClassID: class.ID, Date: date(2024, time.January, 1)},
		{UserID: "u-1", ClassID: other.ID, Date: date(2024, time.January, 2)},
	})
	require.NoError(t, err)

	require.NoError(t, store.Classes.DeleteClass(ctx, class.ID))

	_, err = store.Classes.GetClass(ctx, class.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	for _, user := range []string{"u-1", "u-2"} {
		sessions, err := store.Sessions.ListSessions(ctx, persistence.SessionFilter{UserID: user, TrackerID: tracker.ID})
		require.NoError(t, err)
		for _, s := range sessions {
			assert.NotEqual(t, class.ID, s.ClassID)
		}
	}

	assert.ErrorIs(t, store.Classes.DeleteClass(ctx, class.ID), persistence.ErrNotFound)
}

func TestClassRepository_RestoreUnderOriginalID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := createTracker(t, store, nil, true)
	class := createClass(t, store, tracker.ID, "Math", 0, "09:00", "10:00")

	require.NoError(t, store.Classes.DeleteClass(ctx, class.ID))

	next := createClass(t, store, tracker.ID, "Physics", 1, "09:00", "10:00")
	assert.Greater(t, next.ID, class.ID)

	restored, err := store.Classes.CreateClass(ctx, class)
	require.NoError(t, err)
	assert.Equal(t, class, restored)

	_, err = store.Classes.CreateClass(ctx, class)
	assert.ErrorIs(t, err, persistence.ErrDuplicate)
}

func TestClassRepository_ClearClasses(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createUser(t, store, "u-1")
	tracker := createTracker(t, store, nil, true)
	class := createClass(t, store, tracker.ID, "Math", 0, "09:00", "10:00")
	createClass(t, store, tracker.ID, "Physics", 1, "09:00", "10:00")

	_, err := store.Sessions.InsertPendingSessions(ctx, []persistence.SessionKey{
		{UserID: "u-1", ClassID: class.ID, Date: date(2024, time.January, 1)},
	})
	require.NoError(t, err)

	removed, err := store.Classes.ClearClasses(ctx, tracker.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	classes, err := store.Classes.ListClasses(ctx, tracker.ID)
	require.NoError(t, err)
	assert.Empty(t, classes)

	_, err = store.Trackers.GetTracker(ctx, tracker.ID)
	assert.NoError(t, err)
}
