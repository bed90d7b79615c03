package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

func TestUndo_EmptyLog(t *testing.T) {
	w := newWorld(t)
	alice := w.student(t, "alice")

	_, err := w.services.Undoer.Undo(context.Background(), alice)
	assert.ErrorIs(t, err, application.ErrUndoUnavailable)

	_, err = w.services.Undoer.Undo(context.Background(), application.Actor{})
	assert.ErrorIs(t, err, application.ErrPermission)
}

func TestUndo_StatusChangeRestoresPriorStatus(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	session := w.week(t, alice, tracker.ID, testfixtures.SemesterStart)[0]

	_, err := w.services.Attendance.Mark(ctx, alice, session.ID, persistence.StatusAttended)
	require.NoError(t, err)

	result, err := w.services.Undoer.Undo(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, application.UndoResult{Kind: application.UndoStatusChange, SessionID: session.ID}, result)
	assert.Equal(t, persistence.StatusPending, w.week(t, alice, tracker.ID, testfixtures.SemesterStart)[0].Status)

	_, err = w.services.Undoer.Undo(ctx, alice)
	assert.ErrorIs(t, err, application.ErrUndoUnavailable, "only the latest change is reversible")
}

func TestUndo_AddClassRemovesClassAndSessions(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	require.Len(t, w.week(t, alice, tracker.ID, testfixtures.SemesterStart), 1)

	result, err := w.services.Undoer.Undo(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, application.UndoAddClass, result.Kind)
	assert.Equal(t, class.ID, result.ClassID)

	assert.Empty(t, w.classes(t, alice, tracker.ID))
	assert.Empty(t, w.week(t, alice, tracker.ID, testfixtures.SemesterStart))
}

func TestUndo_EditClassRestoresPriorFields(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")

	_, err := w.services.Timetable.EditClass(ctx, alice, class.ID, application.ClassInput{Subject: "Maths", Weekday: 3, StartTime: "14:00", EndTime: "15:30"})
	require.NoError(t, err)

	_, err = w.services.Undoer.Undo(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []persistence.Class{class}, w.classes(t, alice, tracker.ID))
}

func TestUndo_EditWeekdayRegeneratesOnRestoredDay(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	nextWeek := testfixtures.Date(2024, time.January, 8)
	require.Len(t, w.week(t, alice, tracker.ID, nextWeek), 1)

	_, err := w.services.Timetable.EditClass(ctx, alice, class.ID, application.ClassInput{Subject: "Math", Weekday: 1, StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	moved := w.week(t, alice, tracker.ID, nextWeek)
	require.Len(t, moved, 1)
	assert.Equal(t, testfixtures.Date(2024, time.January, 9), moved[0].Date)

	_, err = w.services.Undoer.Undo(ctx, alice)
	require.NoError(t, err)

	restored := w.week(t, alice, tracker.ID, nextWeek)
	require.Len(t, restored, 1, "the Tuesday session must not outlive the revert")
	assert.Equal(t, nextWeek, restored[0].Date)
	assert.Equal(t, class.ID, restored[0].ClassID)
}

func TestUndo_DeleteClassRestoresOriginalID(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	sessions := w.week(t, alice, tracker.ID, testfixtures.SemesterStart)
	_, err := w.services.Attendance.Mark(ctx, alice, sessions[0].ID, persistence.StatusAttended)
	require.NoError(t, err)

	require.NoError(t, w.services.Timetable.DeleteClass(ctx, alice, class.ID))
	result, err := w.services.Undoer.Undo(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, application.UndoDeleteClass, result.Kind)

	assert.Equal(t, []persistence.Class{class}, w.classes(t, alice, tracker.ID))

	restored := w.week(t, alice, tracker.ID, testfixtures.SemesterStart)
	require.Len(t, restored, 1)
	assert.Equal(t, persistence.StatusPending, restored[0].Status, "deleted sessions are regenerated, not recovered")
	assert.NotEqual(t, sessions[0].ID, restored[0].ID)
}

func TestUndo_MissingTargetConsumesEntry(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	session := w.week(t, alice, tracker.ID, testfixtures.SemesterStart)[0]
	_, err := w.services.Attendance.Mark(ctx, alice, session.ID, persistence.StatusMissed)
	require.NoError(t, err)

	require.NoError(t, w.harness.Classes.DeleteClass(ctx, class.ID))

	_, err = w.services.Undoer.Undo(ctx, alice)
	assert.ErrorIs(t, err, application.ErrNotFound)
	_, err = w.services.Undoer.Undo(ctx, alice)
	assert.ErrorIs(t, err, application.ErrUndoUnavailable)
}

func TestUndo_DeleteClassOfDeletedTrackerConsumesEntry(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	tracker := w.ownedTracker(t, alice)
	class := w.addClass(t, alice, tracker.ID, "Math", 0, "09:00", "10:00")
	require.NoError(t, w.services.Timetable.DeleteClass(ctx, alice, class.ID))

	phone := application.Actor{UserID: alice.UserID, SessionID: "alice-phone"}
	require.NoError(t, w.services.Trackers.Delete(ctx, phone, tracker.ID))

	_, err := w.services.Undoer.Undo(ctx, alice)
	assert.ErrorIs(t, err, application.ErrNotFound)
	_, err = w.services.Undoer.Undo(ctx, alice)
	assert.ErrorIs(t, err, application.ErrUndoUnavailable)
}

func TestUndo_ActorsDoNotShareEntries(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.student(t, "alice")
	bob := w.student(t, "bob")
	aliceTracker := w.ownedTracker(t, alice)
	bobTracker := w.ownedTracker(t, bob)

	w.addClass(t, alice, aliceTracker.ID, "Math", 0, "09:00", "10:00")
	w.addClass(t, bob, bobTracker.ID, "Art", 1, "09:00", "10:00")

	_, err := w.services.Undoer.Undo(ctx, bob)
	require.NoError(t, err)

	assert.Len(t, w.classes(t, alice, aliceTracker.ID), 1)
	assert.Empty(t, w.classes(t, bob, bobTracker.ID))

	otherTab := application.Actor{UserID: alice.UserID, SessionID: "another-tab"}
	_, err = w.services.Undoer.Undo(ctx, otherTab)
	assert.ErrorIs(t, err, application.ErrUndoUnavailable)

	_, ok := w.services.Undoer.Peek(alice)
	assert.True(t, ok)
}
