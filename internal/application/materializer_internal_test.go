package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/attendance-tracker/internal/persistence"
)

type stubTrackerReader struct {
	tracker persistence.Tracker
}

func (s stubTrackerReader) GetTracker(ctx context.Context, id int64) (persistence.Tracker, error) {
	if id != s.tracker.ID {
		return persistence.Tracker{}, persistence.ErrNotFound
	}
	return s.tracker, nil
}

type stubClassLister struct {
	classes []persistence.Class
}

func (s stubClassLister) ListClasses(ctx context.Context, trackerID int64) ([]persistence.Class, error) {
	return s.classes, nil
}

// gatedInserter blocks every insert until release is closed.
type gatedInserter struct {
	entered chan struct{}
	release chan struct{}
	done    chan struct{}
	calls   atomic.Int32
	ctxErr  error
}

func newGatedInserter() *gatedInserter {
	return &gatedInserter{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (g *gatedInserter) InsertPendingSessions(ctx context.Context, keys []persistence.SessionKey) (int64, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	g.ctxErr = ctx.Err()
	close(g.done)
	return int64(len(keys)), g.ctxErr
}

func TestMaterializer_BacklogOutlivesCancelledCaller(t *testing.T) {
	t.Parallel()

	owner := "alice"
	actor := Actor{UserID: owner, SessionID: "tab-1"}
	trackers := stubTrackerReader{tracker: persistence.Tracker{
		ID:          7,
		Name:        "Week",
		StartDate:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC),
		OwnerUserID: &owner,
	}}
	classes := stubClassLister{classes: []persistence.Class{
		{ID: 1, TrackerID: 7, Subject: "Math", Weekday: 2, StartTime: "09:00", EndTime: "10:00"},
	}}
	inserter := newGatedInserter()
	m := NewMaterializer(trackers, classes, inserter)
	upto := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	leadErr := make(chan error, 1)
	go func() {
		_, err := m.EnsureBacklog(ctx, actor, 7, upto)
		leadErr <- err
	}()

	<-inserter.entered
	cancel()
	require.ErrorIs(t, <-leadErr, context.Canceled)

	close(inserter.release)
	<-inserter.done
	assert.NoError(t, inserter.ctxErr, "shared work keeps running after the caller leaves")
	assert.Equal(t, int32(1), inserter.calls.Load())
}

func TestMaterializer_BacklogHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	owner := "alice"
	trackers := stubTrackerReader{tracker: persistence.Tracker{
		ID:          7,
		Name:        "Week",
		StartDate:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC),
		OwnerUserID: &owner,
	}}
	m := NewMaterializer(trackers, stubClassLister{}, newGatedInserter())

	_, err := m.EnsureBacklog(ctx, Actor{UserID: owner}, 7, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, context.Canceled)
}
