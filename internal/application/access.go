package application

import (
	"context"
	"strings"

	"github.com/example/attendance-tracker/internal/persistence"
)

// TrackerReader resolves trackers by id.
type TrackerReader interface {
	GetTracker(ctx context.Context, id int64) (persistence.Tracker, error)
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return ErrPermission
	}
	return nil
}

// readableTracker loads a tracker the actor may read: the global tracker or one they own.
func readableTracker(ctx context.Context, trackers TrackerReader, actor Actor, id int64) (persistence.Tracker, error) {
	if err := requireActor(actor); err != nil {
		return persistence.Tracker{}, err
	}
	tracker, err := trackers.GetTracker(ctx, id)
	if err != nil {
		return persistence.Tracker{}, mapRepoError(err)
	}
	if tracker.IsGlobal || tracker.OwnedBy(actor.UserID) {
		return tracker, nil
	}
	return persistence.Tracker{}, ErrPermission
}

// ownedTracker loads a tracker the actor may write to. The global tracker is read-only.
func ownedTracker(ctx context.Context, trackers TrackerReader, actor Actor, id int64) (persistence.Tracker, error) {
	tracker, err := readableTracker(ctx, trackers, actor, id)
	if err != nil {
		return persistence.Tracker{}, err
	}
	if !tracker.OwnedBy(actor.UserID) {
		return persistence.Tracker{}, ErrPermission
	}
	return tracker, nil
}
