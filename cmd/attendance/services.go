package main

import (
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
	"github.com/example/attendance-tracker/internal/recurrence"
)

type services struct {
	users      *application.UserService
	trackers   *application.TrackerService
	attendance *application.AttendanceService
}

func newServices(cfg config.Config, store *sqlite.Store, logger *slog.Logger) *services {
	now := time.Now
	engine := recurrence.NewEngine(cfg.Location)
	undo := application.NewUndoLog(cfg.UndoTTL, cfg.UndoMaxActors, now)
	materializer := application.NewMaterializerWithLogger(store.Trackers, store.Classes, store.Sessions, logger)

	return &services{
		users:      application.NewUserServiceWithLogger(store.Users, nil, now, logger),
		trackers:   application.NewTrackerServiceWithLogger(store.Trackers, store.Classes, undo, engine, now, logger),
		attendance: application.NewAttendanceServiceWithLogger(store.Trackers, materializer, store.Sessions, undo, engine, now, cfg.PromptBuffer, logger),
	}
}
