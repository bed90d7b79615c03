package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Buffer      time.Duration
	UndoTTL     time.Duration
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("user"),
		Location:    IST,
		Buffer:      application.DefaultPromptBuffer,
		UndoTTL:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("user")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithBuffer overrides the prompt buffer.
func WithBuffer(buffer time.Duration) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Buffer = buffer
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services is the fully wired application layer over one store.
type Services struct {
	Undo         *application.UndoLog
	Users        *application.UserService
	Trackers     *application.TrackerService
	Timetable    *application.TimetableService
	Materializer *application.Materializer
	Attendance   *application.AttendanceService
	Undoer       *application.UndoService
}

// NewServices wires every application service to the harness repositories.
func (f *ServiceFactory) NewServices(h *SQLiteHarness) *Services {
	now := f.Clock.NowFunc()
	engine := recurrence.NewEngine(f.Location)
	undo := application.NewUndoLog(f.UndoTTL, 0, now)
	materializer := application.NewMaterializerWithLogger(h.Trackers, h.Classes, h.Sessions, f.Logger)

	return &Services{
		Undo:         undo,
		Users:        application.NewUserServiceWithLogger(h.Users, f.IDGenerator.NextFunc(), now, f.Logger),
		Trackers:     application.NewTrackerServiceWithLogger(h.Trackers, h.Classes, undo, engine, now, f.Logger),
		Timetable:    application.NewTimetableServiceWithLogger(h.Trackers, h.Classes, h.Sessions, undo, engine, now, f.Logger),
		Materializer: materializer,
		Attendance:   application.NewAttendanceServiceWithLogger(h.Trackers, materializer, h.Sessions, undo, engine, now, f.Buffer, f.Logger),
		Undoer:       application.NewUndoServiceWithLogger(undo, h.Classes, h.Sessions, engine, now, f.Logger),
	}
}
