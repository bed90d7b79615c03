package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

// DaysPerWeek is the number of weekday offsets a slot may use.
const DaysPerWeek = 7

// Slot is a recurring weekly class. Weekday is 0 for Monday through 6 for Sunday.
type Slot struct {
	ID        int64
	Weekday   int
	StartTime string
	EndTime   string
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window from two calendar dates.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: DateOf(start), End: DateOf(end)}
	if w.End.Before(w.Start) {
		return Window{}, ErrInvalidWindow
	}
	return w, nil
}

// Contains reports whether the calendar date d lies within the window.
func (w Window) Contains(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(DateOf(w.Start)) && !d.After(DateOf(w.End))
}

// Occurrence is a slot instantiated on a concrete date.
type Occurrence struct {
	SlotID int64
	Date   time.Time
}

// Engine expands weekly slots into dated occurrences and evaluates wall-clock
// times in its location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine for the provided location.
// If loc is nil, Asia/Kolkata (IST) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = ist
	}
	return &Engine{location: loc}
}

// Location returns the zone wall-clock times are interpreted in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return ist
	}
	return e.location
}

var (
	// ErrInvalidTime indicates a time of day is not in HH:MM form.
	ErrInvalidTime = errors.New("recurrence: time must be HH:MM")
	// ErrInvalidWeekday indicates a weekday index outside 0..6.
	ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 and 6")
	// ErrInvalidWindow indicates a window whose end precedes its start.
	ErrInvalidWindow = errors.New("recurrence: window end precedes start")
)

// DateOf truncates t to its calendar date, represented at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now in the engine's location.
func (e *Engine) Today(now time.Time) time.Time {
	return DateOf(now.In(e.Location()))
}

// WeekStart returns the Monday of the week containing d.
func WeekStart(d time.Time) time.Time {
	d = DateOf(d)
	offset := (int(d.Weekday()) + 6) % DaysPerWeek
	return d.AddDate(0, 0, -offset)
}

// WeekdayIndex returns the Monday-based index of d.
func WeekdayIndex(d time.Time) int {
	return (int(d.Weekday()) + 6) % DaysPerWeek
}

// ExpandWeek returns one occurrence per slot for the week beginning at the
// Monday of weekStart. Dates outside the window are dropped, not clamped.
// Occurrences follow the order of slots.
func ExpandWeek(slots []Slot, weekStart time.Time, window Window) []Occurrence {
	monday := WeekStart(weekStart)
	occurrences := make([]Occurrence, 0, len(slots))
	for _, slot := range slots {
		if slot.Weekday < 0 || slot.Weekday >= DaysPerWeek {
			continue
		}
		d := monday.AddDate(0, 0, slot.Weekday)
		if !window.Contains(d) {
			continue
		}
		occurrences = append(occurrences, Occurrence{SlotID: slot.ID, Date: d})
	}
	return occurrences
}

// Weeks lists the Mondays of every week from the window start through
// min(upto, window end), inclusive. It returns nil when upto precedes the window.
func Weeks(window Window, upto time.Time) []time.Time {
	last := DateOf(upto)
	if end := DateOf(window.End); end.Before(last) {
		last = end
	}
	first := DateOf(window.Start)
	if last.Before(first) {
		return nil
	}

	var weeks []time.Time
	for monday := WeekStart(first); !monday.After(last); monday = monday.AddDate(0, 0, DaysPerWeek) {
		weeks = append(weeks, monday)
	}
	return weeks
}

// ClampWeek moves weekStart into the span between the Monday of the window
// start and the Monday of the window end.
func ClampWeek(weekStart time.Time, window Window) time.Time {
	target := WeekStart(weekStart)
	earliest := WeekStart(window.Start)
	latest := WeekStart(window.End)
	if target.Before(earliest) {
		return earliest
	}
	if target.After(latest) {
		return latest
	}
	return target
}

// ParseMinutes converts an H:MM or HH:MM time of day to minutes after midnight.
func ParseMinutes(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || !isDigits(hh, 1, 2) || !isDigits(mm, 1, 2) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return hour*60 + minute, nil
}

// NormalizeTime canonicalizes a time of day to zero-padded HH:MM.
func NormalizeTime(value string) (string, error) {
	minutes, err := ParseMinutes(value)
	if err != nil {
		return "", err
	}
	return FormatMinutes(minutes), nil
}

// FormatMinutes renders minutes after midnight as HH:MM.
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// At combines a calendar date and an HH:MM time of day into an instant in the
// engine's location.
func (e *Engine) At(date time.Time, clock string) (time.Time, error) {
	minutes, err := ParseMinutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, e.Location()), nil
}

// ValidateSlot checks the weekday and times of a slot.
func ValidateSlot(slot Slot) error {
	if slot.Weekday < 0 || slot.Weekday >= DaysPerWeek {
		return ErrInvalidWeekday
	}
	if _, err := ParseMinutes(slot.StartTime); err != nil {
		return err
	}
	if _, err := ParseMinutes(slot.EndTime); err != nil {
		return err
	}
	return nil
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
