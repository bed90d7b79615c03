package application

import (
	"sync"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

// UndoKind names the mutation an undo entry reverses.
type UndoKind string

const (
	UndoAddClass     UndoKind = "add"
	UndoEditClass    UndoKind = "edit"
	UndoDeleteClass  UndoKind = "delete"
	UndoStatusChange UndoKind = "status"
)

// UndoEntry is the reversal data for one mutation.
//
// Class entries carry the class id; edit and delete entries also carry the
// full prior row. Status entries carry the session id and its prior status.
type UndoEntry struct {
	Kind        UndoKind
	ClassID     int64
	PriorClass  persistence.Class
	SessionID   int64
	PriorStatus persistence.SessionStatus
}

// UndoLog holds at most one pending entry per actor. Recording replaces the
// actor's previous entry. Entries expire after the TTL, and when the log is
// full the least recently recorded entry is evicted.
type UndoLog struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[Actor]undoLogEntry
}

type undoLogEntry struct {
	entry      UndoEntry
	recordedAt time.Time
	expiresAt  time.Time
}

// NewUndoLog constructs an undo log. Non-positive limits fall back to 30
// minutes and 1024 actors.
func NewUndoLog(ttl time.Duration, maxEntries int, now func() time.Time) *UndoLog {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &UndoLog{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[Actor]undoLogEntry),
	}
}

// Record stores entry as the actor's pending reversal.
func (l *UndoLog) Record(actor Actor, entry UndoEntry) {
	if l == nil {
		return
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)
	if _, exists := l.entries[actor]; !exists && len(l.entries) >= l.maxEntries {
		l.evictOldestLocked()
	}
	l.entries[actor] = undoLogEntry{entry: entry, recordedAt: now, expiresAt: now.Add(l.ttl)}
}

// Peek returns the actor's pending entry without consuming it.
func (l *UndoLog) Peek(actor Actor) (UndoEntry, bool) {
	if l == nil {
		return UndoEntry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.liveLocked(actor)
	return stored.entry, ok
}

// Take removes and returns the actor's pending entry.
func (l *UndoLog) Take(actor Actor) (UndoEntry, bool) {
	if l == nil {
		return UndoEntry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.liveLocked(actor)
	if ok {
		delete(l.entries, actor)
	}
	return stored.entry, ok
}

// Forget drops the actor's pending entry.
func (l *UndoLog) Forget(actor Actor) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.entries, actor)
	l.mu.Unlock()
}

// restore puts a taken entry back unless the actor has recorded a newer one.
func (l *UndoLog) restore(actor Actor, entry UndoEntry) {
	if l == nil {
		return
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.liveLocked(actor); ok {
		return
	}
	if len(l.entries) >= l.maxEntries {
		l.evictOldestLocked()
	}
	l.entries[actor] = undoLogEntry{entry: entry, recordedAt: now, expiresAt: now.Add(l.ttl)}
}

// Len reports the number of live entries.
func (l *UndoLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(l.now())
	return len(l.entries)
}

func (l *UndoLog) liveLocked(actor Actor) (undoLogEntry, bool) {
	stored, ok := l.entries[actor]
	if !ok {
		return undoLogEntry{}, false
	}
	if l.now().After(stored.expiresAt) {
		delete(l.entries, actor)
		return undoLogEntry{}, false
	}
	return stored, true
}

func (l *UndoLog) cleanupLocked(now time.Time) {
	for actor, stored := range l.entries {
		if now.After(stored.expiresAt) {
			delete(l.entries, actor)
		}
	}
}

func (l *UndoLog) evictOldestLocked() {
	var (
		oldest Actor
		at     time.Time
		found  bool
	)
	for actor, stored := range l.entries {
		if !found || stored.recordedAt.Before(at) {
			oldest, at, found = actor, stored.recordedAt, true
		}
	}
	if found {
		delete(l.entries, oldest)
	}
}
