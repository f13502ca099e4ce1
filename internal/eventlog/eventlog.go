// Package eventlog keeps a bounded, append-only record of notable bridge
// activity for external pollers.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// DefaultPollLimit is applied when Poll is called with a non-positive limit.
const DefaultPollLimit = 100

// Event types emitted by the bridge.
const (
	TypeSessionStarted    = "session_started"
	TypeSessionEnded      = "session_ended"
	TypeVoiceInput        = "voice_input"
	TypeProcessing        = "processing"
	TypeResponseGenerated = "response_generated"
	TypeDisplayPaged      = "display_paged"
	TypeDisplayFinished   = "display_finished"
	TypePaused            = "paused"
	TypeResumed           = "resumed"
	TypePersonaChanged    = "persona_changed"
	TypeSettingsChanged   = "settings_changed"
	TypeDisplayRequest    = "display_request"
)

// Event is one recorded occurrence. Index is assigned by the log on append.
type Event struct {
	Index     int64          `json:"index"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
}

// PollResult is returned by Poll. NextIndex is the value to pass as since on
// the following call.
type PollResult struct {
	Events    []Event `json:"events"`
	NextIndex int64   `json:"next_index"`
	Count     int     `json:"count"`
	Oldest    int64   `json:"oldest_index"`
}

// Log is a fixed-capacity FIFO of events. Indices are monotonic for the
// lifetime of the log, across evictions and clears.
type Log struct {
	mu   sync.RWMutex
	buf  []Event
	base int64 // lowest index still eligible (raised by Clear)
	next int64 // index the next appended event receives
	now  func() time.Time
}

// New creates a log holding at most capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Event, capacity), now: time.Now}
}

// WithClock overrides the timestamp source (tests).
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Cap returns the configured capacity.
func (l *Log) Cap() int { return len(l.buf) }

func (l *Log) oldestLocked() int64 {
	oldest := l.next - int64(len(l.buf))
	if oldest < l.base {
		oldest = l.base
	}
	return oldest
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int(l.next - l.oldestLocked())
}

// Append records ev, evicting the oldest event when at capacity. A zero
// Timestamp is filled in. The stored event (with its index) is returned.
func (l *Log) Append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}
	ev.Index = l.next
	l.buf[l.next%int64(len(l.buf))] = ev
	l.next++
	return ev
}

// Emit is shorthand for appending an event of the given type.
func (l *Log) Emit(eventType, sessionID string, payload map[string]any) Event {
	return l.Append(Event{Type: eventType, SessionID: sessionID, Payload: payload})
}

// Poll returns up to limit events with index >= since. It never blocks.
// A since older than the oldest retained event yields no events and a
// NextIndex pointing at the oldest retained one.
func (l *Log) Poll(since int64, limit int) PollResult {
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	if since < 0 {
		since = 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	oldest := l.oldestLocked()
	res := PollResult{Events: []Event{}, Count: int(l.next - oldest), Oldest: oldest}
	switch {
	case since < oldest:
		res.NextIndex = oldest
		return res
	case since >= l.next:
		res.NextIndex = l.next
		return res
	}
	end := since + int64(limit)
	if end > l.next {
		end = l.next
	}
	for i := since; i < end; i++ {
		res.Events = append(res.Events, l.buf[i%int64(len(l.buf))])
	}
	res.NextIndex = end
	return res
}

// Clear drops all retained events. Indices continue from where they were.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base = l.next
	for i := range l.buf {
		l.buf[i] = Event{}
	}
}

// Stats counts retained events per type.
func (l *Log) Stats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int)
	for i := l.oldestLocked(); i < l.next; i++ {
		out[l.buf[i%int64(len(l.buf))].Type]++
	}
	return out
}

// ForSession returns the last n retained events for sessionID, oldest first.
func (l *Log) ForSession(sessionID string, n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var rev []Event
	for i := l.next - 1; i >= l.oldestLocked() && len(rev) < n; i-- {
		ev := l.buf[i%int64(len(l.buf))]
		if ev.SessionID == sessionID {
			rev = append(rev, ev)
		}
	}
	out := make([]Event, len(rev))
	for i, ev := range rev {
		out[len(rev)-1-i] = ev
	}
	return out
}
