package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Data is the mutable state of a session. It is only reachable through
// Session.Update and Session.View, which hold the session lock.
type Data struct {
	ID     string
	UserID string

	Transcript      string
	Conversation    []ConversationEntry
	PageIndex       int // -1 when there is no entry yet
	DisplayDuration time.Duration
	AutoAdvance     bool
	Persona         string
	PendingFinals   []string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	state       State
	resumeState State
	generation  uint64
	convCap     int
	closed      bool
}

// State returns the current state.
func (d *Data) State() State { return d.state }

// Generation returns the current schedule generation.
func (d *Data) Generation() uint64 { return d.generation }

// Closed reports whether the session was removed from its registry.
func (d *Data) Closed() bool { return d.closed }

// BumpGeneration invalidates every callback scheduled against the previous
// generation and returns the new value.
func (d *Data) BumpGeneration() uint64 {
	d.generation++
	return d.generation
}

// Transition moves the session to another state. Transitions out of Paused
// are only legal through Resume; entering Paused only through Pause.
func (d *Data) Transition(to State) error {
	if d.state == to {
		return nil
	}
	if d.state == Paused || to == Paused {
		return fmt.Errorf("session %s: %s -> %s must go through pause/resume", d.ID, d.state, to)
	}
	if !allowed[d.state][to] {
		return fmt.Errorf("session %s: invalid transition %s -> %s", d.ID, d.state, to)
	}
	d.state = to
	return nil
}

// Pause enters Paused, remembering where to return on Resume.
func (d *Data) Pause() error {
	if d.state == Paused {
		return fmt.Errorf("session %s: already paused", d.ID)
	}
	d.resumeState = d.state
	d.state = Paused
	return nil
}

// Resume leaves Paused and returns the state that was restored.
func (d *Data) Resume() (State, error) {
	if d.state != Paused {
		return d.state, fmt.Errorf("session %s: not paused", d.ID)
	}
	target := d.resumeState
	if target == "" || target == Paused {
		target = Listening
	}
	d.state = target
	d.resumeState = ""
	return target, nil
}

// ResumeState is the state Resume would restore.
func (d *Data) ResumeState() State { return d.resumeState }

// SetResumeState changes what Resume restores while paused.
func (d *Data) SetResumeState(s State) {
	if d.state == Paused && s != Paused {
		d.resumeState = s
	}
}

// AppendFragment adds a non-final transcription fragment to the buffer.
func (d *Data) AppendFragment(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if d.Transcript == "" {
		d.Transcript = text
		return
	}
	d.Transcript += " " + text
}

// TakeTranscript returns the trimmed buffer and clears it.
func (d *Data) TakeTranscript() string {
	t := strings.TrimSpace(d.Transcript)
	d.Transcript = ""
	return t
}

// AppendEntry adds an entry to the conversation, trimming the oldest
// beyond the configured cap.
func (d *Data) AppendEntry(e ConversationEntry) {
	d.Conversation = TruncateHistory(append(d.Conversation, e), d.convCap)
}

// ActiveEntry returns the most recent conversation entry.
func (d *Data) ActiveEntry() (ConversationEntry, bool) {
	if len(d.Conversation) == 0 {
		return ConversationEntry{}, false
	}
	return d.Conversation[len(d.Conversation)-1], true
}

// Session is one connected wearable device.
type Session struct {
	mu   sync.Mutex
	data Data
}

// ID returns the immutable session id.
func (s *Session) ID() string { return s.data.ID }

// UserID returns the immutable external device identity.
func (s *Session) UserID() string { return s.data.UserID }

// Update runs fn with exclusive access to the session data.
func (s *Session) Update(fn func(d *Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

// View runs fn with exclusive access for reading.
func (s *Session) View(fn func(d *Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.state
}

// Generation returns the current schedule generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.generation
}

// Conversation returns a copy of the conversation history.
func (s *Session) Conversation() []ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationEntry, len(s.data.Conversation))
	copy(out, s.data.Conversation)
	return out
}

// Snapshot copies the reportable fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &s.data
	snap := Snapshot{
		ID:                d.ID,
		UserID:            d.UserID,
		State:             d.state,
		Transcript:        d.Transcript,
		Persona:           d.Persona,
		PageIndex:         d.PageIndex,
		DisplayDurationMs: d.DisplayDuration.Milliseconds(),
		AutoAdvance:       d.AutoAdvance,
		Conversation:      len(d.Conversation),
		PendingFinals:     len(d.PendingFinals),
		Generation:        d.generation,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if e, ok := d.ActiveEntry(); ok {
		snap.LastQuery = e.Query
		snap.LastResponse = e.Response
		snap.TotalPages = len(e.Pages)
		if d.PageIndex >= 0 && d.PageIndex < len(e.Pages) {
			snap.CurrentPage = e.Pages[d.PageIndex]
		}
	}
	return snap
}
