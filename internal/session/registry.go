package session

import (
	"sort"
	"sync"
	"time"
)

// Defaults are applied to newly created sessions.
type Defaults struct {
	DisplayDuration time.Duration
	AutoAdvance     bool
	Persona         string
	ConversationCap int
}

// DefaultDefaults mirrors the bridge's configuration defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		DisplayDuration: 5 * time.Second,
		AutoAdvance:     true,
		Persona:         "default",
		ConversationCap: 100,
	}
}

// Registry is the concurrency-safe table of live sessions. Conversation
// history outlives a session and is handed to the next session created for
// the same device identity.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	histories map[string][]ConversationEntry
	defaults  Defaults
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults) *Registry {
	if defaults.DisplayDuration <= 0 {
		defaults.DisplayDuration = DefaultDefaults().DisplayDuration
	}
	if defaults.Persona == "" {
		defaults.Persona = DefaultDefaults().Persona
	}
	if defaults.ConversationCap <= 0 {
		defaults.ConversationCap = DefaultDefaults().ConversationCap
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		histories: make(map[string][]ConversationEntry),
		defaults:  defaults,
		now:       time.Now,
	}
}

// WithClock overrides the time source (tests).
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Create returns the live session for sessionID, creating it in Listening
// state if needed. When userID has history from an earlier connection the
// new session continues that conversation.
func (r *Registry) Create(sessionID, userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s
	}

	var history []ConversationEntry
	if userID != "" {
		history = r.histories[userID]
		delete(r.histories, userID)
		for _, other := range r.sessions {
			if other.UserID() == userID {
				history = other.Conversation()
				break
			}
		}
	}

	now := r.now().UTC()
	s := &Session{data: Data{
		ID:              sessionID,
		UserID:          userID,
		Conversation:    TruncateHistory(history, r.defaults.ConversationCap),
		PageIndex:       -1,
		DisplayDuration: r.defaults.DisplayDuration,
		AutoAdvance:     r.defaults.AutoAdvance,
		Persona:         r.defaults.Persona,
		CreatedAt:       now,
		UpdatedAt:       now,
		state:           Listening,
		convCap:         r.defaults.ConversationCap,
	}}
	if len(s.data.Conversation) > 0 {
		s.data.PageIndex = 0
	}
	r.sessions[sessionID] = s
	return s
}

// Get looks up a live session.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove drops a session, invalidating its scheduled callbacks. Its
// conversation is kept for the next connection of the same device.
func (r *Registry) Remove(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)

	// Closing under r.mu orders this against ArchiveEntry: a turn that sees
	// the session closed appends after the history below is stored.
	var history []ConversationEntry
	_ = s.Update(func(d *Data) error {
		d.BumpGeneration()
		d.closed = true
		history = append(history, d.Conversation...)
		return nil
	})
	if userID := s.UserID(); userID != "" && len(history) > 0 {
		r.histories[userID] = history
	}
	return s, true
}

// ArchiveEntry adds a turn that finished after its session was removed to
// the user's kept history. It reports false when the user already has a live
// session again, in which case the entry is not kept.
func (r *Registry) ArchiveEntry(userID string, e ConversationEntry) bool {
	if userID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID() == userID {
			return false
		}
	}
	r.histories[userID] = TruncateHistory(append(r.histories[userID], e), r.defaults.ConversationCap)
	return true
}

// List returns live sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].data.CreatedAt, out[j].data.CreatedAt
		if ci.Equal(cj) {
			return out[i].ID() < out[j].ID()
		}
		return ci.Before(cj)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
