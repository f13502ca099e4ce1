package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the single source of truth for what a session is doing.
type State string

const (
	Listening  State = "listening"
	Processing State = "processing"
	Displaying State = "displaying"
	Paused     State = "paused"
)

// allowed lists the legal transitions out of each state.
var allowed = map[State]map[State]bool{
	Listening:  {Processing: true, Displaying: true, Paused: true},
	Processing: {Displaying: true, Listening: true, Paused: true},
	Displaying: {Listening: true, Processing: true, Paused: true},
	Paused:     {Listening: true, Displaying: true, Processing: true},
}

// ConversationEntry is one finalized query/response pair. Treat as immutable.
type ConversationEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Pages     []string  `json:"pages"`
	Persona   string    `json:"persona"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// NewEntry builds a ConversationEntry with a fresh ULID.
func NewEntry(query, response string, pages []string, persona string, fallback bool, now time.Time) ConversationEntry {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	cp := make([]string, len(pages))
	copy(cp, pages)
	return ConversationEntry{
		ID:        id.String(),
		Timestamp: now.UTC(),
		Query:     query,
		Response:  response,
		Pages:     cp,
		Persona:   persona,
		Fallback:  fallback,
	}
}

// TruncateHistory keeps the most recent limit entries.
func TruncateHistory(history []ConversationEntry, limit int) []ConversationEntry {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	out := make([]ConversationEntry, limit)
	copy(out, history[len(history)-limit:])
	return out
}

// Snapshot is a point-in-time copy of a session for reporting.
type Snapshot struct {
	ID                string    `json:"session_id"`
	UserID            string    `json:"user_id,omitempty"`
	State             State     `json:"state"`
	Transcript        string    `json:"current_transcript"`
	Persona           string    `json:"persona"`
	PageIndex         int       `json:"page_index"`
	TotalPages        int       `json:"total_pages"`
	CurrentPage       string    `json:"current_page,omitempty"`
	DisplayDurationMs int64     `json:"display_duration_ms"`
	AutoAdvance       bool      `json:"auto_advance"`
	Conversation      int       `json:"conversation_length"`
	LastQuery         string    `json:"last_query,omitempty"`
	LastResponse      string    `json:"last_response,omitempty"`
	PendingFinals     int       `json:"pending_finals"`
	Generation        uint64    `json:"generation"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
