package agent

import (
	"context"
	"time"

	"github.com/chadiek/glass-bridge/internal/session"
)

// Document is one persona-scoped document returned by the document store.
type Document struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// DocumentStore returns the documents that apply to a user's persona. Read-only.
type DocumentStore interface {
	FetchDocuments(ctx context.Context, userID, persona string) ([]Document, error)
}

// LLM is a minimal interface to generate a single completion for a prompt.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Display pushes text to a device. It must not block and must not call
// back into the orchestrator: it is invoked with the session lock held.
type Display interface {
	ShowText(sessionID, text string, duration time.Duration)
}

// Persistence records conversation turns. Best-effort: errors are logged.
type Persistence interface {
	SaveConversationEntry(ctx context.Context, sessionID string, entry session.ConversationEntry) error
	TouchSessionUpdatedAt(ctx context.Context, sessionID string) error
}

// Clock abstracts timers so scheduling can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) Now() time.Time                      { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

type nopDocs struct{}

func (nopDocs) FetchDocuments(context.Context, string, string) ([]Document, error) { return nil, nil }

type nopDisplay struct{}

func (nopDisplay) ShowText(string, string, time.Duration) {}

type nopPersistence struct{}

func (nopPersistence) SaveConversationEntry(context.Context, string, session.ConversationEntry) error {
	return nil
}
func (nopPersistence) TouchSessionUpdatedAt(context.Context, string) error { return nil }
