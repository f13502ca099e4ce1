package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/glass-bridge/internal/session"
)

// supabaseStore writes to the conversation_entries and sessions tables. The
// client has no per-call context; ctx only gates the call.
type supabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

type entryRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Pages     []string  `json:"pages"`
	Persona   string    `json:"persona"`
	Fallback  bool      `json:"fallback"`
}

type sessionRow struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSupabaseStore(url, key string, now func() time.Time) (*supabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &supabaseStore{client: client, now: now}, nil
}

func (s *supabaseStore) SaveConversationEntry(ctx context.Context, sessionID string, e session.ConversationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := entryRow{
		ID:        e.ID,
		SessionID: sessionID,
		CreatedAt: e.Timestamp,
		Query:     e.Query,
		Response:  e.Response,
		Pages:     e.Pages,
		Persona:   e.Persona,
		Fallback:  e.Fallback,
	}
	if _, _, err := s.client.From("conversation_entries").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert conversation entry: %w", err)
	}
	return nil
}

func (s *supabaseStore) TouchSessionUpdatedAt(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := sessionRow{ID: sessionID, UpdatedAt: s.now().UTC()}
	if _, _, err := s.client.From("sessions").Upsert(row, "id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *supabaseStore) Close() error { return nil }
