// Package docstore provides the persona-scoped document sources used to
// ground completions.
package docstore

import (
	"log"

	"github.com/chadiek/glass-bridge/internal/agent"
)

// Config selects a document source.
type Config struct {
	SupabaseURL string
	SupabaseKey string
	DocsDir     string
}

// New returns the Supabase store when credentials are set, the file store when
// a docs directory is set, or nil (no documents).
func New(cfg Config) (agent.DocumentStore, error) {
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		s, err := NewSupabaseStore(SupabaseConfig{URL: cfg.SupabaseURL, ServiceRoleKey: cfg.SupabaseKey})
		if err != nil {
			return nil, err
		}
		log.Printf("docstore: supabase")
		return s, nil
	}
	if cfg.DocsDir != "" {
		log.Printf("docstore: files under %s", cfg.DocsDir)
		return NewFileStore(cfg.DocsDir), nil
	}
	log.Printf("docstore: none configured; prompts carry no documents")
	return nil, nil
}
