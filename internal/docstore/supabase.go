package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/glass-bridge/internal/agent"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string        // Default: documents
	CacheTTL       time.Duration // Default: 1 minute; negative disables caching
}

// SupabaseStore reads persona documents from a Supabase table with columns
// user_id, persona, file_name and content.
type SupabaseStore struct {
	client *supabase.Client
	table  string
	cache  *ttlCache
}

type documentRow struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: cfg.Table, cache: newTTLCache(cfg.CacheTTL, time.Now)}, nil
}

func (s *SupabaseStore) FetchDocuments(ctx context.Context, userID, persona string) ([]agent.Document, error) {
	key := userID + "\x00" + persona
	if docs, ok := s.cache.get(key); ok {
		return docs, nil
	}

	var rows []documentRow
	_, err := s.client.From(s.table).
		Select("file_name,content", "", false).
		Eq("user_id", userID).
		Eq("persona", persona).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}

	docs := make([]agent.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, agent.Document{FileName: r.FileName, Content: r.Content})
	}
	s.cache.put(key, docs)
	return docs, nil
}

// ttlCache memoizes document lists per (user, persona).
type ttlCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	docs      []agent.Document
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	return &ttlCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func (c *ttlCache) get(key string) ([]agent.Document, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.docs, true
}

func (c *ttlCache) put(key string, docs []agent.Document) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{docs: docs, expiresAt: c.now().Add(c.ttl)}
}
