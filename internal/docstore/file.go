package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chadiek/glass-bridge/internal/agent"
)

// FileStore serves documents from <root>/<persona>/*.txt|*.md. Documents are
// shared by every user; it backs local runs without Supabase.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) FetchDocuments(ctx context.Context, _ string, persona string) ([]agent.Document, error) {
	if persona == "" || strings.ContainsAny(persona, `/\`) || persona == "." || persona == ".." {
		return nil, fmt.Errorf("invalid persona %q", persona)
	}
	dir := filepath.Join(s.root, persona)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []agent.Document
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
		default:
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		docs = append(docs, agent.Document{FileName: e.Name(), Content: string(b)})
	}
	return docs, nil
}
