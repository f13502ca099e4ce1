package llm

import (
	"context"
	"fmt"
	"strings"
)

// Completer is the single-prompt completion contract shared by providers.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options selects and configures a completion provider.
type Options struct {
	Provider      string
	CerebrasKey   string
	CerebrasModel string
	GeminiKey     string
	GeminiModel   string
}

// New returns the configured provider: "cerebras" (default) or "gemini".
func New(ctx context.Context, opts Options) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "cerebras":
		return NewCerebrasClient(opts.CerebrasKey, opts.CerebrasModel), nil
	case "gemini":
		g, err := NewGeminiClient(ctx, opts.GeminiKey, opts.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
