package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/glass-bridge/internal/eventlog"
	"github.com/chadiek/glass-bridge/internal/session"
)

// FallbackResponse is displayed when the completion service fails.
const FallbackResponse = "Sorry, I couldn't get an answer right now. Please try again."

// PipelineOptions bound the prompt and the completion call.
type PipelineOptions struct {
	PageMaxChars    int
	ContextMaxChars int
	HistoryTurns    int
	LLMTimeout      time.Duration
	PersistTimeout  time.Duration
}

// DefaultPipelineOptions returns the bridge defaults.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		PageMaxChars:    150,
		ContextMaxChars: 4000,
		HistoryTurns:    3,
		LLMTimeout:      20 * time.Second,
		PersistTimeout:  5 * time.Second,
	}
}

var personaPreambles = map[string]string{
	"default": "You are a helpful assistant speaking through smart glasses.",
	"work":    "You are a focused work assistant speaking through smart glasses. Prefer facts from the user's work documents.",
	"home":    "You are a friendly personal assistant speaking through smart glasses. Prefer facts from the user's personal documents.",
}

const displayInstructions = "Reply in plain text without markdown or lists. Keep it short enough to read on a small heads-up display."

// Pipeline turns a finalized query into a paginated conversation entry.
type Pipeline struct {
	registry  *session.Registry
	docs      DocumentStore
	llm       LLM
	persist   Persistence
	events    *eventlog.Log
	scheduler *Scheduler
	opts      PipelineOptions
	now       func() time.Time
}

// NewPipeline wires the response pipeline. Nil collaborators are replaced by no-ops,
// except llm which is required. registry receives turns that finish after
// their session was removed.
func NewPipeline(registry *session.Registry, docs DocumentStore, llm LLM, persist Persistence, events *eventlog.Log, scheduler *Scheduler, opts PipelineOptions) *Pipeline {
	if docs == nil {
		docs = nopDocs{}
	}
	if persist == nil {
		persist = nopPersistence{}
	}
	def := DefaultPipelineOptions()
	if opts.PageMaxChars <= 0 {
		opts.PageMaxChars = def.PageMaxChars
	}
	if opts.ContextMaxChars <= 0 {
		opts.ContextMaxChars = def.ContextMaxChars
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = def.LLMTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = def.PersistTimeout
	}
	now := time.Now
	if scheduler != nil {
		now = scheduler.clock.Now
	}
	return &Pipeline{
		registry:  registry,
		docs:      docs,
		llm:       llm,
		persist:   persist,
		events:    events,
		scheduler: scheduler,
		opts:      opts,
		now:       now,
	}
}

// HandleQuery runs one turn: fetch documents, build the prompt, complete,
// paginate, record and hand off to the scheduler. It always produces an
// entry; completion failures become a fallback response.
func (p *Pipeline) HandleQuery(ctx context.Context, sess *session.Session, query string) session.ConversationEntry {
	var (
		userID, persona string
		history         []session.ConversationEntry
	)
	sess.View(func(d *session.Data) {
		userID, persona = d.UserID, d.Persona
		history = append(history, d.Conversation...)
	})

	docs, err := p.docs.FetchDocuments(ctx, userID, persona)
	if err != nil {
		log.Printf("[%s] document fetch failed (persona=%s): %v", sess.ID(), persona, err)
		docs = nil
	}
	p.events.Emit(eventlog.TypeProcessing, sess.ID(), map[string]any{
		"query":     query,
		"persona":   persona,
		"documents": len(docs),
	})
	prompt := BuildPrompt(persona, docs, lastTurns(history, p.opts.HistoryTurns), query, p.opts.ContextMaxChars)

	started := p.now()
	response, fallback := p.complete(ctx, sess.ID(), prompt)
	pages := Paginate(response, p.opts.PageMaxChars)
	entry := session.NewEntry(query, response, pages, persona, fallback, p.now())

	closed := false
	_ = sess.Update(func(d *session.Data) error {
		if d.Closed() {
			closed = true
			return nil
		}
		d.AppendEntry(entry)
		d.PageIndex = 0
		d.UpdatedAt = entry.Timestamp
		return nil
	})
	if closed && p.registry != nil {
		// Keep the turn for the user's next connection.
		if !p.registry.ArchiveEntry(userID, entry) {
			log.Printf("[%s] turn finished after disconnect; entry %s not kept", sess.ID(), entry.ID)
		}
	}
	log.Printf("[%s] response ready: %d page(s) in %s (fallback=%t)", sess.ID(), len(pages), p.now().Sub(started).Round(time.Millisecond), fallback)

	p.save(ctx, sess.ID(), entry)
	p.events.Emit(eventlog.TypeResponseGenerated, sess.ID(), map[string]any{
		"entry_id": entry.ID,
		"query":    query,
		"response": response,
		"pages":    len(pages),
		"persona":  persona,
		"fallback": fallback,
	})
	p.scheduler.Start(sess, entry)
	return entry
}

func (p *Pipeline) complete(ctx context.Context, sessionID, prompt string) (string, bool) {
	if p.llm == nil {
		return FallbackResponse, true
	}
	ctxLLM, cancel := context.WithTimeout(ctx, p.opts.LLMTimeout)
	defer cancel()
	reply, err := p.llm.Complete(ctxLLM, prompt)
	if err != nil {
		log.Printf("[%s] llm error: %v", sessionID, err)
		return FallbackResponse, true
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Printf("[%s] llm returned empty reply", sessionID)
		return FallbackResponse, true
	}
	return reply, false
}

// save persists the entry without letting a cancelled turn context skip it.
func (p *Pipeline) save(ctx context.Context, sessionID string, entry session.ConversationEntry) {
	ctxSave, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PersistTimeout)
	defer cancel()
	if err := p.persist.SaveConversationEntry(ctxSave, sessionID, entry); err != nil {
		log.Printf("[%s] persist entry %s failed: %v", sessionID, entry.ID, err)
	}
	if err := p.persist.TouchSessionUpdatedAt(ctxSave, sessionID); err != nil {
		log.Printf("[%s] persist touch failed: %v", sessionID, err)
	}
}

func lastTurns(history []session.ConversationEntry, n int) []session.ConversationEntry {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return history
}

// BuildPrompt assembles the persona preamble, at most maxContext characters of
// document context, recent turns and the query.
func BuildPrompt(persona string, docs []Document, history []session.ConversationEntry, query string, maxContext int) string {
	var b strings.Builder
	preamble, ok := personaPreambles[persona]
	if !ok {
		preamble = fmt.Sprintf("You are a helpful assistant speaking through smart glasses, acting in the %q context.", persona)
	}
	b.WriteString(preamble)
	b.WriteString(" ")
	b.WriteString(displayInstructions)
	b.WriteString("\n")

	if ctxText := buildContext(docs, maxContext); ctxText != "" {
		b.WriteString("\nContext documents:\n")
		b.WriteString(ctxText)
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, e := range history {
			b.WriteString("[USER] ")
			b.WriteString(e.Query)
			b.WriteString("\n[ASSISTANT] ")
			b.WriteString(e.Response)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n[USER] ")
	b.WriteString(query)
	return b.String()
}

func buildContext(docs []Document, maxChars int) string {
	var b strings.Builder
	remaining := maxChars
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		header := "[" + doc.FileName + "]\n"
		if remaining <= len(header) {
			break
		}
		remaining -= len(header)
		if len(content) > remaining {
			content = truncateRunes(content, remaining)
		}
		b.WriteString(header)
		b.WriteString(content)
		b.WriteString("\n")
		remaining -= len(content)
		if remaining <= 0 {
			break
		}
	}
	return b.String()
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
