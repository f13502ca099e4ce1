package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	bridgeerrors "github.com/chadiek/glass-bridge/internal/errors"
	"github.com/chadiek/glass-bridge/internal/eventlog"
	"github.com/chadiek/glass-bridge/internal/session"
)

type fakeTimer struct {
	at time.Time
	f  func()
}

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, fakeTimer{at: c.now.Add(d), f: f})
}

// Advance moves time forward, firing due timers in order. Timers armed by a
// firing callback fire too if they fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		idx := -1
		for i, t := range c.timers {
			if t.at.After(target) {
				continue
			}
			if idx < 0 || t.at.Before(c.timers[idx].at) {
				idx = i
			}
		}
		if idx < 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.timers[idx]
		c.timers = append(c.timers[:idx], c.timers[idx+1:]...)
		c.now = t.at
		c.mu.Unlock()
		t.f()
	}
}

type shown struct {
	sessionID string
	text      string
	duration  time.Duration
}

type recordingDisplay struct {
	mu    sync.Mutex
	shown []shown
}

func (r *recordingDisplay) ShowText(sessionID, text string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, shown{sessionID, text, duration})
}

func (r *recordingDisplay) last() shown {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shown) == 0 {
		return shown{}
	}
	return r.shown[len(r.shown)-1]
}

func (r *recordingDisplay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	gate    chan struct{}
	prompts []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) setReply(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
}

func (f *fakeLLM) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// blockingStore holds the next SaveConversationEntry until released.
type blockingStore struct {
	mu      sync.Mutex
	entered chan struct{}
	gate    chan struct{}
}

func (b *blockingStore) hold() (entered, release chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entered, b.gate = make(chan struct{}), make(chan struct{})
	return b.entered, b.gate
}

func (b *blockingStore) SaveConversationEntry(ctx context.Context, _ string, _ session.ConversationEntry) error {
	b.mu.Lock()
	entered, gate := b.entered, b.gate
	b.entered, b.gate = nil, nil
	b.mu.Unlock()
	if gate == nil {
		return nil
	}
	close(entered)
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingStore) TouchSessionUpdatedAt(context.Context, string) error { return nil }

type harness struct {
	o       *Orchestrator
	clock   *fakeClock
	display *recordingDisplay
	llm     *fakeLLM
}

func newHarness(t *testing.T, llm *fakeLLM) *harness {
	t.Helper()
	return newHarnessWith(t, llm, nil)
}

func newHarnessWith(t *testing.T, llm *fakeLLM, persist Persistence) *harness {
	t.Helper()
	clock := newFakeClock()
	display := &recordingDisplay{}
	o := New(Deps{
		Registry:    session.NewRegistry(session.DefaultDefaults()).WithClock(clock.Now),
		Events:      eventlog.New(100).WithClock(clock.Now),
		LLM:         llm,
		Display:     display,
		Persistence: persist,
		Clock:       clock,
	}, DefaultPipelineOptions())
	t.Cleanup(o.Wait)
	return &harness{o: o, clock: clock, display: display, llm: llm}
}

// fiveHundredChars paginates into 149/149/149/50 at 150 characters.
func fiveHundredChars() string {
	return strings.Repeat("word ", 99) + "words"
}

func snapshot(t *testing.T, o *Orchestrator, id string) session.Snapshot {
	t.Helper()
	snap, err := o.Session(id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	return snap
}

func eventTypes(o *Orchestrator) []string {
	var out []string
	for _, ev := range o.Events().Poll(0, 1000).Events {
		out = append(out, ev.Type)
	}
	return out
}

func TestOrchestrator_AutoAdvanceThroughPages(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	h.o.Connect("s1", "glasses-1")

	if err := h.o.OnFragment("s1", "what is", false); err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if err := h.o.OnFragment("s1", "the plan", true); err != nil {
		t.Fatalf("final: %v", err)
	}
	h.o.Wait()

	snap := snapshot(t, h.o, "s1")
	if snap.State != session.Displaying || snap.PageIndex != 0 || snap.TotalPages != 4 {
		t.Fatalf("unexpected snapshot after response: %+v", snap)
	}
	if snap.LastQuery != "what is the plan" {
		t.Fatalf("query = %q", snap.LastQuery)
	}
	if got := len([]rune(h.display.last().text)); got != 149 {
		t.Fatalf("first page length = %d", got)
	}

	for i := 1; i < 4; i++ {
		h.clock.Advance(5 * time.Second)
		if got := snapshot(t, h.o, "s1").PageIndex; got != i {
			t.Fatalf("after %d steps page index = %d", i, got)
		}
	}
	if got := len([]rune(h.display.last().text)); got != 50 {
		t.Fatalf("last page length = %d", got)
	}

	h.clock.Advance(5 * time.Second)
	if got := snapshot(t, h.o, "s1").State; got != session.Listening {
		t.Fatalf("state after last page = %s", got)
	}
	types := eventTypes(h.o)
	if types[len(types)-1] != eventlog.TypeDisplayFinished {
		t.Fatalf("last event = %s", types[len(types)-1])
	}
}

func TestOrchestrator_NavigationCancelsStaleTimer(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "tell me more", true)
	h.o.Wait()

	h.clock.Advance(2 * time.Second)
	if err := h.o.NextPage("s1"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := snapshot(t, h.o, "s1").PageIndex; got != 1 {
		t.Fatalf("page index after next = %d", got)
	}

	// The timer armed for the first page is due now and must not advance.
	h.clock.Advance(3 * time.Second)
	if got := snapshot(t, h.o, "s1").PageIndex; got != 1 {
		t.Fatalf("stale timer advanced the page: %d", got)
	}

	h.clock.Advance(2 * time.Second)
	if got := snapshot(t, h.o, "s1").PageIndex; got != 2 {
		t.Fatalf("page index after rescheduled timer = %d", got)
	}

	if err := h.o.PrevPage("s1"); err != nil {
		t.Fatalf("prev: %v", err)
	}
	if got := snapshot(t, h.o, "s1").PageIndex; got != 1 {
		t.Fatalf("page index after prev = %d", got)
	}
}

func TestOrchestrator_LLMFailureFallsBack(t *testing.T) {
	h := newHarness(t, &fakeLLM{err: errors.New("upstream down")})
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "hello", true)
	h.o.Wait()

	snap := snapshot(t, h.o, "s1")
	if snap.LastResponse != FallbackResponse || snap.TotalPages != 1 {
		t.Fatalf("unexpected fallback snapshot: %+v", snap)
	}
	if h.display.last().text != FallbackResponse {
		t.Fatalf("display = %q", h.display.last().text)
	}

	h.clock.Advance(5 * time.Second)
	if got := snapshot(t, h.o, "s1").State; got != session.Listening {
		t.Fatalf("state = %s", got)
	}
}

func TestOrchestrator_PauseDropsFinals(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	h := newHarness(t, llm)
	h.o.Connect("s1", "glasses-1")

	if err := h.o.Pause("s1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_ = h.o.OnFragment("s1", "ignored", false)
	_ = h.o.OnFragment("s1", "also ignored", true)
	h.o.Wait()

	if n := len(llm.calls()); n != 0 {
		t.Fatalf("llm called %d times while paused", n)
	}
	for _, typ := range eventTypes(h.o) {
		if typ == eventlog.TypeVoiceInput {
			t.Fatalf("voice_input emitted while paused: %v", eventTypes(h.o))
		}
	}
	snap := snapshot(t, h.o, "s1")
	if snap.Conversation != 0 || snap.LastQuery != "" {
		t.Fatalf("entry recorded while paused: %+v", snap)
	}
	if snap.State != session.Paused || snap.Transcript != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := h.o.Pause("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("double pause err = %v", err)
	}
	if err := h.o.Resume("s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := snapshot(t, h.o, "s1").State; got != session.Listening {
		t.Fatalf("state after resume = %s", got)
	}
	if err := h.o.Resume("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("resume when not paused err = %v", err)
	}
}

func TestOrchestrator_PauseHoldsPageAndResumeReshows(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "go", true)
	h.o.Wait()

	h.clock.Advance(5 * time.Second)
	if err := h.o.Pause("s1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clock.Advance(30 * time.Second)
	snap := snapshot(t, h.o, "s1")
	if snap.State != session.Paused || snap.PageIndex != 1 {
		t.Fatalf("paused snapshot: %+v", snap)
	}

	before := h.display.count()
	if err := h.o.Resume("s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if h.display.count() != before+1 {
		t.Fatalf("resume did not re-show the current page")
	}
	if got := snapshot(t, h.o, "s1").State; got != session.Displaying {
		t.Fatalf("state after resume = %s", got)
	}
	h.clock.Advance(5 * time.Second)
	if got := snapshot(t, h.o, "s1").PageIndex; got != 2 {
		t.Fatalf("page index after resume step = %d", got)
	}
}

func TestOrchestrator_PauseDuringProcessingKeepsEntry(t *testing.T) {
	llm := &fakeLLM{reply: "short answer", gate: make(chan struct{})}
	h := newHarness(t, llm)
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "question", true)

	if err := h.o.Pause("s1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(llm.gate)
	h.o.Wait()

	snap := snapshot(t, h.o, "s1")
	if snap.State != session.Paused || snap.Conversation != 1 {
		t.Fatalf("snapshot: %+v", snap)
	}
	if h.display.last().text == "short answer" {
		t.Fatalf("response shown while paused")
	}

	if err := h.o.Resume("s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if h.display.last().text != "short answer" {
		t.Fatalf("display after resume = %q", h.display.last().text)
	}
}

func TestOrchestrator_QueuesFinalsWhileProcessing(t *testing.T) {
	llm := &fakeLLM{reply: "first answer", gate: make(chan struct{})}
	h := newHarness(t, llm)
	h.o.Connect("s1", "glasses-1")

	_ = h.o.OnFragment("s1", "first", true)
	_ = h.o.OnFragment("s1", "second", true)
	if got := snapshot(t, h.o, "s1").PendingFinals; got != 1 {
		t.Fatalf("pending finals = %d", got)
	}
	close(llm.gate)
	h.o.Wait()

	// The queued final starts as soon as the first turn is displayed.
	calls := llm.calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	if !strings.HasSuffix(calls[1], "[USER] second") {
		t.Fatalf("queued query not sent: %q", calls[1])
	}
	snap := snapshot(t, h.o, "s1")
	if snap.Conversation != 2 || snap.LastQuery != "second" {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestOrchestrator_QueuedFinalRunsWithAutoAdvanceOff(t *testing.T) {
	llm := &fakeLLM{reply: fiveHundredChars(), gate: make(chan struct{})}
	h := newHarness(t, llm)
	h.o.Connect("s1", "glasses-1")
	if err := h.o.SetAutoAdvance("s1", false); err != nil {
		t.Fatalf("auto-advance: %v", err)
	}

	_ = h.o.OnFragment("s1", "first", true)
	_ = h.o.OnFragment("s1", "second", true)
	close(llm.gate)
	h.o.Wait()
	h.clock.Advance(time.Hour)
	h.o.Wait()

	calls := llm.calls()
	if len(calls) != 2 || !strings.HasSuffix(calls[1], "[USER] second") {
		t.Fatalf("queued final not processed: %d calls", len(calls))
	}
	snap := snapshot(t, h.o, "s1")
	if snap.PendingFinals != 0 || snap.Conversation != 2 || snap.LastQuery != "second" {
		t.Fatalf("snapshot: %+v", snap)
	}
	if snap.State != session.Displaying || snap.PageIndex != 0 {
		t.Fatalf("second answer not held on its first page: %+v", snap)
	}
}

func TestOrchestrator_NewEntryResetsPageCursor(t *testing.T) {
	llm := &fakeLLM{reply: fiveHundredChars()}
	store := &blockingStore{}
	h := newHarnessWith(t, llm, store)
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "long", true)
	h.o.Wait()
	h.clock.Advance(15 * time.Second)
	if got := snapshot(t, h.o, "s1").PageIndex; got != 3 {
		t.Fatalf("page index before second turn = %d", got)
	}

	llm.setReply("short answer")
	entered, release := store.hold()
	_ = h.o.OnFragment("s1", "short", true)
	if err := h.o.Pause("s1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	<-entered

	// The new entry is recorded but the scheduler has not started it yet.
	snap := snapshot(t, h.o, "s1")
	if snap.State != session.Paused || snap.TotalPages != 1 || snap.PageIndex != 0 {
		t.Fatalf("cursor outside the active entry: %+v", snap)
	}
	if err := h.o.PrevPage("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrNoPreviousPage) {
		t.Fatalf("prev err = %v", err)
	}
	if err := h.o.NextPage("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrNoNextPage) {
		t.Fatalf("next err = %v", err)
	}
	close(release)
	h.o.Wait()

	if err := h.o.Resume("s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if h.display.last().text != "short answer" {
		t.Fatalf("display after resume = %q", h.display.last().text)
	}
}

func TestOrchestrator_TurnFinishingAfterDisconnectIsKept(t *testing.T) {
	llm := &fakeLLM{reply: "late answer", gate: make(chan struct{})}
	h := newHarness(t, llm)
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "question", true)

	if err := h.o.Disconnect("s1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	close(llm.gate)
	h.o.Wait()

	h.o.Connect("s2", "glasses-1")
	snap := snapshot(t, h.o, "s2")
	if snap.Conversation != 1 || snap.LastQuery != "question" || snap.LastResponse != "late answer" {
		t.Fatalf("late turn missing after reconnect: %+v", snap)
	}
	if snap.State != session.Listening {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestOrchestrator_DisconnectInvalidatesTimers(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "go", true)
	h.o.Wait()

	if err := h.o.Disconnect("s1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	before := h.display.count()
	h.clock.Advance(time.Minute)
	if h.display.count() != before {
		t.Fatalf("display after disconnect")
	}
	if err := h.o.Disconnect("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound) {
		t.Fatalf("second disconnect err = %v", err)
	}

	// Reconnecting the same device restores its history.
	h.o.Connect("s2", "glasses-1")
	if got := snapshot(t, h.o, "s2").Conversation; got != 1 {
		t.Fatalf("restored conversation = %d", got)
	}
}

func TestOrchestrator_ControlErrors(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: "one page"})

	if err := h.o.Pause("missing"); !bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound) {
		t.Fatalf("pause missing = %v", err)
	}
	h.o.Connect("s1", "glasses-1")

	if err := h.o.NextPage("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrNoNextPage) {
		t.Fatalf("next without entry = %v", err)
	}
	if err := h.o.SetDisplayDuration("s1", 100); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("short duration = %v", err)
	}
	if err := h.o.SetDisplayDuration("s1", 60001); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("long duration = %v", err)
	}
	if err := h.o.SetPersona("s1", "Work!"); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("bad persona = %v", err)
	}

	_ = h.o.OnFragment("s1", "hi", true)
	h.o.Wait()
	if err := h.o.PrevPage("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrNoPreviousPage) {
		t.Fatalf("prev at first page = %v", err)
	}
	if err := h.o.NextPage("s1"); !bridgeerrors.Is(err, bridgeerrors.ErrNoNextPage) {
		t.Fatalf("next at last page = %v", err)
	}
}

func TestOrchestrator_SettingsApplyToRunningDisplay(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	h.o.Connect("s1", "glasses-1")
	if err := h.o.SetPersona("s1", "work"); err != nil {
		t.Fatalf("persona: %v", err)
	}
	_ = h.o.OnFragment("s1", "status", true)
	h.o.Wait()
	if !strings.Contains(h.llm.calls()[0], "work assistant") {
		t.Fatalf("persona preamble missing from prompt")
	}

	if err := h.o.SetDisplayDuration("s1", 1000); err != nil {
		t.Fatalf("duration: %v", err)
	}
	h.clock.Advance(time.Second)
	if got := snapshot(t, h.o, "s1").PageIndex; got != 1 {
		t.Fatalf("page index after 1s = %d", got)
	}

	if err := h.o.SetAutoAdvance("s1", false); err != nil {
		t.Fatalf("auto-advance: %v", err)
	}
	h.clock.Advance(10 * time.Second)
	snap := snapshot(t, h.o, "s1")
	if snap.PageIndex != 1 || snap.State != session.Displaying {
		t.Fatalf("manual mode advanced: %+v", snap)
	}

	// Reaching the last page by hand still returns to listening.
	_ = h.o.NextPage("s1")
	_ = h.o.NextPage("s1")
	h.clock.Advance(time.Second)
	if got := snapshot(t, h.o, "s1").State; got != session.Listening {
		t.Fatalf("state after manual last page = %s", got)
	}
}

func TestOrchestrator_DisplayBroadcast(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: "x"})
	if _, err := h.o.Display("", "hello", 0); !bridgeerrors.Is(err, bridgeerrors.ErrNoActiveSessions) {
		t.Fatalf("broadcast without sessions = %v", err)
	}
	h.o.Connect("a", "u1")
	h.o.Connect("b", "u2")

	ids, err := h.o.Display("", "hello", 2*time.Second)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("broadcast reached %v", ids)
	}
	if got := h.display.last(); got.text != "hello" || got.duration != 2*time.Second {
		t.Fatalf("last display = %+v", got)
	}
	if got := snapshot(t, h.o, "a").State; got != session.Listening {
		t.Fatalf("broadcast changed state to %s", got)
	}
	if _, err := h.o.Display("zzz", "hello", 0); !bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound) {
		t.Fatalf("targeted missing session = %v", err)
	}
	if _, err := h.o.Display("a", "", 0); !bridgeerrors.Is(err, bridgeerrors.ErrInvalidParameter) {
		t.Fatalf("empty text = %v", err)
	}
}

func TestBuildPrompt_IncludesContextAndHistory(t *testing.T) {
	history := []session.ConversationEntry{{Query: "q1", Response: "r1"}}
	docs := []Document{{FileName: "notes.txt", Content: "alpha beta"}}

	prompt := BuildPrompt("home", docs, history, "q2", 4000)
	for _, want := range []string{"personal assistant", "[notes.txt]", "alpha beta", "[USER] q1", "[ASSISTANT] r1"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "[USER] q2") {
		t.Fatalf("prompt does not end with query:\n%s", prompt)
	}

	unknown := BuildPrompt("garden", nil, nil, "q", 4000)
	if !strings.Contains(unknown, `"garden"`) {
		t.Fatalf("unknown persona not framed: %s", unknown)
	}
}

func TestBuildContext_RespectsBudget(t *testing.T) {
	docs := []Document{
		{FileName: "a", Content: strings.Repeat("x", 100)},
		{FileName: "b", Content: strings.Repeat("y", 100)},
	}
	out := buildContext(docs, 60)
	if len(out) > 61 {
		t.Fatalf("context length %d exceeds budget", len(out))
	}
	if strings.Contains(out, "y") {
		t.Fatalf("second document should not fit: %q", out)
	}
	if got := truncateRunes("héllo", 2); got != "h" {
		t.Fatalf("truncateRunes split a rune: %q", got)
	}
}

func TestScheduler_CancelStopsSequence(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: fiveHundredChars()})
	sess := h.o.Connect("s1", "glasses-1")
	_ = h.o.OnFragment("s1", "go", true)
	h.o.Wait()

	h.o.scheduler.Cancel(sess)
	h.clock.Advance(time.Minute)
	snap := snapshot(t, h.o, "s1")
	if snap.PageIndex != 0 || snap.State != session.Displaying {
		t.Fatalf("cancelled schedule still ran: %+v", snap)
	}
}
