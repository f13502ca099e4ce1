package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	bridgeerrors "github.com/chadiek/glass-bridge/internal/errors"
	"github.com/chadiek/glass-bridge/internal/eventlog"
	"github.com/chadiek/glass-bridge/internal/session"
)

const (
	welcomeText       = "glass-bridge connected\n\nReady for voice commands!"
	welcomeDuration   = 3 * time.Second
	processingPreview = 50
	processingHold    = 2 * time.Second
)

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Registry    *session.Registry
	Events      *eventlog.Log
	Docs        DocumentStore
	LLM         LLM
	Display     Display
	Persistence Persistence
	Clock       Clock
}

// Orchestrator owns the per-session flow: transcript -> pipeline -> scheduler,
// plus the control surface operations that may interrupt it.
type Orchestrator struct {
	registry  *session.Registry
	events    *eventlog.Log
	display   Display
	persist   Persistence
	scheduler *Scheduler
	pipeline  *Pipeline

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Orchestrator. Registry and Events are created with
// defaults when nil.
func New(deps Deps, opts PipelineOptions) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = session.NewRegistry(session.DefaultDefaults())
	}
	if deps.Events == nil {
		deps.Events = eventlog.New(eventlog.DefaultCapacity)
	}
	if deps.Display == nil {
		deps.Display = nopDisplay{}
	}
	if deps.Persistence == nil {
		deps.Persistence = nopPersistence{}
	}
	sched := NewScheduler(deps.Display, deps.Events, deps.Clock)
	o := &Orchestrator{
		registry:  deps.Registry,
		events:    deps.Events,
		display:   deps.Display,
		persist:   deps.Persistence,
		scheduler: sched,
		pipeline:  NewPipeline(deps.Registry, deps.Docs, deps.LLM, deps.Persistence, deps.Events, sched, opts),
		ctx:       context.Background(),
	}
	sched.onIdle = o.drainPending
	return o
}

// Start binds in-flight turns to ctx. It returns a stop function that cancels
// outstanding completion calls and waits for their turns to settle.
func (o *Orchestrator) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.ctx, o.cancel = ctx, cancel
	o.mu.Unlock()
	return func() {
		cancel()
		o.wg.Wait()
	}
}

// Wait blocks until every in-flight turn has handed off to the scheduler.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Events exposes the event log for polling.
func (o *Orchestrator) Events() *eventlog.Log { return o.events }

// Registry exposes the session registry.
func (o *Orchestrator) Registry() *session.Registry { return o.registry }

// Connect registers a device connection and greets it.
func (o *Orchestrator) Connect(sessionID, userID string) *session.Session {
	sess := o.registry.Create(sessionID, userID)
	log.Printf("[%s] session started (user=%s)", sessionID, userID)
	sess.View(func(d *session.Data) {
		o.events.Emit(eventlog.TypeSessionStarted, sessionID, map[string]any{
			"user_id":      userID,
			"conversation": len(d.Conversation),
		})
		o.display.ShowText(sessionID, welcomeText, welcomeDuration)
	})
	go func() {
		ctx, cancel := context.WithTimeout(o.baseContext(), 5*time.Second)
		defer cancel()
		if err := o.persist.TouchSessionUpdatedAt(ctx, sessionID); err != nil {
			log.Printf("[%s] persist touch failed: %v", sessionID, err)
		}
	}()
	return sess
}

// Disconnect tears a session down; pending timers become no-ops.
func (o *Orchestrator) Disconnect(sessionID string) error {
	if _, ok := o.registry.Remove(sessionID); !ok {
		return bridgeerrors.NewSessionNotFound(sessionID)
	}
	log.Printf("[%s] session ended", sessionID)
	o.events.Emit(eventlog.TypeSessionEnded, sessionID, nil)
	return nil
}

// OnFragment feeds one transcription fragment into the session's buffer.
// A final fragment finalizes the buffer into a query, unless the session is
// paused (dropped) or already processing (queued behind the current turn).
func (o *Orchestrator) OnFragment(sessionID, text string, isFinal bool) error {
	sess, ok := o.registry.Get(sessionID)
	if !ok {
		return bridgeerrors.NewSessionNotFound(sessionID)
	}
	var query string
	err := sess.Update(func(d *session.Data) error {
		if d.Closed() {
			return bridgeerrors.NewSessionNotFound(sessionID)
		}
		if d.State() == session.Paused {
			d.Transcript = ""
			return nil
		}
		d.AppendFragment(text)
		if !isFinal {
			return nil
		}
		if d.State() == session.Processing {
			if q := d.TakeTranscript(); q != "" {
				d.PendingFinals = append(d.PendingFinals, q)
				log.Printf("[%s] queued final transcript behind in-flight turn", d.ID)
			}
			return nil
		}
		q := d.TakeTranscript()
		if len(d.PendingFinals) > 0 {
			q = strings.TrimSpace(strings.Join(append(d.PendingFinals, q), " "))
			d.PendingFinals = nil
		}
		if q == "" {
			return nil
		}
		if err := o.beginTurnLocked(d, q); err != nil {
			return err
		}
		query = q
		return nil
	})
	if err != nil {
		return err
	}
	if query != "" {
		o.launch(sess, query)
	}
	return nil
}

// beginTurnLocked cancels any display schedule and enters Processing.
func (o *Orchestrator) beginTurnLocked(d *session.Data, query string) error {
	d.BumpGeneration()
	if err := d.Transition(session.Processing); err != nil {
		return bridgeerrors.NewInternal(err)
	}
	log.Printf("[%s] heard(final): %s", d.ID, query)
	o.events.Emit(eventlog.TypeVoiceInput, d.ID, map[string]any{
		"transcript": query,
		"is_final":   true,
	})
	preview := query
	if r := []rune(preview); len(r) > processingPreview {
		preview = string(r[:processingPreview]) + "..."
	}
	o.display.ShowText(d.ID, "Processing:\n\""+preview+"\"", processingHold)
	return nil
}

func (o *Orchestrator) launch(sess *session.Session, query string) {
	ctx := o.baseContext()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pipeline.HandleQuery(ctx, sess, query)
		o.drainPending(sess)
	}()
}

// drainPending starts a turn for finals queued while the previous turn ran.
// Like a fresh final, it preempts a running display sequence.
func (o *Orchestrator) drainPending(sess *session.Session) {
	var query string
	_ = sess.Update(func(d *session.Data) error {
		if d.Closed() || len(d.PendingFinals) == 0 {
			return nil
		}
		if st := d.State(); st != session.Listening && st != session.Displaying {
			return nil
		}
		q := strings.TrimSpace(strings.Join(d.PendingFinals, " "))
		d.PendingFinals = nil
		if q == "" {
			return nil
		}
		if err := o.beginTurnLocked(d, q); err != nil {
			return err
		}
		query = q
		return nil
	})
	if query != "" {
		o.launch(sess, query)
	}
}

func (o *Orchestrator) baseContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}
