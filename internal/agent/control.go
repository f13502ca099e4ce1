package agent

import (
	"fmt"
	"log"
	"regexp"
	"time"

	bridgeerrors "github.com/chadiek/glass-bridge/internal/errors"
	"github.com/chadiek/glass-bridge/internal/eventlog"
	"github.com/chadiek/glass-bridge/internal/session"
)

// Display duration bounds accepted by SetDisplayDuration.
const (
	MinDisplayDurationMs = 500
	MaxDisplayDurationMs = 60000
)

var personaPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// control runs fn against a live session, mapping unknown ids to SESSION_NOT_FOUND.
func (o *Orchestrator) control(sessionID string, fn func(sess *session.Session, d *session.Data) error) (*session.Session, error) {
	sess, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, bridgeerrors.NewSessionNotFound(sessionID)
	}
	err := sess.Update(func(d *session.Data) error {
		if d.Closed() {
			return bridgeerrors.NewSessionNotFound(sessionID)
		}
		return fn(sess, d)
	})
	return sess, err
}

// Pause suspends finalization and auto-advance. The page cursor is kept.
func (o *Orchestrator) Pause(sessionID string) error {
	_, err := o.control(sessionID, func(_ *session.Session, d *session.Data) error {
		if err := d.Pause(); err != nil {
			return bridgeerrors.NewInvalidParameter("session is already paused")
		}
		d.BumpGeneration()
		d.Transcript = ""
		o.events.Emit(eventlog.TypePaused, d.ID, map[string]any{
			"resume_state": string(d.ResumeState()),
			"page_index":   d.PageIndex,
		})
		return nil
	})
	if err == nil {
		log.Printf("[%s] paused", sessionID)
	}
	return err
}

// Resume restores the state held before Pause. A session that was displaying
// shows its current page again and continues auto-advance from there.
func (o *Orchestrator) Resume(sessionID string) error {
	var restored session.State
	sess, err := o.control(sessionID, func(sess *session.Session, d *session.Data) error {
		target, err := d.Resume()
		if err != nil {
			return bridgeerrors.NewInvalidParameter("session is not paused")
		}
		restored = target
		o.events.Emit(eventlog.TypeResumed, d.ID, map[string]any{"state": string(target)})
		if target == session.Displaying {
			o.scheduler.rescheduleLocked(sess, d, true)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[%s] resumed -> %s", sessionID, restored)
	o.drainPending(sess)
	return nil
}

// SetPersona switches the document scope and framing used for new queries.
func (o *Orchestrator) SetPersona(sessionID, persona string) error {
	if !personaPattern.MatchString(persona) {
		return bridgeerrors.NewInvalidParameter(fmt.Sprintf("invalid persona %q: use 1-32 characters of a-z, 0-9, _ or -", persona))
	}
	_, err := o.control(sessionID, func(_ *session.Session, d *session.Data) error {
		previous := d.Persona
		d.Persona = persona
		o.events.Emit(eventlog.TypePersonaChanged, d.ID, map[string]any{
			"persona":  persona,
			"previous": previous,
		})
		return nil
	})
	return err
}

// SetDisplayDuration changes the per-page hold time. A running display
// sequence is rescheduled from the current page with the new duration.
func (o *Orchestrator) SetDisplayDuration(sessionID string, ms int) error {
	if ms < MinDisplayDurationMs || ms > MaxDisplayDurationMs {
		return bridgeerrors.NewInvalidParameter(fmt.Sprintf("display duration must be between %d and %d ms", MinDisplayDurationMs, MaxDisplayDurationMs))
	}
	_, err := o.control(sessionID, func(sess *session.Session, d *session.Data) error {
		d.DisplayDuration = time.Duration(ms) * time.Millisecond
		o.events.Emit(eventlog.TypeSettingsChanged, d.ID, map[string]any{"display_duration_ms": ms})
		o.scheduler.rescheduleLocked(sess, d, false)
		return nil
	})
	return err
}

// SetAutoAdvance toggles automatic paging. A running display sequence is
// rescheduled from the current page.
func (o *Orchestrator) SetAutoAdvance(sessionID string, enabled bool) error {
	_, err := o.control(sessionID, func(sess *session.Session, d *session.Data) error {
		d.AutoAdvance = enabled
		o.events.Emit(eventlog.TypeSettingsChanged, d.ID, map[string]any{"auto_advance": enabled})
		o.scheduler.rescheduleLocked(sess, d, false)
		return nil
	})
	return err
}

// NextPage jumps to the following page of the active response.
func (o *Orchestrator) NextPage(sessionID string) error {
	return o.navigate(sessionID, 1)
}

// PrevPage jumps to the preceding page of the active response.
func (o *Orchestrator) PrevPage(sessionID string) error {
	return o.navigate(sessionID, -1)
}

func (o *Orchestrator) navigate(sessionID string, delta int) error {
	_, err := o.control(sessionID, func(sess *session.Session, d *session.Data) error {
		entry, ok := d.ActiveEntry()
		total := len(entry.Pages)
		if !ok || d.PageIndex < 0 {
			if delta > 0 {
				return bridgeerrors.NewNoNextPage(d.PageIndex, total)
			}
			return bridgeerrors.NewNoPreviousPage(d.PageIndex, total)
		}
		if d.PageIndex >= total {
			return bridgeerrors.NewInternal(fmt.Errorf("page index %d out of range for %d pages", d.PageIndex, total))
		}
		if d.State() == session.Processing {
			return bridgeerrors.NewInvalidParameter("session is processing a query")
		}
		target := d.PageIndex + delta
		if target >= total {
			return bridgeerrors.NewNoNextPage(d.PageIndex, total)
		}
		if target < 0 {
			return bridgeerrors.NewNoPreviousPage(d.PageIndex, total)
		}
		return o.scheduler.navigateLocked(sess, d, entry, target)
	})
	return err
}

// Display pushes ad-hoc text to one session, or to every live session when
// sessionID is empty. It does not touch session state. Returns the ids shown on.
func (o *Orchestrator) Display(sessionID, text string, duration time.Duration) ([]string, error) {
	if text == "" {
		return nil, bridgeerrors.NewInvalidParameter("text is required")
	}
	if duration <= 0 {
		duration = 5 * time.Second
	}
	var targets []*session.Session
	if sessionID != "" {
		sess, ok := o.registry.Get(sessionID)
		if !ok {
			return nil, bridgeerrors.NewSessionNotFound(sessionID)
		}
		targets = append(targets, sess)
	} else {
		targets = o.registry.List()
	}

	var shown []string
	for _, sess := range targets {
		sess.View(func(d *session.Data) {
			if d.Closed() {
				return
			}
			o.display.ShowText(d.ID, text, duration)
			shown = append(shown, d.ID)
		})
	}
	if len(shown) == 0 {
		return nil, bridgeerrors.NewNoActiveSessions()
	}
	o.events.Emit(eventlog.TypeDisplayRequest, "", map[string]any{
		"text":        text,
		"sessions":    shown,
		"duration_ms": duration.Milliseconds(),
	})
	return shown, nil
}

// Sessions returns snapshots of all live sessions.
func (o *Orchestrator) Sessions() []session.Snapshot {
	list := o.registry.List()
	out := make([]session.Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

// Session returns one live session's snapshot.
func (o *Orchestrator) Session(sessionID string) (session.Snapshot, error) {
	sess, ok := o.registry.Get(sessionID)
	if !ok {
		return session.Snapshot{}, bridgeerrors.NewSessionNotFound(sessionID)
	}
	return sess.Snapshot(), nil
}
