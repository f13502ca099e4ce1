package agent

import (
	"log"

	"github.com/chadiek/glass-bridge/internal/eventlog"
	"github.com/chadiek/glass-bridge/internal/session"
)

// Scheduler drives page display and auto-advance for a session's active entry.
//
// Every timer captures the session generation when it is armed. When it fires
// it re-reads the generation, the state and whether the session was removed;
// any mismatch makes it a no-op. Operations that must cancel pending timers
// (new query, pause, navigation, disconnect, settings change) bump the
// generation first. Timers are chained one step at a time, so a changed
// display duration applies from the next step on.
type Scheduler struct {
	display Display
	events  *eventlog.Log
	clock   Clock
	// onIdle is called (without locks) when a session returns to Listening
	// after its display sequence.
	onIdle func(sess *session.Session)
}

// NewScheduler builds a scheduler. A nil clock uses real timers.
func NewScheduler(display Display, events *eventlog.Log, clock Clock) *Scheduler {
	if display == nil {
		display = nopDisplay{}
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{display: display, events: events, clock: clock}
}

// Start shows entry.Pages[0] immediately and schedules the rest. The entry must
// already be the session's most recent conversation entry. A paused session
// keeps the entry as its resume target without displaying it.
func (s *Scheduler) Start(sess *session.Session, entry session.ConversationEntry) {
	_ = sess.Update(func(d *session.Data) error {
		if d.Closed() {
			return nil
		}
		gen := d.BumpGeneration()
		d.PageIndex = 0
		if d.State() == session.Paused {
			d.SetResumeState(session.Displaying)
			return nil
		}
		if err := d.Transition(session.Displaying); err != nil {
			log.Printf("[%s] scheduler: %v", d.ID, err)
			return err
		}
		s.showLocked(sess, d, entry, gen)
		return nil
	})
}

// showLocked displays the current page and arms the next step.
func (s *Scheduler) showLocked(sess *session.Session, d *session.Data, entry session.ConversationEntry, gen uint64) {
	page := entry.Pages[d.PageIndex]
	s.display.ShowText(d.ID, page, d.DisplayDuration)
	s.events.Emit(eventlog.TypeDisplayPaged, d.ID, map[string]any{
		"entry_id":    entry.ID,
		"page":        d.PageIndex + 1,
		"total_pages": len(entry.Pages),
		"text":        page,
	})
	s.armLocked(sess, d, entry, gen)
}

// armLocked schedules the next step: the following page when auto-advance is
// on, or the return to Listening once the last page has been held.
func (s *Scheduler) armLocked(sess *session.Session, d *session.Data, entry session.ConversationEntry, gen uint64) {
	last := d.PageIndex >= len(entry.Pages)-1
	if !d.AutoAdvance && !last {
		return
	}
	s.clock.AfterFunc(d.DisplayDuration, func() { s.fire(sess, gen) })
}

func (s *Scheduler) fire(sess *session.Session, gen uint64) {
	idle := false
	_ = sess.Update(func(d *session.Data) error {
		if d.Closed() || d.Generation() != gen || d.State() != session.Displaying {
			return nil
		}
		entry, ok := d.ActiveEntry()
		if !ok {
			return nil
		}
		if d.PageIndex+1 < len(entry.Pages) {
			d.PageIndex++
			s.showLocked(sess, d, entry, gen)
			return nil
		}
		d.BumpGeneration()
		if err := d.Transition(session.Listening); err != nil {
			return err
		}
		s.events.Emit(eventlog.TypeDisplayFinished, d.ID, map[string]any{
			"entry_id":    entry.ID,
			"total_pages": len(entry.Pages),
		})
		idle = true
		return nil
	})
	if idle && s.onIdle != nil {
		s.onIdle(sess)
	}
}

// navigateLocked moves the page cursor to index, shows the page and
// reschedules from there. A paused session shows the page but stays paused.
// The caller holds the session lock and has validated index.
func (s *Scheduler) navigateLocked(sess *session.Session, d *session.Data, entry session.ConversationEntry, index int) error {
	gen := d.BumpGeneration()
	d.PageIndex = index
	if d.State() == session.Paused {
		page := entry.Pages[index]
		s.display.ShowText(d.ID, page, d.DisplayDuration)
		s.events.Emit(eventlog.TypeDisplayPaged, d.ID, map[string]any{
			"entry_id":    entry.ID,
			"page":        index + 1,
			"total_pages": len(entry.Pages),
			"text":        page,
			"manual":      true,
		})
		d.SetResumeState(session.Displaying)
		return nil
	}
	if err := d.Transition(session.Displaying); err != nil {
		return err
	}
	s.showLocked(sess, d, entry, gen)
	return nil
}

// rescheduleLocked invalidates pending timers and re-arms from the current
// page. When reshow is set the current page is sent to the device again.
func (s *Scheduler) rescheduleLocked(sess *session.Session, d *session.Data, reshow bool) {
	entry, ok := d.ActiveEntry()
	if !ok || d.PageIndex < 0 || d.PageIndex >= len(entry.Pages) || d.State() != session.Displaying {
		return
	}
	gen := d.BumpGeneration()
	if reshow {
		s.showLocked(sess, d, entry, gen)
		return
	}
	s.armLocked(sess, d, entry, gen)
}

// Cancel invalidates any pending step without touching state or the cursor.
func (s *Scheduler) Cancel(sess *session.Session) {
	_ = sess.Update(func(d *session.Data) error {
		d.BumpGeneration()
		return nil
	})
}
