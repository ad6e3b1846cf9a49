package events

import (
	"sync"

	"github.com/google/uuid"
)

const defaultDeduperSize = 10000

type sessionMark struct {
	latest int
	seen   bool
}

// window is a fixed-size set that evicts the oldest member.
type window struct {
	members map[uuid.UUID]struct{}
	ring    []uuid.UUID
	next    int
}

func newWindow(size int) window {
	return window{
		members: make(map[uuid.UUID]struct{}, size),
		ring:    make([]uuid.UUID, size),
	}
}

func (w *window) has(id uuid.UUID) bool {
	_, ok := w.members[id]
	return ok
}

func (w *window) add(id uuid.UUID) {
	if old := w.ring[w.next]; old != uuid.Nil {
		delete(w.members, old)
	}
	w.ring[w.next] = id
	w.members[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
}

// Deduper makes consumers idempotent under at-least-once, unordered delivery.
// An envelope is dropped when its id was already observed, when it refers to a
// question older than the newest one seen for its session, or when it follows
// game_ended.
//
// Marks for running sessions live until game_ended or Forget; ended sessions
// are kept in a window of the same size as the id window.
type Deduper struct {
	mu       sync.Mutex
	ids      window
	ended    window
	sessions map[uuid.UUID]*sessionMark
}

// NewDeduper remembers up to size event ids; size <= 0 uses a default.
func NewDeduper(size int) *Deduper {
	if size <= 0 {
		size = defaultDeduperSize
	}
	return &Deduper{
		ids:      newWindow(size),
		ended:    newWindow(size),
		sessions: make(map[uuid.UUID]*sessionMark),
	}
}

// Observe reports whether env is fresh and records it.
func (d *Deduper) Observe(env Envelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ids.has(env.ID) || d.ended.has(env.SessionID) {
		return false
	}

	switch env.Type {
	case TypeGameEnded:
		delete(d.sessions, env.SessionID)
		d.ended.add(env.SessionID)
	case TypeQuestionStarted, TypeQuestionChanged, TypeTimeUp:
		ev, err := env.Decode()
		if err != nil {
			return false
		}
		idx, _ := QuestionIndexOf(ev)
		mark := d.sessions[env.SessionID]
		if mark == nil {
			mark = &sessionMark{}
			d.sessions[env.SessionID] = mark
		}
		if mark.seen && idx < mark.latest {
			return false
		}
		mark.latest, mark.seen = idx, true
	}

	d.ids.add(env.ID)
	return true
}

// Forget drops the question mark of a session, once nobody observes it.
func (d *Deduper) Forget(sessionID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
}
