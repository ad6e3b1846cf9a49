package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
)

const defaultQueueSize = 64

// Local is an in-process Broadcaster. Each subscriber owns a bounded queue;
// when it is full the envelope is dropped for that subscriber only.
type Local struct {
	clock   clockwork.Clock
	queue   int
	metrics metrics.Collector

	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*localSub]struct{}
	closed bool
}

type localSub struct {
	owner     *Local
	sessionID uuid.UUID
	ch        chan events.Envelope
	done      chan struct{}
	once      sync.Once
}

// NewLocal creates a Local broadcaster with per-subscriber queues of size queue.
func NewLocal(clock clockwork.Clock, queue int, m metrics.Collector) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if queue <= 0 {
		queue = defaultQueueSize
	}
	return &Local{
		clock:   clock,
		queue:   queue,
		metrics: metrics.OrNoOp(m),
		subs:    make(map[uuid.UUID]map[*localSub]struct{}),
	}
}

func (l *Local) Publish(_ context.Context, sessionID uuid.UUID, ev events.Event) error {
	env, err := events.NewEnvelope(sessionID, ev, l.clock.Now())
	if err != nil {
		return err
	}
	l.deliver(env)
	return nil
}

func (l *Local) deliver(env events.Envelope) {
	l.mu.RLock()
	targets := make([]*localSub, 0, len(l.subs[env.SessionID])+len(l.subs[AllSessions]))
	for s := range l.subs[env.SessionID] {
		targets = append(targets, s)
	}
	if env.SessionID != AllSessions {
		for s := range l.subs[AllSessions] {
			targets = append(targets, s)
		}
	}
	l.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- env:
			l.metrics.RecordBroadcast(string(env.Type), true)
		default:
			l.metrics.RecordBroadcast(string(env.Type), false)
			log.Warn().
				Str("session_id", env.SessionID.String()).
				Str("event_type", string(env.Type)).
				Msg("subscriber queue full, dropping event")
		}
	}
}

func (l *Local) Subscribe(sessionID uuid.UUID, h Handler) (Subscription, error) {
	s := &localSub{
		owner:     l,
		sessionID: sessionID,
		ch:        make(chan events.Envelope, l.queue),
		done:      make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.subs[sessionID] == nil {
		l.subs[sessionID] = make(map[*localSub]struct{})
	}
	l.subs[sessionID][s] = struct{}{}
	l.mu.Unlock()

	go s.run(h)
	return s, nil
}

func (s *localSub) run(h Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		select {
		case env := <-s.ch:
			h(ctx, env)
		case <-s.done:
			return
		}
	}
}

func (s *localSub) Unsubscribe() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		if set := s.owner.subs[s.sessionID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.owner.subs, s.sessionID)
			}
		}
		s.owner.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Close unsubscribes everyone and rejects new subscriptions.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	var all []*localSub
	for _, set := range l.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	l.mu.Unlock()

	for _, s := range all {
		_ = s.Unsubscribe()
	}
	return nil
}
