// Package timer implements the per-question countdown.
package timer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	stateArmed int32 = iota
	stateFired
	stateCancelled
)

// Deadline counts down to an absolute instant and signals expiry for its
// question index at most once. A cancelled Deadline never fires.
type Deadline struct {
	clock     clockwork.Clock
	index     int
	startedAt time.Time
	at        time.Time
	state     atomic.Int32
	stop      chan struct{}
}

// Arm starts a countdown to startedAt+limit. onExpire runs on the timer's own
// goroutine. A deadline already in the past fires immediately, which is how a
// recovered session closes a question that expired while the process was down.
func Arm(clock clockwork.Clock, index int, startedAt time.Time, limit time.Duration, onExpire func(index int)) *Deadline {
	d := &Deadline{
		clock:     clock,
		index:     index,
		startedAt: startedAt,
		at:        startedAt.Add(limit),
		stop:      make(chan struct{}),
	}

	wait := d.at.Sub(clock.Now())
	if wait <= 0 {
		go d.fire(onExpire)
		return d
	}

	t := clock.NewTimer(wait)
	go func() {
		select {
		case <-t.Chan():
			d.fire(onExpire)
		case <-d.stop:
			stopAndDrainTimer(t)
		}
	}()

	log.Debug().
		Int("question_index", index).
		Time("deadline", d.at).
		Dur("duration", wait).
		Msg("armed question deadline")
	return d
}

func (d *Deadline) fire(onExpire func(int)) {
	if !d.state.CompareAndSwap(stateArmed, stateFired) {
		return
	}
	onExpire(d.index)
}

// Cancel prevents a pending expiry. It reports false if the deadline already
// fired or was cancelled.
func (d *Deadline) Cancel() bool {
	if !d.state.CompareAndSwap(stateArmed, stateCancelled) {
		return false
	}
	close(d.stop)
	return true
}

func (d *Deadline) Index() int           { return d.index }
func (d *Deadline) StartedAt() time.Time { return d.startedAt }
func (d *Deadline) At() time.Time        { return d.at }

// Fired reports whether the expiry signal was emitted.
func (d *Deadline) Fired() bool { return d.state.Load() == stateFired }

// Remaining is max(0, deadline-now) on the deadline's clock.
func (d *Deadline) Remaining() time.Duration {
	return Remaining(d.at, d.clock.Now())
}

// RemainingSeconds is Remaining rounded up to whole seconds for display.
func (d *Deadline) RemainingSeconds() int {
	return RemainingSeconds(d.at, d.clock.Now())
}

// Remaining is max(0, at-now).
func Remaining(at, now time.Time) time.Duration {
	if r := at.Sub(now); r > 0 {
		return r
	}
	return 0
}

// RemainingSeconds rounds Remaining up to whole seconds.
func RemainingSeconds(at, now time.Time) int {
	return int(math.Ceil(Remaining(at, now).Seconds()))
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
