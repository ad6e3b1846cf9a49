package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/timer"
)

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDeadline(t *testing.T) {
	Convey("Given a deadline armed for 30 seconds", t, func() {
		clock := clockwork.NewFakeClock()
		start := clock.Now()
		var fired atomic.Int32
		var firedIndex atomic.Int32
		d := timer.Arm(clock, 3, start, 30*time.Second, func(i int) {
			firedIndex.Store(int32(i))
			fired.Add(1)
		})

		So(d.At().Equal(start.Add(30*time.Second)), ShouldBeTrue)
		So(d.RemainingSeconds(), ShouldEqual, 30)

		Convey("Remaining time never increases and rounds up", func() {
			clock.Advance(10*time.Second + 200*time.Millisecond)
			So(d.RemainingSeconds(), ShouldEqual, 20)
			prev := d.Remaining()
			clock.Advance(5 * time.Second)
			So(d.Remaining(), ShouldBeLessThan, prev)
		})

		Convey("It fires exactly once for its index", func() {
			clock.Advance(30 * time.Second)
			So(eventually(func() bool { return fired.Load() == 1 }), ShouldBeTrue)
			So(int(firedIndex.Load()), ShouldEqual, 3)
			So(d.Fired(), ShouldBeTrue)
			So(d.Remaining(), ShouldEqual, time.Duration(0))

			clock.Advance(time.Minute)
			time.Sleep(20 * time.Millisecond)
			So(int(fired.Load()), ShouldEqual, 1)
			So(d.Cancel(), ShouldBeFalse)
		})

		Convey("A cancelled deadline never fires", func() {
			So(d.Cancel(), ShouldBeTrue)
			So(d.Cancel(), ShouldBeFalse)
			clock.Advance(time.Minute)
			time.Sleep(20 * time.Millisecond)
			So(int(fired.Load()), ShouldEqual, 0)
		})
	})

	Convey("A deadline already in the past fires immediately", t, func() {
		clock := clockwork.NewFakeClock()
		var fired atomic.Int32
		timer.Arm(clock, 0, clock.Now().Add(-time.Minute), 30*time.Second, func(int) { fired.Add(1) })
		So(eventually(func() bool { return fired.Load() == 1 }), ShouldBeTrue)
	})

	Convey("Remaining is computed from the absolute deadline", t, func() {
		at := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
		So(timer.RemainingSeconds(at, at.Add(-20*time.Second)), ShouldEqual, 20)
		So(timer.RemainingSeconds(at, at.Add(time.Second)), ShouldEqual, 0)
	})
}
