package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduperMarks(t *testing.T) {
	Convey("Given a deduper tracking one session", t, func() {
		d := NewDeduper(2)
		sessionID := uuid.New()
		wrap := func(ev Event) Envelope {
			env, err := NewEnvelope(sessionID, ev, time.Now())
			So(err, ShouldBeNil)
			return env
		}
		So(d.Observe(wrap(QuestionChanged{QuestionIndex: 0})), ShouldBeTrue)
		So(d.sessions, ShouldHaveLength, 1)

		Convey("game_ended drops the mark and still blocks later events", func() {
			So(d.Observe(wrap(GameEnded{})), ShouldBeTrue)
			So(d.sessions, ShouldBeEmpty)
			So(d.Observe(wrap(QuestionChanged{QuestionIndex: 1})), ShouldBeFalse)
			So(d.sessions, ShouldBeEmpty)
		})

		Convey("Forget drops the mark", func() {
			d.Forget(sessionID)
			So(d.sessions, ShouldBeEmpty)
		})

		Convey("Ended sessions are evicted with the window", func() {
			So(d.Observe(wrap(GameEnded{})), ShouldBeTrue)
			for i := 0; i < 2; i++ {
				other, err := NewEnvelope(uuid.New(), GameEnded{}, time.Now())
				So(err, ShouldBeNil)
				So(d.Observe(other), ShouldBeTrue)
			}
			So(d.ended.members, ShouldHaveLength, 2)
			So(d.ended.has(sessionID), ShouldBeFalse)
			So(d.sessions, ShouldBeEmpty)
		})
	})
}
