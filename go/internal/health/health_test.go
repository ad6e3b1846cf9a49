package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/health"
)

func TestChecker(t *testing.T) {
	Convey("Given a checker", t, func() {
		c := health.NewChecker(time.Second)
		c.Register("database", func(context.Context) error { return nil })

		Convey("Passing checks answer 200", func() {
			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)

			var st health.Status
			So(json.Unmarshal(rec.Body.Bytes(), &st), ShouldBeNil)
			So(st.Status, ShouldEqual, "ok")
			So(st.Checks["database"], ShouldEqual, "ok")
		})

		Convey("A failing check answers 503", func() {
			c.Register("nats", func(context.Context) error { return errors.New("disconnected") })
			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)

			st := c.Check(context.Background())
			So(st.Status, ShouldEqual, "degraded")
			So(st.Checks["nats"], ShouldEqual, "disconnected")
			So(st.Checks["database"], ShouldEqual, "ok")
		})

		Convey("Slow checks are cut off by the timeout", func() {
			short := health.NewChecker(20 * time.Millisecond)
			short.Register("slow", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
			So(short.Check(context.Background()).Status, ShouldEqual, "degraded")
		})
	})
}
