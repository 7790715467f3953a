package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func counterValue(m *Manager, name string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestManager(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := NewManager(WithNamespace("test"))

		Convey("When wagers are placed and settled", func() {
			m.WagerPlaced("exact")
			m.WagerPlaced("outcome")
			m.WagerRejected("insufficient_funds")
			m.WagerSettled("outcome", "won", 300)
			m.WagerSettled("outcome", "lost", 0)

			Convey("Then the counters reflect them", func() {
				So(counterValue(m, "test_wagers_placed_total"), ShouldEqual, 2)
				So(counterValue(m, "test_wagers_rejected_total"), ShouldEqual, 1)
				So(counterValue(m, "test_wagers_settled_total"), ShouldEqual, 2)
				So(counterValue(m, "test_points_credited_total"), ShouldEqual, 300)
			})
		})

		Convey("When the handler is scraped", func() {
			m.FeedRequest("/fixtures", 200)
			m.HTTPRequest("/api/v1/wagers", "POST", 201, 15*time.Millisecond)

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

			Convey("Then the exposition includes the recorded series", func() {
				So(rec.Code, ShouldEqual, 200)
				body := rec.Body.String()
				So(strings.Contains(body, `test_feed_requests_total{endpoint="/fixtures",status="200"} 1`), ShouldBeTrue)
				So(strings.Contains(body, "test_http_request_duration_seconds_count"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then recording is a no-op", func() {
			So(func() {
				m.WagerPlaced("exact")
				m.WagerSettled("exact", "won", 10)
				m.SettlementRun()
				m.RoundEnded()
				m.FeedRequest("/x", 500)
				m.HTTPRequest("/", "GET", 200, time.Second)
			}, ShouldNotPanic)
			So(m.Registry(), ShouldBeNil)
		})
	})
}
