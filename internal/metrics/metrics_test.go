package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	m := New()
	finished := time.Unix(1_700_000_000, 0)

	m.ObserveRun(OutcomeDone, 2*time.Second, finished)
	m.ObserveRun(OutcomeFailed, time.Second, finished.Add(time.Hour))

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeDone)); got != 1 {
		t.Fatalf("expected 1 done run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.LastSuccess); got != float64(finished.Unix()) {
		t.Fatalf("failed run must not move last success, got %v", got)
	}
}

func TestObserveUpstreamClassifiesErrors(t *testing.T) {
	m := New()

	m.ObserveUpstream("top_by_volume", nil)
	m.ObserveUpstream("top_by_volume", fmt.Errorf("wrapped: %w", &domain.UpstreamError{StatusCode: 429}))
	m.ObserveUpstream("total_price", &domain.TransportError{Err: errors.New("timeout")})
	m.ObserveUpstream("total_price", errors.New("parse listings"))

	cases := map[[2]string]float64{
		{"top_by_volume", "ok"}:             1,
		{"top_by_volume", "upstream_error"}: 1,
		{"total_price", "transport_error"}:  1,
		{"total_price", "invalid_response"}: 1,
	}
	for labels, want := range cases {
		if got := testutil.ToFloat64(m.UpstreamRequests.WithLabelValues(labels[0], labels[1])); got != want {
			t.Fatalf("%v: expected %v, got %v", labels, want, got)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun(OutcomeDone, time.Second, time.Now())
	m.ObserveUpstream("q", nil)
	m.ObserveReturn(domain.DailyReturn{Percent: 1})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveReturn(domain.DailyReturn{Percent: -10})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "snapshot_today_return_percent -10") {
		t.Fatalf("missing return gauge in output:\n%s", w.Body.String())
	}
}
