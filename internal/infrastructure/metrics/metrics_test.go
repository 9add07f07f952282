package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEnqueueCountsByLabels(t *testing.T) {
	m := New()
	m.ObserveEnqueue("queued", false)
	m.ObserveEnqueue("queued", false)
	m.ObserveEnqueue("already_queued", true)

	if got := testutil.ToFloat64(m.enqueueTotal.WithLabelValues("queued", "false")); got != 2 {
		t.Fatalf("enqueue queued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.enqueueTotal.WithLabelValues("already_queued", "true")); got != 1 {
		t.Fatalf("enqueue already_queued = %v, want 1", got)
	}
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.SetQueueLength(3)
	m.ObserveScan("ok", 2, 1, 0.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"investigator_queue_length 3",
		`investigator_scan_queued_total{kind="new"} 2`,
		`investigator_scan_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
