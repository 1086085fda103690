package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"staffdesk/internal/domain/staff"
)

var _ staff.Observer = (*Collector)(nil)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorExposesCounts(t *testing.T) {
	c := New()
	c.Record(http.MethodGet, 200, 10*time.Millisecond)
	c.Record(http.MethodGet, 200, 10*time.Millisecond)
	c.TransitionFinished(staff.EventReturn, "rejected", 0)
	c.TransitionFinished(staff.EventRemoval, "committed", 20*time.Millisecond)
	c.LockViolations(staff.CollectionPayments, 3)
	c.SetDuplicates(2)
	c.JobFinished("exit_archive", "completed")

	body := scrape(t, c)
	for _, want := range []string{
		`staffdesk_http_requests_total{method="GET",status="200"} 2`,
		`staffdesk_lifecycle_transitions_total{outcome="rejected",type="Return"} 1`,
		`staffdesk_lifecycle_transition_duration_seconds_count{type="Removal"} 1`,
		`staffdesk_lock_violations_total{collection="payments"} 3`,
		`staffdesk_reconcile_duplicates 2`,
		`staffdesk_job_runs_total{job="exit_archive",status="completed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in scrape:\n%s", want, body)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SetDuplicates(5)
	if strings.Contains(scrape(t, b), "staffdesk_reconcile_duplicates 5") {
		t.Fatal("collectors share state")
	}
}
