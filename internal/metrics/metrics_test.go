package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.LoginFailed(false)
	m.LoginFailed(true)
	m.RateLimited()
	m.Uploaded(128)
	m.ObserveRequest("GET", "/folders", 200)

	if got := testutil.ToFloat64(m.loginFailures); got != 2 {
		t.Fatalf("login failures = %v", got)
	}
	if got := testutil.ToFloat64(m.blacklisted); got != 1 {
		t.Fatalf("blacklisted = %v", got)
	}
	if got := testutil.ToFloat64(m.uploadedBytes); got != 128 {
		t.Fatalf("uploaded bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/folders", "200")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LoginFailed(true)
	m.RateLimited()
	m.Uploaded(1)
	m.ObserveRequest("GET", "/", 200)
}
