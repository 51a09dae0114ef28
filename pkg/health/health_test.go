package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tangofs/tangofs/pkg/errors"
)

func TestStateTransitions(t *testing.T) {
	var fail bool
	m := NewMonitor(func(context.Context) error {
		if fail {
			return errors.E(errors.KindRemoteUnavailable, "ping", "gateway")
		}
		return nil
	}, time.Minute, nil)

	m.probe(context.Background())
	if m.State() != StateHealthy {
		t.Fatalf("state = %v, want healthy", m.State())
	}

	fail = true
	m.probe(context.Background())
	if m.State() != StateDegraded {
		t.Fatalf("state after 1 failure = %v, want degraded", m.State())
	}

	m.probe(context.Background())
	m.probe(context.Background())
	if m.State() != StateUnavailable {
		t.Fatalf("state after 3 failures = %v, want unavailable", m.State())
	}

	// One success resets everything.
	fail = false
	m.probe(context.Background())
	if m.State() != StateHealthy {
		t.Fatalf("state after recovery = %v, want healthy", m.State())
	}
}

func TestHandler(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, time.Minute, nil)
	m.probe(context.Background())

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rep struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.State != "healthy" {
		t.Errorf("state = %q, want healthy", rep.State)
	}
}

func TestHandlerUnavailableReports503(t *testing.T) {
	m := NewMonitor(func(context.Context) error {
		return errors.E(errors.KindRemoteUnavailable, "ping", "gateway")
	}, time.Minute, nil)
	for i := 0; i < unavailableAfter; i++ {
		m.probe(context.Background())
	}

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
