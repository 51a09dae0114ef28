// Package health tracks gateway reachability for a mounted filesystem.
// The mount keeps serving from cache while the gateway is away; the
// monitor gives operators a signal before users notice I/O errors.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents gateway reachability.
type State int

const (
	// StateHealthy indicates the gateway answers.
	StateHealthy State = iota
	// StateDegraded indicates recent failures below the outage
	// threshold.
	StateDegraded
	// StateUnavailable indicates the gateway has been away for
	// consecutive checks.
	StateUnavailable
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// unavailableAfter is how many consecutive failures flip degraded to
// unavailable.
const unavailableAfter = 3

// CheckFunc probes the gateway once.
type CheckFunc func(ctx context.Context) error

// Monitor periodically probes the gateway and tracks its state.
type Monitor struct {
	check    CheckFunc
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastError   string
	lastChecked time.Time
	lastHealthy time.Time
}

// NewMonitor creates a monitor probing with check every interval.
func NewMonitor(check CheckFunc, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		check:    check,
		interval: interval,
		logger:   logger.Named("health"),
	}
}

// Start probes until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.check(probeCtx)
	cancel()

	m.mu.Lock()
	prev := m.state
	m.lastChecked = time.Now()
	if err != nil {
		m.failures++
		m.lastError = err.Error()
		if m.failures >= unavailableAfter {
			m.state = StateUnavailable
		} else {
			m.state = StateDegraded
		}
	} else {
		m.failures = 0
		m.lastError = ""
		m.state = StateHealthy
		m.lastHealthy = m.lastChecked
	}
	state := m.state
	m.mu.Unlock()

	if state != prev {
		m.logger.Warn("gateway health changed",
			zap.Stringer("from", prev), zap.Stringer("to", state), zap.Error(err))
	}
}

// report is the JSON shape served by Handler.
type report struct {
	State       string    `json:"state"`
	LastChecked time.Time `json:"last_checked"`
	LastHealthy time.Time `json:"last_healthy,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Handler serves the current state as JSON. Unavailable reports 503 so
// load-balancer style checks work unmodified.
func (m *Monitor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		rep := report{
			State:       m.state.String(),
			LastChecked: m.lastChecked,
			LastHealthy: m.lastHealthy,
			LastError:   m.lastError,
		}
		state := m.state
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if state == StateUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}
