// Package health serves Kubernetes-style liveness and readiness probes.
//
// Every check runs in its own goroutine on a fixed interval. A check turns
// unhealthy after failureThreshold consecutive failures and healthy again
// after successThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Option customizes a registered check.
type Option func(*probe)

// WithThresholds overrides the default 3 failures / 1 success thresholds.
func WithThresholds(failure, success int) Option {
	return func(p *probe) {
		if failure > 0 {
			p.failureThreshold = failure
		}
		if success > 0 {
			p.successThreshold = success
		}
	}
}

// probe is a registered check and its state. run is only ever called from
// the check's own goroutine, so the counters need no locking; healthy and
// lastErr are read by HTTP handlers.
type probe struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.successes = 0
		p.fails++
		if p.fails >= p.failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.successes++
	if p.successes >= p.successThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "check is unhealthy", true
}

// Health tracks the probes of a service. It starts not ready; call
// SetReady(true) once initialization is complete.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes [2][]*probe
	cancel context.CancelFunc
}

// New creates a Health with no checks.
func New() *Health {
	return &Health{}
}

// Add registers a check for the given probe kind. Checks start healthy.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	p := &probe{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes[kind] = append(h.probes[kind], p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that decides whether the process is
// alive.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, check, opts...)
}

// AddReadinessCheck registers a check that decides whether the service can
// take traffic, e.g. database or cache connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, check, opts...)
}

// Start runs every registered check at the given interval until ctx is done
// or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := slices.Concat(h.probes[Liveness], h.probes[Readiness])
	h.mu.Unlock()

	for _, p := range all {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag, typically false during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.Failures(Readiness)) == 0
}

// Failures returns the failing checks of a probe kind with their last error.
func (h *Health) Failures(kind Kind) map[string]string {
	h.mu.RLock()
	probes := slices.Clone(h.probes[kind])
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.Failures(Liveness))
}

// ReadyEndpoint serves /readyz. It fails while the service is not marked
// ready even if every check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.Failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus writes {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name: error}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}
