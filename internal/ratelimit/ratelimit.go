package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/mnadigest/internal/clock"
	"github.com/deusflow/mnadigest/internal/logger"
)

// ModelBackend is one summarization endpoint and the request rate it tolerates.
type ModelBackend struct {
	Provider          string
	Name              string
	RequestsPerMinute int
}

// Interval is the minimum spacing between two requests to the backend.
func (b ModelBackend) Interval() time.Duration {
	if b.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(b.RequestsPerMinute)
}

// backendState is guarded by its own mutex so waits on one backend never block another.
type backendState struct {
	mu          sync.Mutex
	backend     ModelBackend
	limiter     *rate.Limiter
	lastRequest time.Time
	requests    int
}

// Limiter throttles requests per backend. It never refuses a known backend,
// it only delays until the backend's interval has elapsed.
type Limiter struct {
	states map[string]*backendState
	clock  clock.Clock

	mu      sync.Mutex
	lastAny time.Time // diagnostic only
}

type Option func(*Limiter)

func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func New(backends []ModelBackend, opts ...Option) *Limiter {
	l := &Limiter{
		states: make(map[string]*backendState, len(backends)),
		clock:  clock.Real{},
	}
	for _, o := range opts {
		o(l)
	}

	for _, b := range backends {
		limit := rate.Inf
		if iv := b.Interval(); iv > 0 {
			limit = rate.Every(iv)
		}
		l.states[b.Name] = &backendState{
			backend: b,
			limiter: rate.NewLimiter(limit, 1),
		}
	}
	return l
}

// Backend looks up a configured backend by name.
func (l *Limiter) Backend(name string) (ModelBackend, bool) {
	st, ok := l.states[name]
	if !ok {
		return ModelBackend{}, false
	}
	return st.backend, true
}

// Wait blocks until a request to the named backend is allowed. It returns false
// without waiting for an unknown backend, and false if ctx ends while waiting.
func (l *Limiter) Wait(ctx context.Context, name string) bool {
	st, ok := l.states[name]
	if !ok {
		logger.Warn("backend not configured, skipping", "backend", name)
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.clock.Now()
	r := st.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		logger.Info("waiting for rate limit", "backend", name, "wait", d.Round(time.Millisecond))
		if err := l.clock.Sleep(ctx, d); err != nil {
			r.CancelAt(l.clock.Now())
			logger.Warn("rate limit wait interrupted", "backend", name, "error", err)
			return false
		}
	}

	at := l.clock.Now()
	st.lastRequest = at
	st.requests++

	l.mu.Lock()
	l.lastAny = at
	l.mu.Unlock()
	return true
}

// BackendStats is a point-in-time view of one backend's usage.
type BackendStats struct {
	Name              string
	RequestsPerMinute int
	Requests          int
	LastRequest       time.Time
}

func (l *Limiter) Stats() []BackendStats {
	out := make([]BackendStats, 0, len(l.states))
	for _, st := range l.states {
		st.mu.Lock()
		out = append(out, BackendStats{
			Name:              st.backend.Name,
			RequestsPerMinute: st.backend.RequestsPerMinute,
			Requests:          st.requests,
			LastRequest:       st.lastRequest,
		})
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TotalRequests sums granted requests across backends.
func (l *Limiter) TotalRequests() int {
	total := 0
	for _, s := range l.Stats() {
		total += s.Requests
	}
	return total
}

// LastRequest is the most recent grant on any backend.
func (l *Limiter) LastRequest() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAny
}
