package metrics

import (
	"sync"
	"time"
)

// Run collects the counters of one digest run.
type Run struct {
	mu sync.RWMutex

	// Counters
	EntriesFetched     int64
	ItemsToday         int64
	DigestEntries      int64
	DuplicatesDropped  int64
	BackendRequests    int64
	MessagesSent       int64
	SummaryUnavailable bool

	// Timings
	StartedAt time.Time
	Duration  time.Duration

	// Status
	LastError string
}

func NewRun(start time.Time) *Run {
	return &Run{StartedAt: start}
}

func (m *Run) AddEntriesFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesFetched += int64(n)
}

func (m *Run) AddItemsToday(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsToday += int64(n)
}

func (m *Run) AddDigestEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DigestEntries += int64(n)
}

func (m *Run) AddDuplicatesDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesDropped += int64(n)
}

func (m *Run) SetBackendRequests(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BackendRequests = int64(n)
}

func (m *Run) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Run) SetSummaryUnavailable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummaryUnavailable = true
}

func (m *Run) SetError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err.Error()
}

// Finish records the run duration measured from StartedAt.
func (m *Run) Finish(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Duration = now.Sub(m.StartedAt)
}

func (m *Run) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"entries_fetched":     m.EntriesFetched,
		"items_today":         m.ItemsToday,
		"digest_entries":      m.DigestEntries,
		"duplicates_dropped":  m.DuplicatesDropped,
		"backend_requests":    m.BackendRequests,
		"messages_sent":       m.MessagesSent,
		"summary_unavailable": m.SummaryUnavailable,
		"duration_ms":         m.Duration.Milliseconds(),
		"started_at":          m.StartedAt.Format(time.RFC3339),
		"last_error":          m.LastError,
	}
}

// LogArgs flattens Stats into slog key/value pairs in a stable order.
func (m *Run) LogArgs() []any {
	stats := m.Stats()
	keys := []string{
		"entries_fetched", "items_today", "digest_entries", "duplicates_dropped",
		"backend_requests", "messages_sent", "summary_unavailable", "duration_ms", "last_error",
	}
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, stats[k])
	}
	return args
}
