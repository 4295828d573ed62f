package httpmiddleware

import (
	"context"
	"sync"
	"time"
)

// window holds the counts of the current and previous fixed windows; the
// sliding count weights the previous one by its remaining overlap.
type window struct {
	prev, curr float64
	start      time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local sliding window counter.
type MemoryStore struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates a MemoryStore allowing max requests per period.
func NewMemoryStore(max int, period time.Duration) *MemoryStore {
	return &MemoryStore{max: max, period: period, windows: make(map[string]*window)}
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{start: now.Truncate(s.period)}
		s.windows[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= s.period {
		w.prev = w.curr
		if elapsed >= 2*s.period {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(s.period)
	}

	overlap := max(1-now.Sub(w.start).Seconds()/s.period.Seconds(), 0)
	count := w.prev*overlap + w.curr
	reset := w.start.Add(s.period)

	if count >= float64(s.max) {
		return Decision{ResetAt: reset}, nil
	}
	w.curr++
	return Decision{
		Allowed:   true,
		Remaining: max(int(float64(s.max)-count-1), 0),
		ResetAt:   reset,
	}, nil
}

// Sweep drops keys idle for two periods or more.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if now.Sub(w.start) >= 2*s.period {
			delete(s.windows, key)
		}
	}
}

// StartSweeper runs Sweep every two periods until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}
