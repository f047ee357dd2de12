package projection

import (
	"context"
	"sync"
	"time"
)

// SearchFunc runs one search; Views.Search is one.
type SearchFunc func(ctx context.Context, query string, mode Mode) ([]SearchResult, error)

type SearchUpdate struct {
	Query   string
	Mode    Mode
	Results []SearchResult
	Err     error
}

// Searcher debounces search input. Only the results of the latest submitted
// query are ever delivered: pending queries are dropped when a newer one
// arrives and a search already running is cancelled.
type Searcher struct {
	search   SearchFunc
	debounce time.Duration
	out      chan SearchUpdate

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

func NewSearcher(search SearchFunc, debounce time.Duration) *Searcher {
	return &Searcher{search: search, debounce: debounce, out: make(chan SearchUpdate, 1)}
}

// Results delivers at most one pending update; an unread update is replaced
// by a newer one. The channel is closed by Close.
func (s *Searcher) Results() <-chan SearchUpdate { return s.out }

func (s *Searcher) Submit(query string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() { s.run(gen, query, mode) })
}

func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopLocked()
	s.gen++
	close(s.out)
}

func (s *Searcher) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Searcher) run(gen uint64, query string, mode Mode) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	results, err := s.search(ctx, query, mode)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || ctx.Err() != nil {
		return
	}
	s.cancel = nil
	select {
	case <-s.out:
	default:
	}
	s.out <- SearchUpdate{Query: query, Mode: mode, Results: results, Err: err}
}
