package geocoding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// ErrSuperseded is returned when a newer query was issued before this one finished
var ErrSuperseded = errors.New("search superseded by a newer query")

// TextSearcher is the forward search capability a Searcher drives
type TextSearcher interface {
	SearchByText(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Searcher implements search-as-you-type for one client: queries are
// debounced and only the latest query may deliver results.
type Searcher struct {
	backend  TextSearcher
	debounce time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewSearcher creates a new searcher
func NewSearcher(backend TextSearcher, debounce time.Duration) *Searcher {
	return &Searcher{backend: backend, debounce: debounce}
}

// Suggest runs query unless a newer one arrives first. A superseded call
// returns ErrSuperseded and its results are dropped.
func (s *Searcher) Suggest(ctx context.Context, query string) ([]models.SearchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	if s.debounce > 0 {
		timer := time.NewTimer(s.debounce)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, s.abandoned(ctx, gen)
		}
	}

	if !s.current(gen) {
		return nil, ErrSuperseded
	}

	results, err := s.backend.SearchByText(ctx, query)
	if !s.current(gen) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Generation returns the number of queries issued so far
func (s *Searcher) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Searcher) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Searcher) abandoned(ctx context.Context, gen uint64) error {
	if !s.current(gen) {
		return ErrSuperseded
	}
	return ctx.Err()
}
