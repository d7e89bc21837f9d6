package service

import (
	"context"
	"sync"
	"time"

	"github.com/jengzang/farm-advisory-backend-go/internal/geocoding"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
)

// PlaceLookup is the reverse and forward geocoding backend
type PlaceLookup interface {
	ReverseLookup(ctx context.Context, coord models.Coordinate) (models.PlaceName, error)
	SearchByText(ctx context.Context, query string) ([]models.SearchResult, error)
}

type searcherEntry struct {
	searcher *geocoding.Searcher
	lastUsed time.Time
}

// GeocodingService handles place lookups. Each client gets its own
// Searcher so a newer query only supersedes that client's older ones.
type GeocodingService struct {
	lookup    PlaceLookup
	debounce  time.Duration
	idleAfter time.Duration
	now       func() time.Time

	mu        sync.Mutex
	searchers map[string]*searcherEntry
}

// NewGeocodingService creates a new geocoding service
func NewGeocodingService(lookup PlaceLookup, debounce time.Duration) *GeocodingService {
	return &GeocodingService{
		lookup:    lookup,
		debounce:  debounce,
		idleAfter: 10 * time.Minute,
		now:       time.Now,
		searchers: make(map[string]*searcherEntry),
	}
}

// Reverse names a coordinate
func (s *GeocodingService) Reverse(ctx context.Context, lat, lon float64) (models.PlaceName, error) {
	if err := spatial.ValidateCoordinate(lat, lon); err != nil {
		return models.PlaceName{}, err
	}
	return s.lookup.ReverseLookup(ctx, models.Coordinate{Latitude: lat, Longitude: lon})
}

// Search runs a search-as-you-type query for clientKey. Queries shorter than
// the minimum length return no results without calling the backend.
func (s *GeocodingService) Search(ctx context.Context, clientKey, query string) ([]models.SearchResult, error) {
	results, err := s.searcher(clientKey).Suggest(ctx, query)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

func (s *GeocodingService) searcher(key string) *geocoding.Searcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.searchers {
		if now.Sub(e.lastUsed) > s.idleAfter {
			delete(s.searchers, k)
		}
	}

	e, ok := s.searchers[key]
	if !ok {
		e = &searcherEntry{searcher: geocoding.NewSearcher(s.lookup, s.debounce)}
		s.searchers[key] = e
	}
	e.lastUsed = now
	return e.searcher
}
