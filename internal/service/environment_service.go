package service

import (
	"context"
	"errors"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
)

// CombinedSource builds the combined soil/weather payload
type CombinedSource interface {
	Combined(ctx context.Context, lat, lon float64) (models.CombinedEnvironmentPayload, error)
}

// CachePurger removes expired cache entries
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ErrNoAggregator is returned when the combined payload is served remotely
var ErrNoAggregator = errors.New("combined environment endpoint is not served by this instance")

// EnvironmentService exposes the combined payload and normalized readings
type EnvironmentService struct {
	combined CombinedSource
	fetcher  reconciler.EnvironmentFetcher
	purger   CachePurger
}

// NewEnvironmentService creates a new environment service. combined and
// purger may be nil when the payload comes from a remote endpoint.
func NewEnvironmentService(combined CombinedSource, fetcher reconciler.EnvironmentFetcher, purger CachePurger) *EnvironmentService {
	return &EnvironmentService{combined: combined, fetcher: fetcher, purger: purger}
}

// Combined returns the raw combined payload for a coordinate
func (s *EnvironmentService) Combined(ctx context.Context, lat, lon float64) (models.CombinedEnvironmentPayload, error) {
	if s.combined == nil {
		return models.CombinedEnvironmentPayload{}, ErrNoAggregator
	}
	return s.combined.Combined(ctx, lat, lon)
}

// Reading returns the normalized reading for a coordinate
func (s *EnvironmentService) Reading(ctx context.Context, lat, lon float64) (models.EnvironmentReading, error) {
	if err := spatial.ValidateCoordinate(lat, lon); err != nil {
		return models.EnvironmentReading{}, err
	}
	return s.fetcher.FetchEnvironment(ctx, models.Coordinate{Latitude: lat, Longitude: lon})
}

// PurgeCache drops expired cached payloads
func (s *EnvironmentService) PurgeCache(ctx context.Context) (int64, error) {
	if s.purger == nil {
		return 0, nil
	}
	return s.purger.PurgeExpired(ctx)
}
