package environment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
)

// EstimatedDataMessage accompanies payloads built from fallback values
const EstimatedDataMessage = "Using estimated data"

// WeatherSource provides the daily climate summary
type WeatherSource interface {
	Today(ctx context.Context, lat, lon float64) (Weather, error)
}

// SoilSource provides the surface soil profile
type SoilSource interface {
	Profile(ctx context.Context, lat, lon float64) (Soil, error)
}

// PlaceSource resolves a place name for the payload's location_info
type PlaceSource interface {
	ReverseLookup(ctx context.Context, coord models.Coordinate) (models.PlaceName, error)
}

// Cache stores complete payloads by location key
type Cache interface {
	Get(ctx context.Context, key string) (*models.CombinedEnvironmentPayload, error)
	Put(ctx context.Context, key string, payload models.CombinedEnvironmentPayload, ttl time.Duration) error
}

// Aggregator builds the combined soil/weather payload from independent providers
type Aggregator struct {
	weather   WeatherSource
	soil      SoilSource
	places    PlaceSource
	cache     Cache
	cacheTTL  time.Duration
	cellLevel int
	logger    *zap.Logger
}

// NewAggregator creates a new aggregator. cache may be nil.
func NewAggregator(weather WeatherSource, soil SoilSource, places PlaceSource, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		weather:   weather,
		soil:      soil,
		places:    places,
		cache:     cache,
		cacheTTL:  cacheTTL,
		cellLevel: spatial.DefaultCellLevel,
		logger:    logger,
	}
}

// Combined fetches weather, soil and place concurrently. A failing weather or
// soil provider is replaced by estimates and the payload is marked
// unsuccessful. A failing place lookup only falls back to a coordinate label.
// No provider fails the whole request.
func (a *Aggregator) Combined(ctx context.Context, lat, lon float64) (models.CombinedEnvironmentPayload, error) {
	if err := spatial.ValidateCoordinate(lat, lon); err != nil {
		return models.CombinedEnvironmentPayload{}, err
	}

	key := spatial.CellToken(lat, lon, a.cellLevel)
	if a.cache != nil {
		cached, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("environment cache read failed", zap.String("cell", key), zap.Error(err))
		} else if cached != nil {
			a.logger.Debug("environment cache hit", zap.String("cell", key))
			return *cached, nil
		}
	}

	var (
		weather                       Weather
		soil                          Soil
		place                         models.PlaceName
		weatherErr, soilErr, placeErr error
	)

	// providers degrade individually, so goroutines never fail the group
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		weather, weatherErr = a.weather.Today(gctx, lat, lon)
		return nil
	})
	g.Go(func() error {
		soil, soilErr = a.soil.Profile(gctx, lat, lon)
		return nil
	})
	g.Go(func() error {
		place, placeErr = a.places.ReverseLookup(gctx, models.Coordinate{Latitude: lat, Longitude: lon})
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.CombinedEnvironmentPayload{}, err
	}

	success := true
	if weatherErr != nil {
		a.logger.Warn("weather provider failed, using estimates", zap.Error(weatherErr))
		weather = fallbackWeather
		success = false
	}
	if soilErr != nil {
		a.logger.Warn("soil provider failed, using estimates", zap.Error(soilErr))
		soil = fallbackSoil
		success = false
	}
	// a missing place name does not make the climate and soil values estimates
	if placeErr != nil {
		a.logger.Warn("place provider failed", zap.Error(placeErr))
		place = fallbackPlace(lat, lon)
	}

	payload := buildPayload(weather, soil, place, success)

	// a fallback place is not cached so the next request retries the lookup
	if success && placeErr == nil && a.cache != nil && a.cacheTTL > 0 {
		if err := a.cache.Put(ctx, key, payload, a.cacheTTL); err != nil {
			a.logger.Warn("environment cache write failed", zap.String("cell", key), zap.Error(err))
		}
	}
	return payload, nil
}

func buildPayload(w Weather, s Soil, p models.PlaceName, success bool) models.CombinedEnvironmentPayload {
	ph := s.PH
	oc := s.Composition.OrganicCarbonPct
	payload := models.CombinedEnvironmentPayload{
		Success: success,
		Data: models.CombinedEnvironmentData{
			PH:          &ph,
			Rainfall:    w.RainfallMM,
			Temperature: w.AverageTemperature(),
			Humidity:    w.HumidityPct,
			Location: models.CombinedLocation{
				DisplayName: p.DisplayName,
				City:        p.City,
				State:       p.Region,
				Country:     p.Country,
			},
			Soil: models.CombinedSoil{
				SoilType:      s.Composition.SoilType,
				ClayContent:   s.Composition.ClayPct,
				SandContent:   s.Composition.SandPct,
				SiltContent:   s.Composition.SiltPct,
				OrganicCarbon: &oc,
			},
		},
	}
	if !success {
		payload.Message = EstimatedDataMessage
	}
	return payload
}

func fallbackPlace(lat, lon float64) models.PlaceName {
	return models.PlaceName{
		DisplayName: fmt.Sprintf("Location %.2f, %.2f", lat, lon),
		City:        "Unknown City",
		Region:      "Unknown State",
		Country:     "Unknown Country",
	}
}

// LocalFetcher serves FetchEnvironment from an in-process Aggregator
type LocalFetcher struct {
	agg *Aggregator
}

// NewLocalFetcher creates a new in-process fetcher
func NewLocalFetcher(agg *Aggregator) *LocalFetcher {
	return &LocalFetcher{agg: agg}
}

// FetchEnvironment aggregates and normalizes the environment for coord
func (f *LocalFetcher) FetchEnvironment(ctx context.Context, coord models.Coordinate) (models.EnvironmentReading, error) {
	payload, err := f.agg.Combined(ctx, coord.Latitude, coord.Longitude)
	if err != nil {
		return models.EnvironmentReading{}, err
	}
	return ToReading(payload), nil
}
