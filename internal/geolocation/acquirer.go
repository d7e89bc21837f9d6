package geolocation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
)

// Options controls when an acquisition settles
type Options struct {
	AccuracyThresholdMeters float64       `yaml:"accuracy_threshold_meters" json:"accuracy_threshold_meters"`
	MaxSamples              int           `yaml:"max_samples" json:"max_samples"`
	OverallTimeout          time.Duration `yaml:"overall_timeout" json:"overall_timeout"`
	PerSampleTimeout        time.Duration `yaml:"per_sample_timeout" json:"per_sample_timeout"`
}

// DefaultOptions returns the standard acquisition policy
func DefaultOptions() Options {
	return Options{
		AccuracyThresholdMeters: 50,
		MaxSamples:              10,
		OverallTimeout:          30 * time.Second,
		PerSampleTimeout:        27 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultOptions
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.AccuracyThresholdMeters <= 0 {
		o.AccuracyThresholdMeters = d.AccuracyThresholdMeters
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = d.MaxSamples
	}
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = d.OverallTimeout
	}
	if o.PerSampleTimeout <= 0 {
		o.PerSampleTimeout = d.PerSampleTimeout
	}
	return o
}

// Acquirer resolves a single best coordinate from a Watcher
type Acquirer struct {
	watcher Watcher
	origin  Origin
	opts    Options
	logger  *zap.Logger
}

// NewAcquirer creates a new acquirer. A nil watcher means the host has no
// geolocation capability.
func NewAcquirer(watcher Watcher, origin Origin, opts Options, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		watcher: watcher,
		origin:  origin,
		opts:    opts.WithDefaults(),
		logger:  logger,
	}
}

// Acquire samples positions until one of the following holds, first match wins:
// a sample is within the accuracy threshold, MaxSamples samples were seen
// (best one wins), or OverallTimeout elapsed (best one wins, else Timeout).
// Cancelling ctx abandons the acquisition and returns ctx.Err().
func (a *Acquirer) Acquire(ctx context.Context) (models.Coordinate, error) {
	if a.watcher == nil || !a.watcher.Available() {
		return models.Coordinate{}, newError(Unsupported, "no position source available")
	}
	if !a.origin.IsSecure() {
		return models.Coordinate{}, newError(InsecureContext, a.origin.String())
	}

	readings, stop, err := a.watcher.Watch(WatchOptions{
		HighAccuracy: true,
		Timeout:      a.opts.PerSampleTimeout,
	})
	if err != nil {
		return models.Coordinate{}, newError(Unknown, err.Error())
	}

	// every return path below stops sampling exactly once
	defer stop()

	timer := time.NewTimer(a.opts.OverallTimeout)
	defer timer.Stop()

	tr := newTracker(a.opts.AccuracyThresholdMeters, a.opts.MaxSamples)

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("acquisition abandoned", zap.Error(ctx.Err()))
			return models.Coordinate{}, ctx.Err()

		case r, ok := <-readings:
			if ctx.Err() != nil {
				return models.Coordinate{}, ctx.Err()
			}
			if !ok {
				// source ended without a qualifying fix
				if best, found := tr.bestSoFar(); found {
					return a.resolve(best, "source exhausted"), nil
				}
				return models.Coordinate{}, newError(PositionUnavailable, "position source closed")
			}

			if r.Code != 0 {
				if best, found := tr.bestSoFar(); found && r.Code == CodeTimeout {
					return a.resolve(best, "sample timeout"), nil
				}
				a.logger.Warn("position source error", zap.Int("code", r.Code), zap.String("message", r.Message))
				return models.Coordinate{}, fromCode(r.Code, r.Message)
			}

			s := r.Sample
			if spatial.ValidateCoordinate(s.Latitude, s.Longitude) != nil || s.Accuracy < 0 || s.Accuracy != s.Accuracy {
				a.logger.Debug("discarding invalid sample", zap.Float64("lat", s.Latitude), zap.Float64("lon", s.Longitude))
				continue
			}
			a.logger.Debug("position sample", zap.Float64("accuracy", s.Accuracy))

			if chosen, done := tr.observe(s); done {
				reason := "sample cap"
				if s.Accuracy <= a.opts.AccuracyThresholdMeters {
					reason = "accuracy threshold"
				}
				return a.resolve(chosen, reason), nil
			}

		case <-timer.C:
			if best, found := tr.bestSoFar(); found {
				return a.resolve(best, "overall timeout"), nil
			}
			return models.Coordinate{}, newError(Timeout, "no position within overall timeout")
		}
	}
}

func (a *Acquirer) resolve(s Sample, reason string) models.Coordinate {
	capturedAt := s.Timestamp
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	a.logger.Info("location acquired",
		zap.String("reason", reason),
		zap.Float64("accuracy", s.Accuracy),
	)
	return models.Coordinate{
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		AccuracyMeters: s.Accuracy,
		CapturedAt:     capturedAt,
		Source:         models.CoordinateSourceGPS,
	}
}
