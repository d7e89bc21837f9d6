package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
)

// AcquireRequest carries the position readings a device reported while sampling.
// An empty Readings list means the device has no position capability.
type AcquireRequest struct {
	Origin   string                `json:"origin"`
	Readings []geolocation.Reading `json:"readings"`
	FormID   string                `json:"form_id"`
	Interval time.Duration         `json:"-"`
}

// AcquireResult is the outcome of an acquisition
type AcquireResult struct {
	Coordinate models.Coordinate `json:"coordinate"`
	Form       *reconciler.State `json:"form,omitempty"`
}

// LocationService runs acquisitions and hands the result to a form
type LocationService struct {
	forms  *FormService
	opts   geolocation.Options
	logger *zap.Logger
}

// NewLocationService creates a new location service. forms may be nil.
func NewLocationService(forms *FormService, opts geolocation.Options, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{forms: forms, opts: opts.WithDefaults(), logger: logger}
}

// Acquire resolves the best coordinate from the reported readings
func (s *LocationService) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	// An unknown origin is treated as an insecure context.
	origin, err := geolocation.ParseOrigin(req.Origin)
	if err != nil {
		s.logger.Debug("unparseable origin", zap.String("origin", req.Origin), zap.Error(err))
		origin = geolocation.Origin{}
	}

	if req.FormID != "" && s.forms != nil {
		if _, err := s.forms.Reconciler(req.FormID); err != nil {
			return nil, err
		}
	}

	var watcher geolocation.Watcher
	if len(req.Readings) > 0 {
		watcher = &geolocation.ReplayWatcher{Readings: req.Readings, Interval: req.Interval}
	}

	coord, err := geolocation.NewAcquirer(watcher, origin, s.opts, s.logger).Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result := &AcquireResult{Coordinate: coord}
	if req.FormID != "" && s.forms != nil {
		state, err := s.forms.ApplyCoordinate(req.FormID, coord)
		if err != nil {
			return nil, err
		}
		result.Form = &state
	}
	return result, nil
}
