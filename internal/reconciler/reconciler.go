package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
)

// EnvironmentFetcher provides climate and soil readings for a coordinate
type EnvironmentFetcher interface {
	FetchEnvironment(ctx context.Context, coord models.Coordinate) (models.EnvironmentReading, error)
}

// ReverseGeocoder names a coordinate
type ReverseGeocoder interface {
	ReverseLookup(ctx context.Context, coord models.Coordinate) (models.PlaceName, error)
}

// ErrManualEntryHidden is returned for manual coordinates while manual entry is off
var ErrManualEntryHidden = errors.New("manual location entry is not enabled")

// ErrClosed is returned once the reconciler has been closed
var ErrClosed = errors.New("form is closed")

// Advisory texts for degraded fetches
const (
	AdvisoryEnvironmentFailed = "Could not fetch soil and weather data for this location. Please enter the values manually."
	AdvisoryPlaceFailed       = "Could not determine the place name for this location."
)

// Config holds the per-form toggles and fetch limits
type Config struct {
	ClimateAutoFill    bool
	ManualEntryVisible bool
	FetchTimeout       time.Duration
}

// ValidationError reports every invalid field at once
type ValidationError struct {
	Fields map[Field]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range append(append([]Field{}, AllFields...), fieldLocation) {
		if _, ok := e.Fields[f]; ok {
			names = append(names, string(f))
		}
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

// fieldLocation is reported by Submission when no coordinate is set
const fieldLocation Field = "location"

// ticket identifies an async request: the coordinate generation it belongs
// to and the edit clock at the moment it was issued.
type ticket struct {
	generation uint64
	issuedAt   uint64
}

// Reconciler owns one form's state and merges async results into it
type Reconciler struct {
	env          EnvironmentFetcher
	geo          ReverseGeocoder
	fetchTimeout time.Duration
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	idle       *sync.Cond
	pending    int
	state      State
	generation uint64
	clock      uint64
	editedAt   map[Field]uint64
	closed     bool
}

// New creates a reconciler with an empty form
func New(env EnvironmentFetcher, geo ReverseGeocoder, cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		env:          env,
		geo:          geo,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		state:        newState(cfg.ClimateAutoFill, cfg.ManualEntryVisible),
		editedAt:     make(map[Field]uint64),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// Snapshot returns a copy of the current state
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// ApplyCoordinate sets a new coordinate and starts the reverse lookup and,
// when climate auto-fill is on, the environment fetch. Results from earlier
// coordinates are discarded from now on.
func (r *Reconciler) ApplyCoordinate(c models.Coordinate) error {
	if err := spatial.ValidateCoordinate(c.Latitude, c.Longitude); err != nil {
		return err
	}
	if c.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy %v must not be negative", spatial.ErrInvalidCoordinate, c.AccuracyMeters)
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	if prev := r.state.Coordinate; prev != nil {
		r.logger.Debug("coordinate superseded",
			zap.Float64("moved_m", spatial.HaversineDistance(prev.Latitude, prev.Longitude, c.Latitude, c.Longitude)))
	}

	r.state = withCoordinate(r.state, c)
	r.generation++
	t := r.issue()

	r.startPlaceLookup(t, c)
	if r.state.ClimateAutoFill {
		r.startEnvironmentFetch(t, c)
	}
	return nil
}

// ApplyManualCoordinate records a typed-in coordinate
func (r *Reconciler) ApplyManualCoordinate(lat, lon float64) error {
	r.mu.Lock()
	visible := r.state.ManualEntryVisible
	r.mu.Unlock()
	if !visible {
		return ErrManualEntryHidden
	}
	return r.ApplyCoordinate(models.Coordinate{
		Latitude:   lat,
		Longitude:  lon,
		CapturedAt: time.Now(),
		Source:     models.CoordinateSourceManual,
	})
}

// ApplyPlaceName sets the place description directly
func (r *Reconciler) ApplyPlaceName(p models.PlaceName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = withPlace(r.state, p)
}

// ApplyEnvironment merges a reading into the climate fields when
// climateAutoFillEnabled is true. Soil chemistry is never written.
func (r *Reconciler) ApplyEnvironment(reading models.EnvironmentReading, climateAutoFillEnabled bool) {
	if !climateAutoFillEnabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = withEnvironment(r.state, reading, nil)
}

// SetField records a user edit. The edit wins over any async result issued
// before it.
func (r *Reconciler) SetField(f Field, value string) error {
	if _, err := ParseField(string(f)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	r.editedAt[f] = r.clock
	r.state = withField(r.state, f, strings.TrimSpace(value))
	return nil
}

// ToggleClimateAutoFill switches climate auto-fill. Turning it on with a
// coordinate present starts one environment fetch; the return value reports
// whether it did.
func (r *Reconciler) ToggleClimateAutoFill(enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = withClimateAutoFill(r.state, enabled)
	if !enabled || r.state.Coordinate == nil || r.closed {
		return false
	}
	r.startEnvironmentFetch(r.issue(), *r.state.Coordinate)
	return true
}

// RefreshEnvironment re-fetches the environment for the current coordinate
func (r *Reconciler) RefreshEnvironment() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.ClimateAutoFill || r.state.Coordinate == nil || r.closed {
		return false
	}
	r.startEnvironmentFetch(r.issue(), *r.state.Coordinate)
	return true
}

// SetManualEntryVisible shows or hides manual coordinate entry
func (r *Reconciler) SetManualEntryVisible(visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = withManualEntryVisible(r.state, visible)
}

// Clear discards the form. In-flight results are dropped when they arrive.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.editedAt = make(map[Field]uint64)
	r.state = cleared(r.state)
}

// Validate range-checks the agronomic fields. An empty map means valid.
func (r *Reconciler) Validate() map[Field]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return validate(r.state)
}

func validate(s State) map[Field]string {
	errs := make(map[Field]string)
	for _, f := range validationOrder {
		if msg := validationRules[f].check(s.Values[f]); msg != "" {
			errs[f] = msg
		}
	}
	return errs
}

// Submission validates the whole form and builds the recommendation request
func (r *Reconciler) Submission(formID string) (models.Submission, error) {
	r.mu.Lock()
	s := r.state.clone()
	r.mu.Unlock()

	errs := validate(s)

	budget, ok := positiveNumber(s.Values[FieldBudget])
	if !ok {
		errs[FieldBudget] = "Budget per hectare must be a positive number"
	}
	farmSize := 1.0
	if raw := s.Values[FieldFarmSize]; raw != "" {
		if farmSize, ok = positiveNumber(raw); !ok {
			errs[FieldFarmSize] = "Farm size must be a positive number"
		}
	}
	if s.Coordinate == nil {
		errs[fieldLocation] = "Location is required"
	}
	if len(errs) > 0 {
		return models.Submission{}, &ValidationError{Fields: errs}
	}

	num := func(f Field) float64 {
		v, _ := strconv.ParseFloat(s.Values[f], 64)
		return v
	}
	sub := models.Submission{
		FormID: formID,
		SoilParameters: models.SoilParameters{
			N:           num(FieldNitrogen),
			P:           num(FieldPhosphorus),
			K:           num(FieldPotassium),
			PH:          num(FieldPH),
			Temperature: num(FieldTemperature),
			Humidity:    num(FieldHumidity),
			Rainfall:    num(FieldRainfall),
		},
		Location: models.SubmissionLocation{
			Latitude:  s.Coordinate.Latitude,
			Longitude: s.Coordinate.Longitude,
		},
		BudgetPerHectare: budget,
		FarmSizeHectares: farmSize,
		CreatedAt:        time.Now(),
	}
	if s.Place != nil {
		sub.Location.Address = s.Place.DisplayName
	}
	return sub, nil
}

// positiveNumber parses raw as a finite number greater than zero
func positiveNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// Wait blocks until every in-flight fetch has been merged or discarded.
// Fetches started while waiting are waited for too.
func (r *Reconciler) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.pending > 0 {
		r.idle.Wait()
	}
}

// Close cancels in-flight fetches and waits for them to finish
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.Wait()
}

// issue must be called with mu held
func (r *Reconciler) issue() ticket {
	r.clock++
	return ticket{generation: r.generation, issuedAt: r.clock}
}

// spawn must be called with mu held
func (r *Reconciler) spawn(fn func(ctx context.Context)) {
	r.pending++
	go func() {
		defer r.done()
		ctx, cancel := context.WithTimeout(r.ctx, r.fetchTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (r *Reconciler) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending == 0 {
		r.idle.Broadcast()
	}
}

func (r *Reconciler) startPlaceLookup(t ticket, c models.Coordinate) {
	if r.geo == nil {
		return
	}
	r.spawn(func(ctx context.Context) {
		p, err := r.geo.ReverseLookup(ctx, c)
		r.mergePlace(t, p, err)
	})
}

func (r *Reconciler) startEnvironmentFetch(t ticket, c models.Coordinate) {
	if r.env == nil {
		return
	}
	r.spawn(func(ctx context.Context) {
		reading, err := r.env.FetchEnvironment(ctx, c)
		r.mergeEnvironment(t, reading, err)
	})
}

func (r *Reconciler) mergePlace(t ticket, p models.PlaceName, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || t.generation != r.generation {
		r.logger.Debug("discarding stale place name", zap.Uint64("generation", t.generation))
		return
	}
	if err != nil {
		r.logger.Warn("reverse lookup failed", zap.Error(err))
		r.state = withAdvisory(r.state, AdvisoryPlaceFailed)
		return
	}
	r.state = withPlace(r.state, p)
}

func (r *Reconciler) mergeEnvironment(t ticket, reading models.EnvironmentReading, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || t.generation != r.generation {
		r.logger.Debug("discarding stale environment reading", zap.Uint64("generation", t.generation))
		return
	}
	if err != nil {
		r.logger.Warn("environment fetch failed", zap.Error(err))
		r.state = withAdvisory(r.state, AdvisoryEnvironmentFailed)
		return
	}
	if !r.state.ClimateAutoFill {
		r.logger.Debug("climate auto-fill disabled, reading dropped")
		return
	}

	editedSince := func(f Field) bool {
		return r.editedAt[f] > t.issuedAt
	}
	r.state = withEnvironment(r.state, reading, editedSince)
}
