package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
)

// ErrFormNotFound is returned for unknown or expired form IDs
var ErrFormNotFound = errors.New("form not found")

type formSession struct {
	rec      *reconciler.Reconciler
	lastSeen time.Time
}

// FormOptions overrides the default toggles of a new form
type FormOptions struct {
	ClimateAutoFill    *bool `json:"climate_auto_fill"`
	ManualEntryVisible *bool `json:"manual_entry_visible"`
}

// FormService owns the in-memory registry of form sessions
type FormService struct {
	env      reconciler.EnvironmentFetcher
	geo      reconciler.ReverseGeocoder
	defaults reconciler.Config
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*formSession

	sweeping bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewFormService creates a new form service. Sessions idle for longer than
// ttl are closed by the sweeper started with StartSweeper.
func NewFormService(env reconciler.EnvironmentFetcher, geo reconciler.ReverseGeocoder, defaults reconciler.Config, ttl time.Duration, logger *zap.Logger) *FormService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{
		env:      env,
		geo:      geo,
		defaults: defaults,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*formSession),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Create opens a new form and returns its ID and initial state
func (s *FormService) Create(opts FormOptions) (string, reconciler.State) {
	cfg := s.defaults
	if opts.ClimateAutoFill != nil {
		cfg.ClimateAutoFill = *opts.ClimateAutoFill
	}
	if opts.ManualEntryVisible != nil {
		cfg.ManualEntryVisible = *opts.ManualEntryVisible
	}

	id := uuid.NewString()
	rec := reconciler.New(s.env, s.geo, cfg, s.logger.With(zap.String("form_id", id)))

	s.mu.Lock()
	s.sessions[id] = &formSession{rec: rec, lastSeen: s.now()}
	s.mu.Unlock()

	s.logger.Info("form created", zap.String("form_id", id))
	return id, rec.Snapshot()
}

// Reconciler returns the live reconciler of a form and marks it as used
func (s *FormService) Reconciler(id string) (*reconciler.Reconciler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("form %s: %w", id, ErrFormNotFound)
	}
	sess.lastSeen = s.now()
	return sess.rec, nil
}

// Get returns the current state of a form
func (s *FormService) Get(id string) (reconciler.State, error) {
	rec, err := s.Reconciler(id)
	if err != nil {
		return reconciler.State{}, err
	}
	return rec.Snapshot(), nil
}

// Delete closes a form and forgets it
func (s *FormService) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("form %s: %w", id, ErrFormNotFound)
	}
	sess.rec.Close()
	s.logger.Info("form deleted", zap.String("form_id", id))
	return nil
}

// Count returns the number of open forms
func (s *FormService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetField records a user edit
func (s *FormService) SetField(id string, field reconciler.Field, value string) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		return rec.SetField(field, value)
	})
}

// ApplyCoordinate sets the form location and starts the dependent lookups
func (s *FormService) ApplyCoordinate(id string, c models.Coordinate) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		return rec.ApplyCoordinate(c)
	})
}

// ApplyManualCoordinate sets a typed-in location
func (s *FormService) ApplyManualCoordinate(id string, lat, lon float64) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		return rec.ApplyManualCoordinate(lat, lon)
	})
}

// ApplyPlace sets the place description, e.g. from a chosen search result
func (s *FormService) ApplyPlace(id string, p models.PlaceName) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		rec.ApplyPlaceName(p)
		return nil
	})
}

// SetClimateAutoFill toggles climate auto-fill; fetched reports whether a fetch started
func (s *FormService) SetClimateAutoFill(id string, enabled bool) (state reconciler.State, fetched bool, err error) {
	state, err = s.apply(id, func(rec *reconciler.Reconciler) error {
		fetched = rec.ToggleClimateAutoFill(enabled)
		return nil
	})
	return state, fetched, err
}

// SetManualEntryVisible toggles manual location entry
func (s *FormService) SetManualEntryVisible(id string, visible bool) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		rec.SetManualEntryVisible(visible)
		return nil
	})
}

// Refresh re-fetches the environment for the current location
func (s *FormService) Refresh(id string) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		rec.RefreshEnvironment()
		return nil
	})
}

// Clear resets a form
func (s *FormService) Clear(id string) (reconciler.State, error) {
	return s.apply(id, func(rec *reconciler.Reconciler) error {
		rec.Clear()
		return nil
	})
}

// Validate range-checks a form
func (s *FormService) Validate(id string) (map[reconciler.Field]string, error) {
	rec, err := s.Reconciler(id)
	if err != nil {
		return nil, err
	}
	return rec.Validate(), nil
}

// Settle waits for the in-flight lookups of a form and returns its state
func (s *FormService) Settle(id string) (reconciler.State, error) {
	rec, err := s.Reconciler(id)
	if err != nil {
		return reconciler.State{}, err
	}
	rec.Wait()
	return rec.Snapshot(), nil
}

func (s *FormService) apply(id string, fn func(*reconciler.Reconciler) error) (reconciler.State, error) {
	rec, err := s.Reconciler(id)
	if err != nil {
		return reconciler.State{}, err
	}
	if err := fn(rec); err != nil {
		return rec.Snapshot(), err
	}
	return rec.Snapshot(), nil
}

// Sweep closes sessions idle since before now-ttl and returns how many it closed
func (s *FormService) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*reconciler.Reconciler
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess.rec)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, rec := range expired {
		rec.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle forms", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// StartSweeper runs Sweep periodically until Close
func (s *FormService) StartSweeper(interval time.Duration) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper and closes every open form
func (s *FormService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	sweeping := s.sweeping
	sessions := s.sessions
	s.sessions = make(map[string]*formSession)
	s.mu.Unlock()

	if sweeping {
		<-s.done
	}
	for _, sess := range sessions {
		sess.rec.Close()
	}
}
