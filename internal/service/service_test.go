package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jengzang/farm-advisory-backend-go/internal/database"
	"github.com/jengzang/farm-advisory-backend-go/internal/events"
	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
	"github.com/jengzang/farm-advisory-backend-go/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubEnv struct{}

func (stubEnv) FetchEnvironment(ctx context.Context, c models.Coordinate) (models.EnvironmentReading, error) {
	return models.EnvironmentReading{
		Snapshot: models.EnvironmentalSnapshot{TemperatureC: 24.5, HumidityPct: 70, RainfallMM: 120},
	}, nil
}

type stubPlaces struct {
	mu      sync.Mutex
	queries []string
}

func (p *stubPlaces) ReverseLookup(ctx context.Context, c models.Coordinate) (models.PlaceName, error) {
	return models.PlaceName{DisplayName: "Pune, Maharashtra, India", City: "Pune", Region: "Maharashtra"}, nil
}

func (p *stubPlaces) SearchByText(ctx context.Context, q string) ([]models.SearchResult, error) {
	p.mu.Lock()
	p.queries = append(p.queries, q)
	p.mu.Unlock()
	if len(q) < 3 {
		return []models.SearchResult{}, nil
	}
	return []models.SearchResult{{
		Place:      models.PlaceName{DisplayName: q + " District"},
		Coordinate: models.Coordinate{Latitude: 18.5, Longitude: 73.8},
	}}, nil
}

func newForms(t *testing.T) *FormService {
	t.Helper()
	forms := NewFormService(stubEnv{}, &stubPlaces{}, reconciler.Config{ClimateAutoFill: true}, time.Minute, nil)
	t.Cleanup(forms.Close)
	return forms
}

var pune = models.Coordinate{Latitude: 18.5204, Longitude: 73.8567, AccuracyMeters: 10, CapturedAt: time.Unix(1700000000, 0), Source: models.CoordinateSourceGPS}

func TestFormService_Lifecycle(t *testing.T) {
	forms := newForms(t)

	off := false
	id, state := forms.Create(FormOptions{ClimateAutoFill: &off})
	assert.NotEmpty(t, id)
	assert.False(t, state.ClimateAutoFill)
	assert.Equal(t, 1, forms.Count())

	_, err := forms.SetField(id, reconciler.FieldNitrogen, "90")
	require.NoError(t, err)
	_, err = forms.ApplyCoordinate(id, pune)
	require.NoError(t, err)

	state, err = forms.Settle(id)
	require.NoError(t, err)
	assert.Equal(t, "90", state.Values[reconciler.FieldNitrogen])
	require.NotNil(t, state.Place)
	assert.Equal(t, "Pune", state.Place.City)
	assert.Empty(t, state.Values[reconciler.FieldTemperature])

	_, fetched, err := forms.SetClimateAutoFill(id, true)
	require.NoError(t, err)
	assert.True(t, fetched)
	state, err = forms.Settle(id)
	require.NoError(t, err)
	assert.Equal(t, "24.5", state.Values[reconciler.FieldTemperature])

	errs, err := forms.Validate(id)
	require.NoError(t, err)
	assert.Len(t, errs, 3, "P, K and pH are still empty")

	require.NoError(t, forms.Delete(id))
	_, err = forms.Get(id)
	assert.ErrorIs(t, err, ErrFormNotFound)
	assert.ErrorIs(t, forms.Delete(id), ErrFormNotFound)
}

func TestFormService_ManualEntry(t *testing.T) {
	forms := newForms(t)
	id, _ := forms.Create(FormOptions{})

	_, err := forms.ApplyManualCoordinate(id, 18.5, 73.8)
	assert.ErrorIs(t, err, reconciler.ErrManualEntryHidden)

	_, err = forms.SetManualEntryVisible(id, true)
	require.NoError(t, err)
	state, err := forms.ApplyManualCoordinate(id, 18.5, 73.8)
	require.NoError(t, err)
	assert.Equal(t, models.CoordinateSourceManual, state.Coordinate.Source)

	state, err = forms.ApplyPlace(id, models.PlaceName{DisplayName: "Chosen"})
	require.NoError(t, err)
	assert.Equal(t, "Chosen", state.Place.DisplayName)

	state, err = forms.Clear(id)
	require.NoError(t, err)
	assert.Nil(t, state.Coordinate)
	assert.True(t, state.ManualEntryVisible)
}

func TestFormService_Sweep(t *testing.T) {
	forms := newForms(t)
	now := time.Now()
	forms.now = func() time.Time { return now }

	stale, _ := forms.Create(FormOptions{})
	now = now.Add(45 * time.Second)
	fresh, _ := forms.Create(FormOptions{})
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, forms.Sweep())
	_, err := forms.Get(stale)
	assert.ErrorIs(t, err, ErrFormNotFound)
	_, err = forms.Get(fresh)
	assert.NoError(t, err)
}

func TestFormService_SweeperStops(t *testing.T) {
	forms := NewFormService(stubEnv{}, nil, reconciler.Config{}, time.Millisecond, nil)
	forms.Create(FormOptions{})
	forms.StartSweeper(time.Millisecond)

	require.Eventually(t, func() bool { return forms.Count() == 0 }, time.Second, time.Millisecond)
	forms.Close()
}

func TestLocationService_Acquire(t *testing.T) {
	forms := newForms(t)
	svc := NewLocationService(forms, geolocation.DefaultOptions(), nil)
	ctx := context.Background()

	readings := []geolocation.Reading{
		{Sample: geolocation.Sample{Latitude: 18.52, Longitude: 73.85, Accuracy: 120}},
		{Sample: geolocation.Sample{Latitude: 18.521, Longitude: 73.851, Accuracy: 80}},
		{Sample: geolocation.Sample{Latitude: 18.5204, Longitude: 73.8567, Accuracy: 45}},
		{Sample: geolocation.Sample{Latitude: 0, Longitude: 0, Accuracy: 5}},
	}

	t.Run("resolves first sample within threshold", func(t *testing.T) {
		res, err := svc.Acquire(ctx, AcquireRequest{Origin: "https://farm.example.org", Readings: readings})
		require.NoError(t, err)
		assert.Equal(t, 45.0, res.Coordinate.AccuracyMeters)
		assert.Nil(t, res.Form)
	})

	t.Run("applies to form", func(t *testing.T) {
		id, _ := forms.Create(FormOptions{})
		res, err := svc.Acquire(ctx, AcquireRequest{Origin: "http://localhost:5173", Readings: readings, FormID: id})
		require.NoError(t, err)
		require.NotNil(t, res.Form)
		assert.Equal(t, 18.5204, res.Form.Coordinate.Latitude)
	})

	t.Run("insecure origin", func(t *testing.T) {
		_, err := svc.Acquire(ctx, AcquireRequest{Origin: "http://farm.example.org", Readings: readings})
		assert.ErrorIs(t, err, geolocation.ErrInsecureContext)
	})

	t.Run("no readings means unsupported", func(t *testing.T) {
		_, err := svc.Acquire(ctx, AcquireRequest{Origin: "https://farm.example.org"})
		assert.ErrorIs(t, err, geolocation.ErrUnsupported)
	})

	t.Run("permission denied", func(t *testing.T) {
		_, err := svc.Acquire(ctx, AcquireRequest{
			Origin:   "https://farm.example.org",
			Readings: []geolocation.Reading{{Code: geolocation.CodePermissionDenied, Message: "denied"}},
		})
		assert.ErrorIs(t, err, geolocation.ErrPermissionDenied)
	})

	t.Run("unknown form", func(t *testing.T) {
		_, err := svc.Acquire(ctx, AcquireRequest{Origin: "https://farm.example.org", Readings: readings, FormID: "nope"})
		assert.ErrorIs(t, err, ErrFormNotFound)
	})

	t.Run("bad origin", func(t *testing.T) {
		_, err := svc.Acquire(ctx, AcquireRequest{Origin: "farm", Readings: readings})
		assert.Error(t, err)
	})
}

func TestGeocodingService(t *testing.T) {
	places := &stubPlaces{}
	svc := NewGeocodingService(places, 0)
	ctx := context.Background()

	results, err := svc.Search(ctx, "client-a", "Nashik")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Nashik District", results[0].Place.DisplayName)

	results, err = svc.Search(ctx, "client-a", "Na")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	place, err := svc.Reverse(ctx, 18.52, 73.85)
	require.NoError(t, err)
	assert.Equal(t, "Pune", place.City)

	_, err = svc.Reverse(ctx, 95, 0)
	assert.Error(t, err)
}

func TestGeocodingService_SearchersPerClientExpire(t *testing.T) {
	svc := NewGeocodingService(&stubPlaces{}, 0)
	now := time.Now()
	svc.now = func() time.Time { return now }

	a := svc.searcher("a")
	assert.Same(t, a, svc.searcher("a"))
	assert.NotSame(t, a, svc.searcher("b"))

	now = now.Add(11 * time.Minute)
	assert.NotSame(t, a, svc.searcher("a"), "idle searchers are dropped")
}

type recordingPublisher struct {
	mu   sync.Mutex
	subs []models.Submission
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, s models.Submission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subs = append(p.subs, s)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var _ events.Publisher = (*recordingPublisher)(nil)

func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "svc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = database.NewMigrationManager(conn, nil).RunMigrations(context.Background())
	require.NoError(t, err)
	return conn
}

func completeForm(t *testing.T, forms *FormService) string {
	t.Helper()
	id, _ := forms.Create(FormOptions{})
	for f, v := range map[reconciler.Field]string{
		reconciler.FieldNitrogen:    "90",
		reconciler.FieldPhosphorus:  "42",
		reconciler.FieldPotassium:   "43",
		reconciler.FieldPH:          "6.5",
		reconciler.FieldBudget:      "25000",
		reconciler.FieldFarmSize:    "2",
		reconciler.FieldTemperature: "22",
		reconciler.FieldHumidity:    "60",
		reconciler.FieldRainfall:    "150",
	} {
		_, err := forms.SetField(id, f, v)
		require.NoError(t, err)
	}
	_, err := forms.ApplyCoordinate(id, pune)
	require.NoError(t, err)
	_, err = forms.Settle(id)
	require.NoError(t, err)
	return id
}

func TestSubmissionService(t *testing.T) {
	ctx := context.Background()
	forms := newForms(t)
	repo := repository.NewSubmissionRepository(migratedDB(t))
	pub := &recordingPublisher{}
	svc := NewSubmissionService(forms, repo, pub, nil)

	t.Run("incomplete form", func(t *testing.T) {
		id, _ := forms.Create(FormOptions{})
		_, err := svc.Submit(ctx, id)
		var ve *reconciler.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("stores and publishes", func(t *testing.T) {
		id := completeForm(t, forms)
		sub, err := svc.Submit(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)
		assert.True(t, sub.Published)
		assert.Equal(t, "Pune, Maharashtra, India", sub.Location.Address)

		stored, err := svc.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.True(t, stored.Published)
		require.Len(t, pub.subs, 1)
		assert.Equal(t, sub.ID, pub.subs[0].ID)

		list, err := svc.ListByForm(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("publish failure is retried", func(t *testing.T) {
		pub.mu.Lock()
		pub.err = errors.New("broker down")
		pub.mu.Unlock()

		id := completeForm(t, forms)
		sub, err := svc.Submit(ctx, id)
		require.NoError(t, err, "submission is stored even when the broker is down")
		assert.False(t, sub.Published)

		_, err = svc.RetryUnpublished(ctx)
		assert.Error(t, err)

		pub.mu.Lock()
		pub.err = nil
		pub.mu.Unlock()

		n, err := svc.RetryUnpublished(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("unknown form", func(t *testing.T) {
		_, err := svc.Submit(ctx, "nope")
		assert.ErrorIs(t, err, ErrFormNotFound)
	})
}
