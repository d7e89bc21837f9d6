package reconciler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jengzang/farm-advisory-backend-go/internal/environment"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEnv struct {
	mu      sync.Mutex
	calls   []models.Coordinate
	reading func(models.Coordinate) models.EnvironmentReading
	err     error
	gate    chan struct{}
}

func (f *fakeEnv) FetchEnvironment(ctx context.Context, c models.Coordinate) (models.EnvironmentReading, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate, err, reading := f.gate, f.err, f.reading
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.EnvironmentReading{}, ctx.Err()
		}
	}
	if err != nil {
		return models.EnvironmentReading{}, err
	}
	if reading == nil {
		return readingWith(26.4, 61, 80), nil
	}
	return reading(c), nil
}

func (f *fakeEnv) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGeo struct {
	place models.PlaceName
	err   error
}

func (f fakeGeo) ReverseLookup(ctx context.Context, c models.Coordinate) (models.PlaceName, error) {
	return f.place, f.err
}

func readingWith(temp, humidity, rainfall float64) models.EnvironmentReading {
	r, advisory := environment.NormalizeRainfall(rainfall)
	return models.EnvironmentReading{
		Snapshot: models.EnvironmentalSnapshot{
			TemperatureC: temp,
			HumidityPct:  humidity,
			RainfallMM:   r,
			Soil:         models.SoilComposition{ClayPct: 25, SandPct: 45, SiltPct: 30, OrganicCarbonPct: 2.5, SoilType: "Loam"},
			Location:     models.PlaceName{DisplayName: "ignored"},
		},
		Advisory: advisory,
	}
}

var pune = models.Coordinate{Latitude: 18.5204, Longitude: 73.8567, AccuracyMeters: 12, CapturedAt: time.Unix(1700000000, 0), Source: "gps"}
var nashik = models.Coordinate{Latitude: 19.9975, Longitude: 73.7898, AccuracyMeters: 20, CapturedAt: time.Unix(1700000100, 0), Source: "gps"}

var punePlace = models.PlaceName{DisplayName: "Pune, Maharashtra, India", City: "Pune", Region: "Maharashtra"}

func TestApplyCoordinate_MergesBothSources(t *testing.T) {
	env := &fakeEnv{reading: func(models.Coordinate) models.EnvironmentReading { return readingWith(24.5, 70, 12.3) }}
	r := New(env, fakeGeo{place: punePlace}, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	require.NoError(t, r.ApplyCoordinate(pune))
	r.Wait()

	s := r.Snapshot()
	require.NotNil(t, s.Coordinate)
	assert.Equal(t, pune, *s.Coordinate)
	require.NotNil(t, s.Place)
	assert.Equal(t, punePlace, *s.Place, "place comes from the geocoder, not the reading")
	assert.Equal(t, "24.5", s.Values[FieldTemperature])
	assert.Equal(t, "70", s.Values[FieldHumidity])
	assert.Equal(t, "50", s.Values[FieldRainfall])
	assert.Contains(t, s.Advisories, "Note: Actual rainfall (12.3mm) was below recommended minimum. Using 50mm.")
	require.NotNil(t, s.SoilDetails)
	assert.Equal(t, "Loam", s.SoilDetails.SoilType)
	assert.Equal(t, 1, env.callCount())
}

func TestApplyCoordinate_AutoFillOff(t *testing.T) {
	env := &fakeEnv{}
	r := New(env, fakeGeo{place: punePlace}, Config{}, nil)
	defer r.Close()

	require.NoError(t, r.ApplyCoordinate(pune))
	r.Wait()

	s := r.Snapshot()
	assert.Equal(t, 0, env.callCount())
	assert.NotNil(t, s.Place)
	assert.Empty(t, s.Values[FieldTemperature])
}

func TestApplyCoordinate_Invalid(t *testing.T) {
	r := New(&fakeEnv{}, fakeGeo{}, Config{}, nil)
	defer r.Close()

	assert.Error(t, r.ApplyCoordinate(models.Coordinate{Latitude: 91}))
	assert.Error(t, r.ApplyCoordinate(models.Coordinate{Latitude: 1, Longitude: 1, AccuracyMeters: -3}))
	assert.Nil(t, r.Snapshot().Coordinate)
}

func TestApplyEnvironment_NeverTouchesSoilChemistry(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	r := New(nil, nil, Config{}, nil)
	defer r.Close()

	require.NoError(t, r.SetField(FieldNitrogen, "90"))
	require.NoError(t, r.SetField(FieldPhosphorus, "42"))
	require.NoError(t, r.SetField(FieldPotassium, ""))
	require.NoError(t, r.SetField(FieldPH, "6.5"))

	chemistry := func(s State) map[Field]string {
		out := map[Field]string{}
		for _, f := range SoilChemistryFields {
			out[f] = s.Values[f]
		}
		return out
	}
	before := chemistry(r.Snapshot())

	for i := 0; i < 200; i++ {
		reading := readingWith(rng.Float64()*80-20, rng.Float64()*120, rng.Float64()*4000)
		r.ApplyEnvironment(reading, rng.Intn(2) == 0)
		if diff := cmp.Diff(before, chemistry(r.Snapshot())); diff != "" {
			t.Fatalf("soil chemistry changed (-want +got):\n%s", diff)
		}
	}
}

func TestApplyEnvironment_RespectsToggleArgument(t *testing.T) {
	r := New(nil, nil, Config{}, nil)
	defer r.Close()

	r.ApplyEnvironment(readingWith(30, 55, 120), false)
	assert.Empty(t, r.Snapshot().Values[FieldTemperature])

	r.ApplyEnvironment(readingWith(30, 55, 120), true)
	s := r.Snapshot()
	assert.Equal(t, "30", s.Values[FieldTemperature])
	assert.Equal(t, "120", s.Values[FieldRainfall])
	assert.Empty(t, s.Advisories)
}

func TestToggleClimateAutoFill(t *testing.T) {
	t.Run("off to on with coordinate fetches once", func(t *testing.T) {
		env := &fakeEnv{}
		r := New(env, fakeGeo{place: punePlace}, Config{}, nil)
		defer r.Close()

		require.NoError(t, r.ApplyCoordinate(pune))
		r.Wait()
		require.Equal(t, 0, env.callCount())

		assert.True(t, r.ToggleClimateAutoFill(true))
		r.Wait()

		assert.Equal(t, 1, env.callCount())
		s := r.Snapshot()
		assert.True(t, s.ClimateAutoFill)
		assert.Equal(t, "26.4", s.Values[FieldTemperature])
		assert.Equal(t, "80", s.Values[FieldRainfall])
	})

	t.Run("without coordinate is inert", func(t *testing.T) {
		env := &fakeEnv{}
		r := New(env, nil, Config{}, nil)
		defer r.Close()

		assert.False(t, r.ToggleClimateAutoFill(true))
		r.Wait()
		assert.Equal(t, 0, env.callCount())
		assert.True(t, r.Snapshot().ClimateAutoFill)
	})

	t.Run("turning off drops in-flight readings", func(t *testing.T) {
		env := &fakeEnv{gate: make(chan struct{})}
		r := New(env, nil, Config{ClimateAutoFill: true}, nil)
		defer r.Close()

		require.NoError(t, r.ApplyCoordinate(pune))
		assert.False(t, r.ToggleClimateAutoFill(false))
		close(env.gate)
		r.Wait()

		assert.Empty(t, r.Snapshot().Values[FieldTemperature])
	})
}

func TestUserEditWinsOverInFlightFetch(t *testing.T) {
	env := &fakeEnv{gate: make(chan struct{})}
	r := New(env, nil, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	require.NoError(t, r.ApplyCoordinate(pune))
	require.Eventually(t, func() bool { return env.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.SetField(FieldTemperature, "31"))
	close(env.gate)
	r.Wait()

	s := r.Snapshot()
	assert.Equal(t, "31", s.Values[FieldTemperature], "edited field keeps the user's value")
	assert.Equal(t, "61", s.Values[FieldHumidity], "other climate fields are filled")
	assert.Equal(t, "80", s.Values[FieldRainfall])
}

func TestEditBeforeRequestIsOverwritten(t *testing.T) {
	env := &fakeEnv{}
	r := New(env, nil, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	require.NoError(t, r.SetField(FieldTemperature, "31"))
	require.NoError(t, r.ApplyCoordinate(pune))
	r.Wait()

	assert.Equal(t, "26.4", r.Snapshot().Values[FieldTemperature])
}

func TestStaleCoordinateResultsAreDiscarded(t *testing.T) {
	gate := make(chan struct{})
	env := &fakeEnv{
		reading: func(c models.Coordinate) models.EnvironmentReading {
			if c == pune {
				return readingWith(10, 90, 900)
			}
			return readingWith(35, 20, 60)
		},
	}
	geo := &gatedGeo{gates: map[float64]chan struct{}{pune.Latitude: gate}}
	r := New(env, geo, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	env.mu.Lock()
	env.gate = gate
	env.mu.Unlock()
	require.NoError(t, r.ApplyCoordinate(pune))
	require.Eventually(t, func() bool { return env.callCount() == 1 }, time.Second, time.Millisecond)

	env.mu.Lock()
	env.gate = nil
	env.mu.Unlock()
	require.NoError(t, r.ApplyCoordinate(nashik))
	require.Eventually(t, func() bool { return r.Snapshot().Values[FieldTemperature] == "35" }, time.Second, time.Millisecond)

	close(gate)
	r.Wait()

	s := r.Snapshot()
	assert.Equal(t, nashik, *s.Coordinate)
	assert.Equal(t, "35", s.Values[FieldTemperature])
	assert.Equal(t, "60", s.Values[FieldRainfall])
	require.NotNil(t, s.Place)
	assert.Equal(t, "Nashik", s.Place.City)
}

type gatedGeo struct {
	gates map[float64]chan struct{}
}

func (g *gatedGeo) ReverseLookup(ctx context.Context, c models.Coordinate) (models.PlaceName, error) {
	if gate, ok := g.gates[c.Latitude]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.PlaceName{}, ctx.Err()
		}
		return punePlace, nil
	}
	return models.PlaceName{DisplayName: "Nashik, Maharashtra", City: "Nashik", Region: "Maharashtra"}, nil
}

func TestClearDiscardsInFlight(t *testing.T) {
	env := &fakeEnv{gate: make(chan struct{})}
	r := New(env, nil, Config{ClimateAutoFill: true, ManualEntryVisible: true}, nil)
	defer r.Close()

	require.NoError(t, r.SetField(FieldNitrogen, "120"))
	require.NoError(t, r.ApplyCoordinate(pune))
	r.Clear()
	close(env.gate)
	r.Wait()

	s := r.Snapshot()
	assert.Nil(t, s.Coordinate)
	assert.Empty(t, s.Values[FieldNitrogen])
	assert.Empty(t, s.Values[FieldTemperature])
	assert.True(t, s.ClimateAutoFill, "toggles survive a clear")
	assert.True(t, s.ManualEntryVisible)
}

func TestFailuresBecomeAdvisories(t *testing.T) {
	netErr := &upstream.NetworkError{Kind: upstream.Unreachable, Op: "test"}
	r := New(&fakeEnv{err: netErr}, fakeGeo{err: netErr}, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	require.NoError(t, r.ApplyCoordinate(pune))
	r.Wait()

	s := r.Snapshot()
	assert.ElementsMatch(t, []string{AdvisoryEnvironmentFailed, AdvisoryPlaceFailed}, s.Advisories)
	assert.NotNil(t, s.Coordinate, "form stays usable")
	require.NoError(t, r.SetField(FieldTemperature, "22"))
}

func TestEstimatedReadingAddsAdvisory(t *testing.T) {
	r := New(nil, nil, Config{}, nil)
	defer r.Close()

	reading := readingWith(25, 65, 80)
	reading.Estimated = true
	r.ApplyEnvironment(reading, true)
	assert.Len(t, r.Snapshot().Advisories, 1)
}

func TestRefreshEnvironment(t *testing.T) {
	env := &fakeEnv{}
	r := New(env, nil, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	assert.False(t, r.RefreshEnvironment(), "nothing to refresh without a coordinate")
	require.NoError(t, r.ApplyCoordinate(pune))
	r.Wait()
	assert.True(t, r.RefreshEnvironment())
	r.Wait()
	assert.Equal(t, 2, env.callCount())
}

func TestManualCoordinate(t *testing.T) {
	r := New(nil, nil, Config{}, nil)
	defer r.Close()

	assert.ErrorIs(t, r.ApplyManualCoordinate(18.5, 73.8), ErrManualEntryHidden)

	r.SetManualEntryVisible(true)
	require.NoError(t, r.ApplyManualCoordinate(18.5, 73.8))
	s := r.Snapshot()
	require.NotNil(t, s.Coordinate)
	assert.Equal(t, models.CoordinateSourceManual, s.Coordinate.Source)
	assert.Equal(t, 0.0, s.Coordinate.AccuracyMeters)
}

func TestClose(t *testing.T) {
	env := &fakeEnv{gate: make(chan struct{})}
	r := New(env, nil, Config{ClimateAutoFill: true}, nil)

	require.NoError(t, r.ApplyCoordinate(pune))
	r.Close()

	assert.Empty(t, r.Snapshot().Values[FieldTemperature])
	assert.ErrorIs(t, r.ApplyCoordinate(nashik), ErrClosed)
	assert.False(t, r.ToggleClimateAutoFill(true))
}

func TestWaitWhileApplying(t *testing.T) {
	env := &fakeEnv{}
	r := New(env, fakeGeo{place: punePlace}, Config{ClimateAutoFill: true}, nil)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, r.ApplyCoordinate(pune))
				r.RefreshEnvironment()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Wait()
			}
		}()
	}
	wg.Wait()
	r.Wait()

	s := r.Snapshot()
	assert.Equal(t, "26.4", s.Values[FieldTemperature])
	require.NotNil(t, s.Place)
	assert.Equal(t, "Pune", s.Place.City)
}

func TestApplyCoordinate_LogsDistanceMoved(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(nil, nil, Config{}, zap.New(core))
	defer r.Close()

	require.NoError(t, r.ApplyCoordinate(pune))
	assert.Zero(t, logs.FilterMessage("coordinate superseded").Len(), "first coordinate has nothing to supersede")

	require.NoError(t, r.ApplyCoordinate(nashik))
	entries := logs.FilterMessage("coordinate superseded").All()
	require.Len(t, entries, 1)
	moved, ok := entries[0].ContextMap()["moved_m"].(float64)
	require.True(t, ok)
	assert.InDelta(t, spatial.HaversineDistance(pune.Latitude, pune.Longitude, nashik.Latitude, nashik.Longitude), moved, 0.001)
	assert.Greater(t, moved, 150000.0)
}

func TestSetField(t *testing.T) {
	r := New(nil, nil, Config{}, nil)
	defer r.Close()

	require.NoError(t, r.SetField(FieldBudget, "  25000 "))
	assert.Equal(t, "25000", r.Snapshot().Values[FieldBudget])
	assert.Error(t, r.SetField(Field("zinc"), "3"))

	v1 := r.Snapshot().Version
	require.NoError(t, r.SetField(FieldPH, "6"))
	assert.Greater(t, r.Snapshot().Version, v1)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[Field]string{FieldPH: "x", fieldLocation: "y", FieldNitrogen: "z"}}
	assert.Equal(t, "invalid fields: N, ph, location", err.Error())
	var ve *ValidationError
	assert.True(t, errors.As(error(err), &ve))
}
