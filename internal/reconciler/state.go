package reconciler

import (
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// maxAdvisories bounds the advisory history kept in a form
const maxAdvisories = 10

// State is the form aggregate. Values hold raw text as typed or auto-filled.
type State struct {
	Values             map[Field]string        `json:"values"`
	Coordinate         *models.Coordinate      `json:"coordinate,omitempty"`
	Place              *models.PlaceName       `json:"place,omitempty"`
	SoilDetails        *models.SoilComposition `json:"soil_details,omitempty"`
	ClimateAutoFill    bool                    `json:"climate_auto_fill"`
	ManualEntryVisible bool                    `json:"manual_entry_visible"`
	Advisories         []string                `json:"advisories"`
	Version            uint64                  `json:"version"`
}

// The functions below are pure transitions: they never modify their input.

func newState(climateAutoFill, manualEntryVisible bool) State {
	values := make(map[Field]string, len(AllFields))
	for _, f := range AllFields {
		values[f] = ""
	}
	return State{
		Values:             values,
		ClimateAutoFill:    climateAutoFill,
		ManualEntryVisible: manualEntryVisible,
		Advisories:         []string{},
	}
}

func (s State) clone() State {
	out := s
	out.Values = make(map[Field]string, len(s.Values))
	for k, v := range s.Values {
		out.Values[k] = v
	}
	if s.Coordinate != nil {
		c := *s.Coordinate
		out.Coordinate = &c
	}
	if s.Place != nil {
		p := *s.Place
		out.Place = &p
	}
	if s.SoilDetails != nil {
		d := *s.SoilDetails
		out.SoilDetails = &d
	}
	out.Advisories = append([]string{}, s.Advisories...)
	return out
}

func bump(s State) State {
	s.Version++
	return s
}

func withField(s State, f Field, value string) State {
	out := s.clone()
	out.Values[f] = value
	return bump(out)
}

// withCoordinate replaces the coordinate; the previous place no longer describes it
func withCoordinate(s State, c models.Coordinate) State {
	out := s.clone()
	out.Coordinate = &c
	out.Place = nil
	return bump(out)
}

func withPlace(s State, p models.PlaceName) State {
	out := s.clone()
	out.Place = &p
	return bump(out)
}

// withEnvironment writes the climate slice of r. skip reports fields the
// user owns for this reading; soil chemistry is never touched.
func withEnvironment(s State, r models.EnvironmentReading, skip func(Field) bool) State {
	out := s.clone()
	values := map[Field]float64{
		FieldTemperature: r.Snapshot.TemperatureC,
		FieldHumidity:    r.Snapshot.HumidityPct,
		FieldRainfall:    r.Snapshot.RainfallMM,
	}
	for _, f := range ClimateFields {
		if skip != nil && skip(f) {
			continue
		}
		out.Values[f] = formatNumber(values[f])
	}
	soil := r.Snapshot.Soil
	out.SoilDetails = &soil

	if r.Advisory != "" && (skip == nil || !skip(FieldRainfall)) {
		out = withAdvisory(out, r.Advisory)
	}
	if r.Estimated {
		out = withAdvisory(out, "Some environmental data could not be fetched. Estimated values were used.")
	}
	return bump(out)
}

func withAdvisory(s State, msg string) State {
	out := s.clone()
	if n := len(out.Advisories); n > 0 && out.Advisories[n-1] == msg {
		return out
	}
	out.Advisories = append(out.Advisories, msg)
	if len(out.Advisories) > maxAdvisories {
		out.Advisories = out.Advisories[len(out.Advisories)-maxAdvisories:]
	}
	return bump(out)
}

func withClimateAutoFill(s State, enabled bool) State {
	out := s.clone()
	out.ClimateAutoFill = enabled
	return bump(out)
}

func withManualEntryVisible(s State, visible bool) State {
	out := s.clone()
	out.ManualEntryVisible = visible
	return bump(out)
}

// cleared keeps the configuration toggles and discards everything else
func cleared(s State) State {
	out := newState(s.ClimateAutoFill, s.ManualEntryVisible)
	out.Version = s.Version
	return bump(out)
}
