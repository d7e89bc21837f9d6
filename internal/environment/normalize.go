package environment

import (
	"fmt"
	"strconv"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// MinimumRainfallMM is the lowest rainfall value written into a form
const MinimumRainfallMM = 50.0

// NormalizeRainfall floors rainfall at MinimumRainfallMM. The advisory is
// non-empty exactly when the value was raised.
func NormalizeRainfall(rainfall float64) (float64, string) {
	if rainfall >= MinimumRainfallMM {
		return rainfall, ""
	}
	return MinimumRainfallMM, fmt.Sprintf(
		"Note: Actual rainfall (%smm) was below recommended minimum. Using %smm.",
		formatMM(rainfall), formatMM(MinimumRainfallMM),
	)
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ToReading converts a combined payload into a normalized reading.
// Soil chemistry values in the payload are deliberately dropped.
func ToReading(p models.CombinedEnvironmentPayload) models.EnvironmentReading {
	d := p.Data
	organicCarbon := 0.0
	switch {
	case d.Soil.OrganicCarbon != nil:
		organicCarbon = *d.Soil.OrganicCarbon
	case d.Soil.CarbonContent != nil:
		organicCarbon = *d.Soil.CarbonContent
	}

	rainfall, advisory := NormalizeRainfall(d.Rainfall)
	return models.EnvironmentReading{
		Snapshot: models.EnvironmentalSnapshot{
			TemperatureC: d.Temperature,
			HumidityPct:  clamp(d.Humidity, 0, 100),
			RainfallMM:   rainfall,
			Soil: models.SoilComposition{
				ClayPct:          d.Soil.ClayContent,
				SandPct:          d.Soil.SandContent,
				SiltPct:          d.Soil.SiltContent,
				OrganicCarbonPct: organicCarbon,
				SoilType:         d.Soil.SoilType,
			},
			Location: models.PlaceName{
				DisplayName: d.Location.DisplayName,
				City:        d.Location.City,
				Region:      d.Location.State,
				Country:     d.Location.Country,
			},
		},
		Advisory:  advisory,
		Estimated: !p.Success,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
