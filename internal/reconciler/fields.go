package reconciler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names a form input
type Field string

// Form fields
const (
	FieldNitrogen    Field = "N"
	FieldPhosphorus  Field = "P"
	FieldPotassium   Field = "K"
	FieldPH          Field = "ph"
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldRainfall    Field = "rainfall"
	FieldBudget      Field = "budget"
	FieldFarmSize    Field = "farm_size"
)

// AllFields lists every form field in display order
var AllFields = []Field{
	FieldNitrogen, FieldPhosphorus, FieldPotassium, FieldPH,
	FieldTemperature, FieldHumidity, FieldRainfall,
	FieldBudget, FieldFarmSize,
}

// ClimateFields may be auto-filled from an environment reading
var ClimateFields = []Field{FieldTemperature, FieldHumidity, FieldRainfall}

// SoilChemistryFields are only ever written by the user
var SoilChemistryFields = []Field{FieldNitrogen, FieldPhosphorus, FieldPotassium, FieldPH}

// ParseField validates a field name
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", name)
}

type rangeRule struct {
	label string
	min   float64
	max   float64
	unit  string
}

// validationOrder is the set of range-checked fields
var validationOrder = []Field{
	FieldNitrogen, FieldPhosphorus, FieldPotassium, FieldPH,
	FieldTemperature, FieldHumidity, FieldRainfall,
}

var validationRules = map[Field]rangeRule{
	FieldNitrogen:    {label: "Nitrogen (N)", min: 0, max: 200},
	FieldPhosphorus:  {label: "Phosphorus (P)", min: 0, max: 150},
	FieldPotassium:   {label: "Potassium (K)", min: 0, max: 200},
	FieldPH:          {label: "pH", min: 3, max: 12},
	FieldTemperature: {label: "Temperature", min: -10, max: 50, unit: "°C"},
	FieldHumidity:    {label: "Humidity", min: 10, max: 100, unit: "%"},
	FieldRainfall:    {label: "Rainfall", min: 0, max: 3000, unit: "mm"},
}

// check returns an error message for raw, or "" when it is valid
func (r rangeRule) check(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return r.label + " is required"
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return r.label + " must be a number"
	}
	if v < r.min || v > r.max {
		return fmt.Sprintf("%s must be between %s and %s%s", r.label, formatNumber(r.min), formatNumber(r.max), r.unit)
	}
	return ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
