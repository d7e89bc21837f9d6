package models

// SoilComposition holds the surface-layer soil texture of a location
type SoilComposition struct {
	ClayPct          float64 `json:"clay_pct"`
	SandPct          float64 `json:"sand_pct"`
	SiltPct          float64 `json:"silt_pct"`
	OrganicCarbonPct float64 `json:"organic_carbon_pct"`
	SoilType         string  `json:"soil_type,omitempty"`
}

// EnvironmentalSnapshot holds climate and soil attributes fetched for a coordinate
type EnvironmentalSnapshot struct {
	TemperatureC float64         `json:"temperature_c"`
	HumidityPct  float64         `json:"humidity_pct"`
	RainfallMM   float64         `json:"rainfall_mm"`
	Soil         SoilComposition `json:"soil_composition"`
	Location     PlaceName       `json:"location"`
}

// EnvironmentReading is a normalized snapshot ready to be merged into a form.
// Advisory is non-empty when a value was adjusted during normalization.
type EnvironmentReading struct {
	Snapshot  EnvironmentalSnapshot `json:"snapshot"`
	Advisory  string                `json:"advisory"`
	Estimated bool                  `json:"estimated"` // true when upstream providers fell back to estimates
}

// CombinedEnvironmentData is the "data" object of the combined soil/weather payload
type CombinedEnvironmentData struct {
	Nitrogen    *float64         `json:"nitrogen,omitempty"`
	Phosphorus  *float64         `json:"phosphorus,omitempty"`
	Potassium   *float64         `json:"potassium,omitempty"`
	PH          *float64         `json:"ph,omitempty"`
	Rainfall    float64          `json:"rainfall"`
	Temperature float64          `json:"temperature"`
	Humidity    float64          `json:"humidity"`
	Location    CombinedLocation `json:"location_info"`
	Soil        CombinedSoil     `json:"soil_details"`
}

// CombinedLocation is the location_info block of the combined payload
type CombinedLocation struct {
	DisplayName string `json:"display_name"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country,omitempty"`
}

// CombinedSoil is the soil_details block of the combined payload.
// Older producers send carbon_content instead of organic_carbon.
type CombinedSoil struct {
	SoilType      string   `json:"soil_type"`
	ClayContent   float64  `json:"clay_content"`
	SandContent   float64  `json:"sand_content"`
	SiltContent   float64  `json:"silt_content"`
	OrganicCarbon *float64 `json:"organic_carbon,omitempty"`
	CarbonContent *float64 `json:"carbon_content,omitempty"`
}

// CombinedEnvironmentPayload is the full combined soil/weather response
type CombinedEnvironmentPayload struct {
	Success bool                    `json:"success"`
	Data    CombinedEnvironmentData `json:"data"`
	Message string                  `json:"message,omitempty"`
}
