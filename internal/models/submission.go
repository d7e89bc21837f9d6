package models

import "time"

// SoilParameters are the agronomic inputs of a recommendation request
type SoilParameters struct {
	N           float64 `json:"N"`
	P           float64 `json:"P"`
	K           float64 `json:"K"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`
}

// SubmissionLocation is the location block of a recommendation request
type SubmissionLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Submission represents a validated form handed to the recommendation service
type Submission struct {
	ID               string             `json:"id" db:"id"`
	FormID           string             `json:"form_id" db:"form_id"`
	SoilParameters   SoilParameters     `json:"soil_parameters"`
	Location         SubmissionLocation `json:"location"`
	BudgetPerHectare float64            `json:"budget_per_hectare" db:"budget_per_hectare"`
	FarmSizeHectares float64            `json:"farm_size_hectares" db:"farm_size_hectares"`
	Published        bool               `json:"published" db:"published"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
}
