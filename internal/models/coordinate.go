package models

import "time"

// Coordinate sources
const (
	CoordinateSourceGPS    = "gps"
	CoordinateSourceManual = "manual"
)

// Coordinate represents a captured farm position. It is never mutated once
// captured; a new acquisition replaces it.
type Coordinate struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`
	Source         string    `json:"source,omitempty"` // gps, manual
}

// IsZero reports whether no coordinate has been captured
func (c Coordinate) IsZero() bool {
	return c.CapturedAt.IsZero() && c.Latitude == 0 && c.Longitude == 0
}

// PlaceName is the human-readable description of a coordinate
type PlaceName struct {
	DisplayName string `json:"display_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country,omitempty"`
}

// SearchResult is one entry of a forward place search
type SearchResult struct {
	Place      PlaceName  `json:"place"`
	Coordinate Coordinate `json:"coordinate"`
}
