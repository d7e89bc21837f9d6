package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	// Pune to Mumbai, roughly 120 km
	d := HaversineDistance(18.5204, 73.8567, 19.0760, 72.8777)
	assert.InDelta(t, 120000, d, 5000)
	assert.Equal(t, 0.0, HaversineDistance(10, 10, 10, 10))
}

func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"bounds", -90, 180, false},
		{"lat too high", 90.1, 0, true},
		{"lon too low", 0, -180.5, true},
		{"nan", math.NaN(), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinate(tt.lat, tt.lon)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCoordinate)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCellToken(t *testing.T) {
	a := CellToken(18.52040, 73.85670, DefaultCellLevel)
	b := CellToken(18.52045, 73.85672, DefaultCellLevel)
	c := CellToken(28.6139, 77.2090, DefaultCellLevel)

	assert.NotEmpty(t, a)
	assert.Equal(t, a, b, "points a few meters apart share a cell")
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, CellToken(18.52040, 73.85670, -1), "invalid level falls back to default")
}
