package spatial

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
)

// DefaultCellLevel is the s2 level used for location cache keys (~1.2 km cells)
const DefaultCellLevel = 13

// ErrInvalidCoordinate wraps every range violation reported by ValidateCoordinate
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ValidateCoordinate checks latitude and longitude ranges
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 || lat != lat {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 || lon != lon {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}

// CellToken returns the s2 cell token containing the point at the given level.
// Nearby coordinates share a token, which makes it usable as a cache key.
func CellToken(lat, lon float64, level int) string {
	if level < 0 || level > s2.MaxLevel {
		level = DefaultCellLevel
	}
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level)
	return id.ToToken()
}
