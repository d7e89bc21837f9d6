package geocoding

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

// MinQueryLength is the shortest query sent to the search service
const MinQueryLength = 3

type nominatimAddress struct {
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	County        string `json:"county"`
	State         string `json:"state"`
	StateDistrict string `json:"state_district"`
	Country       string `json:"country"`
}

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

// Client talks to a Nominatim-compatible place search service
type Client struct {
	baseURL string
	limit   int
	http    *upstream.Client
	logger  *zap.Logger
}

// NewClient creates a new geocoding client
func NewClient(baseURL string, limit int, http *upstream.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		http:    http,
		logger:  logger,
	}
}

// ReverseLookup converts a coordinate into a place name
func (c *Client) ReverseLookup(ctx context.Context, coord models.Coordinate) (models.PlaceName, error) {
	if err := spatial.ValidateCoordinate(coord.Latitude, coord.Longitude); err != nil {
		return models.PlaceName{}, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', 6, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	var place nominatimPlace
	if err := c.http.GetJSON(ctx, "reverse geocode", c.baseURL+"/reverse?"+q.Encode(), &place); err != nil {
		return models.PlaceName{}, err
	}
	if place.DisplayName == "" {
		return models.PlaceName{}, &upstream.NetworkError{
			Kind: upstream.BadResponse,
			Op:   "reverse geocode",
			Err:  fmt.Errorf("no place found at %.4f, %.4f", coord.Latitude, coord.Longitude),
		}
	}
	return toPlaceName(place), nil
}

// SearchByText returns places matching query in the service's order.
// Queries shorter than MinQueryLength return nothing without a request.
func (c *Client) SearchByText(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []models.SearchResult{}, nil
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("addressdetails", "1")

	var places []nominatimPlace
	if err := c.http.GetJSON(ctx, "place search", c.baseURL+"/search?"+q.Encode(), &places); err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]models.SearchResult, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
		if errLat != nil || errLon != nil || spatial.ValidateCoordinate(lat, lon) != nil {
			c.logger.Debug("skipping search result with bad coordinates",
				zap.String("lat", p.Lat), zap.String("lon", p.Lon))
			continue
		}
		results = append(results, models.SearchResult{
			Place: toPlaceName(p),
			Coordinate: models.Coordinate{
				Latitude:   lat,
				Longitude:  lon,
				CapturedAt: now,
				Source:     models.CoordinateSourceManual,
			},
		})
	}
	return results, nil
}

func toPlaceName(p nominatimPlace) models.PlaceName {
	city := firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village, p.Address.County)
	return models.PlaceName{
		DisplayName: p.DisplayName,
		City:        city,
		Region:      firstNonEmpty(p.Address.State, p.Address.StateDistrict),
		Country:     p.Address.Country,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
