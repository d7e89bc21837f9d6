package environment

import (
	"context"
	"strconv"
	"strings"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

// Client fetches the combined soil/weather payload from a remote endpoint
type Client struct {
	endpoint string
	http     *upstream.Client
}

// NewClient creates a client for an endpoint such as
// "https://advisory.example.org/api/v1/soil-weather-data"
func NewClient(endpoint string, http *upstream.Client) *Client {
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), http: http}
}

// FetchEnvironment requests GET <endpoint>/<lat>/<lon>. No retries.
func (c *Client) FetchEnvironment(ctx context.Context, coord models.Coordinate) (models.EnvironmentReading, error) {
	if err := spatial.ValidateCoordinate(coord.Latitude, coord.Longitude); err != nil {
		return models.EnvironmentReading{}, err
	}

	u := c.endpoint + "/" +
		strconv.FormatFloat(coord.Latitude, 'f', 6, 64) + "/" +
		strconv.FormatFloat(coord.Longitude, 'f', 6, 64)

	var payload models.CombinedEnvironmentPayload
	if err := c.http.GetJSON(ctx, "environment fetch", u, &payload); err != nil {
		return models.EnvironmentReading{}, err
	}
	return ToReading(payload), nil
}
