package environment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

func TestClient_FetchEnvironment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/soil-weather-data/18.520400/73.856700", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{
			"nitrogen":80,"phosphorus":45,"potassium":180,"ph":6.8,
			"rainfall":80,"temperature":26.4,"humidity":62,
			"location_info":{"display_name":"Pune, Maharashtra","city":"Pune","state":"Maharashtra"},
			"soil_details":{"soil_type":"Loam","clay_content":25,"sand_content":45,"silt_content":30,"organic_carbon":2.5}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/soil-weather-data/", upstream.NewClient(time.Second, "", nil))
	r, err := c.FetchEnvironment(context.Background(), models.Coordinate{Latitude: 18.5204, Longitude: 73.8567})
	require.NoError(t, err)

	assert.Equal(t, 80.0, r.Snapshot.RainfallMM)
	assert.Empty(t, r.Advisory)
	assert.False(t, r.Estimated)
	assert.Equal(t, 26.4, r.Snapshot.TemperatureC)
	assert.Equal(t, 62.0, r.Snapshot.HumidityPct)
	assert.Equal(t, "Pune", r.Snapshot.Location.City)
	assert.Equal(t, 2.5, r.Snapshot.Soil.OrganicCarbonPct)
}

func TestClient_FetchEnvironmentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, upstream.NewClient(time.Second, "", nil))
	_, err := c.FetchEnvironment(context.Background(), models.Coordinate{Latitude: 1, Longitude: 1})
	assert.True(t, upstream.IsKind(err, upstream.BadResponse))
}
