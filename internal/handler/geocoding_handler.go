package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/pkg/response"
)

// GeocodingHandler handles HTTP requests for place lookups
type GeocodingHandler struct {
	service *service.GeocodingService
}

// NewGeocodingHandler creates a new geocoding handler
func NewGeocodingHandler(service *service.GeocodingService) *GeocodingHandler {
	return &GeocodingHandler{service: service}
}

// Reverse names a coordinate
// GET /api/v1/geocoding/reverse?lat=..&lon=..
func (h *GeocodingHandler) Reverse(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		response.BadRequest(c, "lat and lon must be numbers")
		return
	}

	place, err := h.service.Reverse(c.Request.Context(), lat, lon)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, place)
}

// Search returns places matching q. A newer query from the same client
// supersedes this one, which then answers 409.
// GET /api/v1/geocoding/search?q=..
func (h *GeocodingHandler) Search(c *gin.Context) {
	client := c.GetHeader("X-Client-ID")
	if client == "" {
		client = c.ClientIP()
	}

	results, err := h.service.Search(c.Request.Context(), client, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, results)
}
