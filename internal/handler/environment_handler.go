package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/pkg/response"
)

// EnvironmentHandler handles HTTP requests for soil and weather data
type EnvironmentHandler struct {
	service *service.EnvironmentService
}

// NewEnvironmentHandler creates a new environment handler
func NewEnvironmentHandler(service *service.EnvironmentService) *EnvironmentHandler {
	return &EnvironmentHandler{service: service}
}

func pathCoordinate(c *gin.Context) (float64, float64, bool) {
	lat, errLat := strconv.ParseFloat(c.Param("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Param("lon"), 64)
	if errLat != nil || errLon != nil {
		response.BadRequest(c, "lat and lon must be numbers")
		return 0, 0, false
	}
	return lat, lon, true
}

// Combined returns the combined soil/weather payload. The payload is written
// bare, without the response envelope, so remote fetchers can decode it.
// GET /api/v1/soil-weather-data/:lat/:lon
func (h *EnvironmentHandler) Combined(c *gin.Context) {
	lat, lon, ok := pathCoordinate(c)
	if !ok {
		return
	}

	payload, err := h.service.Combined(c.Request.Context(), lat, lon)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// Reading returns the normalized reading a form would merge
// GET /api/v1/environment/:lat/:lon
func (h *EnvironmentHandler) Reading(c *gin.Context) {
	lat, lon, ok := pathCoordinate(c)
	if !ok {
		return
	}

	reading, err := h.service.Reading(c.Request.Context(), lat, lon)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, reading)
}
