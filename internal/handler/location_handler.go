package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/pkg/response"
)

// LocationHandler handles HTTP requests for location acquisition
type LocationHandler struct {
	service *service.LocationService
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(service *service.LocationService) *LocationHandler {
	return &LocationHandler{service: service}
}

type acquireRequest struct {
	Origin   string                `json:"origin"`
	Readings []geolocation.Reading `json:"readings" binding:"max=100"`
	FormID   string                `json:"form_id"`
}

// Acquire resolves the best coordinate from a batch of device readings
// POST /api/v1/location/acquire
func (h *LocationHandler) Acquire(c *gin.Context) {
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Origin == "" {
		req.Origin = c.GetHeader("Origin")
	}

	result, err := h.service.Acquire(c.Request.Context(), service.AcquireRequest{
		Origin:   req.Origin,
		Readings: req.Readings,
		FormID:   req.FormID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}
