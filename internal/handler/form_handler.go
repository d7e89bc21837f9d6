package handler

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/pkg/response"
)

// FormHandler handles HTTP requests for form sessions
type FormHandler struct {
	forms       *service.FormService
	submissions *service.SubmissionService
}

// NewFormHandler creates a new form handler
func NewFormHandler(forms *service.FormService, submissions *service.SubmissionService) *FormHandler {
	return &FormHandler{forms: forms, submissions: submissions}
}

type formResponse struct {
	ID    string           `json:"id"`
	State reconciler.State `json:"state"`
}

type fieldRequest struct {
	Value string `json:"value"`
}

type coordinateRequest struct {
	Latitude   *float64  `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude  *float64  `json:"longitude" binding:"required,min=-180,max=180"`
	Accuracy   float64   `json:"accuracy" binding:"min=0"`
	CapturedAt time.Time `json:"captured_at"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// respond writes the form state. With ?wait=true it first waits for the
// lookups the request started.
func (h *FormHandler) respond(c *gin.Context, id string, state reconciler.State, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("wait") == "true" {
		if state, err = h.forms.Settle(id); err != nil {
			writeError(c, err)
			return
		}
	}
	response.Success(c, formResponse{ID: id, State: state})
}

// Create opens a new form
// POST /api/v1/forms
func (h *FormHandler) Create(c *gin.Context) {
	var opts service.FormOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}

	id, state := h.forms.Create(opts)
	response.Created(c, formResponse{ID: id, State: state})
}

// Get returns a form
// GET /api/v1/forms/:id
func (h *FormHandler) Get(c *gin.Context) {
	id := c.Param("id")
	state, err := h.forms.Get(id)
	h.respond(c, id, state, err)
}

// Delete closes a form
// DELETE /api/v1/forms/:id
func (h *FormHandler) Delete(c *gin.Context) {
	if err := h.forms.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// SetField records a user edit
// PUT /api/v1/forms/:id/fields/:field
func (h *FormHandler) SetField(c *gin.Context) {
	field, err := reconciler.ParseField(c.Param("field"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	state, err := h.forms.SetField(id, field, req.Value)
	h.respond(c, id, state, err)
}

// SetCoordinate applies an acquired coordinate
// POST /api/v1/forms/:id/coordinate
func (h *FormHandler) SetCoordinate(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	state, err := h.forms.ApplyCoordinate(id, models.Coordinate{
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		AccuracyMeters: req.Accuracy,
		CapturedAt:     req.CapturedAt,
		Source:         models.CoordinateSourceGPS,
	})
	h.respond(c, id, state, err)
}

// SetManualCoordinate applies a typed-in coordinate
// POST /api/v1/forms/:id/manual-coordinate
func (h *FormHandler) SetManualCoordinate(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	state, err := h.forms.ApplyManualCoordinate(id, *req.Latitude, *req.Longitude)
	h.respond(c, id, state, err)
}

// SetPlace applies a place description, e.g. a chosen search result
// POST /api/v1/forms/:id/place
func (h *FormHandler) SetPlace(c *gin.Context) {
	var place models.PlaceName
	if err := c.ShouldBindJSON(&place); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if place.DisplayName == "" {
		response.BadRequest(c, "display_name is required")
		return
	}

	id := c.Param("id")
	state, err := h.forms.ApplyPlace(id, place)
	h.respond(c, id, state, err)
}

// SetClimateAutoFill toggles climate auto-fill
// POST /api/v1/forms/:id/climate-autofill
func (h *FormHandler) SetClimateAutoFill(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	state, _, err := h.forms.SetClimateAutoFill(id, *req.Enabled)
	h.respond(c, id, state, err)
}

// SetManualEntry shows or hides manual location entry
// POST /api/v1/forms/:id/manual-entry
func (h *FormHandler) SetManualEntry(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	state, err := h.forms.SetManualEntryVisible(id, *req.Enabled)
	h.respond(c, id, state, err)
}

// Refresh re-fetches soil and weather data for the current location
// POST /api/v1/forms/:id/refresh
func (h *FormHandler) Refresh(c *gin.Context) {
	id := c.Param("id")
	state, err := h.forms.Refresh(id)
	h.respond(c, id, state, err)
}

// Clear resets a form
// POST /api/v1/forms/:id/clear
func (h *FormHandler) Clear(c *gin.Context) {
	id := c.Param("id")
	state, err := h.forms.Clear(id)
	h.respond(c, id, state, err)
}

// Validate range-checks a form
// GET /api/v1/forms/:id/validate
func (h *FormHandler) Validate(c *gin.Context) {
	errs, err := h.forms.Validate(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"valid": len(errs) == 0, "errors": errs})
}

// Submit validates, stores and publishes a form
// POST /api/v1/forms/:id/submit
func (h *FormHandler) Submit(c *gin.Context) {
	sub, err := h.submissions.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, sub)
}

// ListSubmissions lists the stored submissions of a form
// GET /api/v1/forms/:id/submissions
func (h *FormHandler) ListSubmissions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}

	subs, err := h.submissions.ListByForm(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	response.Success(c, subs)
}

// GetSubmission retrieves a stored submission
// GET /api/v1/submissions/:id
func (h *FormHandler) GetSubmission(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sub)
}
