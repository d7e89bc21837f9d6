package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/farm-advisory-backend-go/internal/geocoding"
	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
	"github.com/jengzang/farm-advisory-backend-go/internal/repository"
	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/internal/spatial"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
	"github.com/jengzang/farm-advisory-backend-go/pkg/response"
)

// writeError translates service errors into response codes
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		locErr *geolocation.LocationError
		netErr *upstream.NetworkError
		valErr *reconciler.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		response.ValidationFailed(c, valErr.Fields)
	case errors.As(err, &locErr):
		response.ErrorWithData(c, locationStatus(locErr.Kind), locErr.UserMessage(), gin.H{"kind": locErr.Kind})
	case errors.As(err, &netErr):
		status := http.StatusBadGateway
		if netErr.Kind == upstream.Timeout {
			status = http.StatusGatewayTimeout
		}
		response.ErrorWithData(c, status, netErr.Error(), gin.H{"kind": netErr.Kind})
	case errors.Is(err, service.ErrFormNotFound), errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, spatial.ErrInvalidCoordinate):
		response.BadRequest(c, err.Error())
	case errors.Is(err, reconciler.ErrManualEntryHidden), errors.Is(err, reconciler.ErrClosed),
		errors.Is(err, geocoding.ErrSuperseded):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoAggregator):
		response.Error(c, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
		c.Status(499)
	default:
		response.InternalError(c, err.Error())
	}
}

func locationStatus(kind geolocation.ErrorKind) int {
	switch kind {
	case geolocation.Unsupported, geolocation.InsecureContext:
		return http.StatusBadRequest
	case geolocation.PermissionDenied:
		return http.StatusForbidden
	case geolocation.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}
