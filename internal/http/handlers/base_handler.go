// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the UUIDs generated for rides and reviews.
func isValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// caller is the authenticated user as a ride actor.
func caller(c *gin.Context) ride.Actor {
	return ride.Actor{ID: types.ID(middleware.CallerUID(c)), Email: middleware.CallerEmail(c)}
}

// rideIDParam writes a 400 and returns false when :id is not a ride id.
func rideIDParam(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return "", false
	}
	return types.ID(id), true
}

// writeServiceError maps domain errors to status codes. Order matters:
// wrapped errors are checked before their parents.
func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, driver.ErrNotFound), errors.Is(err, route.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, route.ErrInvalidStops),
		errors.Is(err, location.ErrInvalidPosition), errors.Is(err, pricing.ErrInvalidAmount):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrAccessDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrInvalidState), errors.Is(err, ride.ErrConflict), errors.Is(err, driver.ErrDailyLimitReached):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, route.ErrNoRouteFound):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ride.ErrNoSuitableDrivers), errors.Is(err, route.ErrUnavailable):
		c.Header("Retry-After", "30")
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pricing.ErrNoPriceList):
		writeError(c, http.StatusInternalServerError, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
