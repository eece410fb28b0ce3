package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/InverskProperty/propsk-sub012/internal/errors"
	"github.com/InverskProperty/propsk-sub012/internal/middleware"
	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// pathID parses a positive integer path parameter. On failure the response
// has already been written.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{
			name: c.Param(name),
		})
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{
			name: c.Query(name),
		})
		return 0, false
	}
	return id, true
}

// bindJSON binds and validates the request body.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return false
	}
	return true
}

// requireActor returns the acting user for mutations.
func requireActor(c *gin.Context) (int64, bool) {
	actor := middleware.GetActorID(c)
	if actor <= 0 {
		apierrors.BadRequest(c, middleware.ActorIDHeader+" header is required", nil)
		return 0, false
	}
	return actor, true
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrPortfolioNotFound),
		errors.Is(err, services.ErrBlockNotFound),
		errors.Is(err, services.ErrPropertyNotFound),
		errors.Is(err, services.ErrAssignmentNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrValidation):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrStateConflict):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrIntegrationDisabled):
		apierrors.ServiceUnavailable(c, "Tag integration is disabled", err)
	case errors.Is(err, services.ErrIntegration):
		apierrors.BadGateway(c, "Tag platform request failed", err)
	default:
		apierrors.InternalServerError(c, fallback, err)
	}
}
