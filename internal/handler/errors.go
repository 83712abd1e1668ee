package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/lead-capture/internal/repository"
	"github.com/octobees/lead-capture/internal/service"
)

// leadError maps lead service errors to the shared envelope.
func leadError(c echo.Context, err error, fallback string) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return Error(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, service.ErrInvalidStatus):
		return Error(c, http.StatusBadRequest, "invalid status")
	case errors.Is(err, service.ErrInvalidLeadID):
		return Error(c, http.StatusBadRequest, "lead_id is required")
	case errors.Is(err, repository.ErrLeadNotFound):
		return Error(c, http.StatusNotFound, "lead not found")
	case errors.Is(err, repository.ErrBackendFailure):
		return Error(c, http.StatusServiceUnavailable, fallback)
	default:
		return Error(c, http.StatusInternalServerError, fallback)
	}
}
