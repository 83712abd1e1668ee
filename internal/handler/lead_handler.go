package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/lead-capture/internal/dto"
	"github.com/octobees/lead-capture/internal/repository"
	"github.com/octobees/lead-capture/internal/service"
)

const leadAcceptedMessage = "Thank you! Your request has been received."

// LeadHandler exposes the public lead form endpoints. Responses keep the flat
// {status, message} / {error} shape the website form expects.
type LeadHandler struct {
	leads          *service.LeadService
	requireCompany bool
}

// NewLeadHandler constructs a LeadHandler. requireCompany applies to POST /submit-lead;
// POST /submit_lead always requires company and network.
func NewLeadHandler(leads *service.LeadService, requireCompany bool) *LeadHandler {
	return &LeadHandler{leads: leads, requireCompany: requireCompany}
}

// Submit handles POST /submit-lead requests.
func (h *LeadHandler) Submit(c echo.Context) error {
	return h.submit(c, h.requireCompany)
}

// SubmitWithCompany handles POST /submit_lead requests.
func (h *LeadHandler) SubmitWithCompany(c echo.Context) error {
	return h.submit(c, true)
}

func (h *LeadHandler) submit(c echo.Context, requireCompany bool) error {
	var req dto.SubmitLeadRequest
	if err := c.Bind(&req); err != nil {
		return FormError(c, http.StatusBadRequest, "invalid payload")
	}

	_, err := h.leads.Submit(c.Request().Context(), service.LeadInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Network: req.Network,
		Message: req.Message,
	}, requireCompany)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			return FormError(c, http.StatusBadRequest, verr.Message)
		case errors.Is(err, repository.ErrBackendFailure):
			return FormError(c, http.StatusServiceUnavailable, "unable to save your request, please try again later")
		default:
			return FormError(c, http.StatusInternalServerError, "unable to save your request")
		}
	}

	return c.JSON(http.StatusOK, dto.SubmitLeadResponse{Status: "success", Message: leadAcceptedMessage})
}

// Count handles GET /leads/count requests.
func (h *LeadHandler) Count(c echo.Context) error {
	count, err := h.leads.Count(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, dto.LeadCountResponse{Status: "error"})
	}

	resp := dto.LeadCountResponse{Status: "success", Count: count}
	if h.leads.Backend() == repository.BackendMemory {
		resp.Source = repository.BackendMemory
	}
	return c.JSON(http.StatusOK, resp)
}
