package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/lead-capture/internal/dto"
	"github.com/octobees/lead-capture/internal/service"
)

// AdminHandler exposes the session-protected dashboard, export and lead management endpoints.
type AdminHandler struct {
	leads     *service.LeadService
	dashboard *service.DashboardService
	now       func() time.Time
}

// NewAdminHandler wires a handler backed by the lead and dashboard services.
func NewAdminHandler(leads *service.LeadService, dashboard *service.DashboardService) *AdminHandler {
	return &AdminHandler{leads: leads, dashboard: dashboard, now: time.Now}
}

// Dashboard handles GET /admin requests.
func (h *AdminHandler) Dashboard(c echo.Context) error {
	params := listParams(c)

	result, err := h.dashboard.Query(c.Request().Context(), dashboardQuery(params))
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			return Error(c, http.StatusBadRequest, "invalid status filter")
		}
		return Error(c, http.StatusServiceUnavailable, "failed to load dashboard")
	}

	return Success(c, http.StatusOK, "dashboard loaded", result)
}

// ExportLeads handles GET /admin/export-leads requests.
func (h *AdminHandler) ExportLeads(c echo.Context) error {
	params := listParams(c)
	format := strings.ToLower(params.Format)
	if format == "" {
		format = service.FormatCSV
	}
	if format != service.FormatCSV && format != service.FormatJSON {
		return Error(c, http.StatusBadRequest, "format must be csv or json")
	}

	leads, err := h.dashboard.ExportLeads(c.Request().Context(), dashboardQuery(params))
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			return Error(c, http.StatusBadRequest, "invalid status filter")
		}
		return Error(c, http.StatusServiceUnavailable, "failed to export leads")
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case service.FormatJSON:
		err = service.WriteLeadsJSON(&buf, leads)
		contentType = echo.MIMEApplicationJSON
	default:
		err = service.WriteLeadsCSV(&buf, leads, h.dashboard.Location())
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to encode export")
	}

	filename := fmt.Sprintf("leads_export_%s.%s", h.now().In(h.dashboard.Location()).Format("20060102_150405"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

// UpdateLeadStatus handles POST /admin/update-lead-status requests.
func (h *AdminHandler) UpdateLeadStatus(c echo.Context) error {
	var req dto.UpdateLeadStatusRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	lead, err := h.leads.UpdateStatus(c.Request().Context(), req.LeadID, req.Status)
	if err != nil {
		return leadError(c, err, "failed to update lead status")
	}

	return Success(c, http.StatusOK, "lead status updated", lead)
}

// UpdateLead handles POST /admin/update-lead requests.
func (h *AdminHandler) UpdateLead(c echo.Context) error {
	var req dto.UpdateLeadRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	lead, err := h.leads.Update(c.Request().Context(), req.LeadID, service.LeadPatch{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Network: req.Network,
		Message: req.Message,
		Status:  req.Status,
	})
	if err != nil {
		return leadError(c, err, "failed to update lead")
	}

	return Success(c, http.StatusOK, "lead updated", lead)
}

// GetLead handles GET /admin/leads/:id requests.
func (h *AdminHandler) GetLead(c echo.Context) error {
	lead, err := h.leads.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return leadError(c, err, "failed to load lead")
	}
	return Success(c, http.StatusOK, "lead retrieved", lead)
}

// DeleteLead handles DELETE /admin/leads/:id and POST /admin/delete-lead requests.
func (h *AdminHandler) DeleteLead(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		var req dto.DeleteLeadRequest
		if err := c.Bind(&req); err != nil {
			return Error(c, http.StatusBadRequest, "invalid payload")
		}
		id = req.LeadID
	}

	if err := h.leads.Delete(c.Request().Context(), id); err != nil {
		return leadError(c, err, "failed to delete lead")
	}
	return Success(c, http.StatusOK, "lead deleted", nil)
}

// ImportLeads handles POST /admin/import-leads requests.
func (h *AdminHandler) ImportLeads(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return Error(c, http.StatusBadRequest, "missing csv file")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return Error(c, http.StatusBadRequest, "unable to open file")
	}
	defer file.Close()

	summary, err := h.leads.ImportCSV(c.Request().Context(), file)
	if err != nil {
		var validationErr service.CSVValidationError
		if errors.As(err, &validationErr) {
			return Error(c, http.StatusBadRequest, validationErr.Error())
		}
		return Error(c, http.StatusInternalServerError, "failed to process csv")
	}

	return Success(c, http.StatusOK, "leads CSV processed", summary)
}

func listParams(c echo.Context) dto.LeadListParams {
	return dto.LeadListParams{
		Q:        strings.TrimSpace(c.QueryParam("q")),
		Status:   strings.TrimSpace(c.QueryParam("status")),
		SortBy:   strings.TrimSpace(c.QueryParam("sort_by")),
		SortDir:  strings.TrimSpace(c.QueryParam("sort_dir")),
		Page:     parseIntDefault(c.QueryParam("page"), 1),
		PageSize: parseIntDefault(c.QueryParam("page_size"), 20),
		Format:   strings.TrimSpace(c.QueryParam("format")),
	}
}

func dashboardQuery(p dto.LeadListParams) service.DashboardQuery {
	return service.DashboardQuery{
		Query:    p.Q,
		Status:   p.Status,
		SortBy:   p.SortBy,
		SortDir:  p.SortDir,
		Page:     p.Page,
		PageSize: p.PageSize,
	}
}

func parseIntDefault(input string, fallback int) int {
	if input == "" {
		return fallback
	}
	if value, err := strconv.Atoi(input); err == nil {
		return value
	}
	return fallback
}
