package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
	"github.com/octobees/lead-capture/internal/service"
)

func newAdminHandler(t *testing.T, repo repository.LeadRepository) *AdminHandler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dashboard := service.NewDashboardService(repo,
		service.WithLogger(logger),
		service.WithClock(func() time.Time { return testNow }),
		service.WithLocation(time.UTC),
	)
	h := NewAdminHandler(newLeadService(repo), dashboard)
	h.now = func() time.Time { return testNow }
	return h
}

func seedLeads(t *testing.T, repo repository.LeadRepository) []string {
	t.Helper()
	leads := []entity.Lead{
		{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+14155551234", Company: "Analytical", Status: entity.LeadStatusNew, Timestamp: testNow.Add(-time.Hour)},
		{Name: "Grace Hopper", Email: "grace@example.com", Phone: "+14155550000", Company: "Navy", Status: entity.LeadStatusContacted, Timestamp: testNow.AddDate(0, 0, -2)},
		{Name: "Alan Turing", Email: "alan@example.com", Phone: "+442079460000", Company: "Bletchley", Status: entity.LeadStatusNew, Timestamp: testNow.AddDate(0, 0, -40)},
	}
	ids := make([]string, 0, len(leads))
	for i := range leads {
		id, err := repo.Insert(context.Background(), &leads[i])
		if err != nil {
			t.Fatalf("seed insert: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) APIResponse {
	t.Helper()
	var raw struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return APIResponse{Status: raw.Status, Message: raw.Message}
}

func TestAdminHandler_Dashboard(t *testing.T) {
	e := echo.New()
	repo := newMemoryLeadRepo(t)
	seedLeads(t, repo)
	h := newAdminHandler(t, repo)

	tests := map[string]struct {
		query          string
		expectedStatus int
		expectedNames  []string
		expectedTotal  int64
		expectedFilter int64
	}{
		"defaults sort newest first": {
			query:          "",
			expectedStatus: http.StatusOK,
			expectedNames:  []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"},
			expectedTotal:  3,
			expectedFilter: 3,
		},
		"status filter": {
			query:          "status=new&sort_by=name&sort_dir=asc",
			expectedStatus: http.StatusOK,
			expectedNames:  []string{"Ada Lovelace", "Alan Turing"},
			expectedTotal:  3,
			expectedFilter: 2,
		},
		"search is case insensitive": {
			query:          "q=NAVY",
			expectedStatus: http.StatusOK,
			expectedNames:  []string{"Grace Hopper"},
			expectedTotal:  3,
			expectedFilter: 1,
		},
		"pagination": {
			query:          "page=2&page_size=2",
			expectedStatus: http.StatusOK,
			expectedNames:  []string{"Alan Turing"},
			expectedTotal:  3,
			expectedFilter: 3,
		},
		"invalid status": {
			query:          "status=archived",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin?"+tt.query, nil)
			rec := httptest.NewRecorder()
			if err := h.Dashboard(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var dashboard service.Dashboard
			decodeEnvelope(t, rec, &dashboard)
			if dashboard.Total != tt.expectedTotal || dashboard.Filtered != tt.expectedFilter {
				t.Fatalf("unexpected totals: total=%d filtered=%d", dashboard.Total, dashboard.Filtered)
			}
			if len(dashboard.Leads) != len(tt.expectedNames) {
				t.Fatalf("expected %d leads, got %d", len(tt.expectedNames), len(dashboard.Leads))
			}
			for i, name := range tt.expectedNames {
				if dashboard.Leads[i].Name != name {
					t.Fatalf("position %d: expected %s, got %s", i, name, dashboard.Leads[i].Name)
				}
			}
			if dashboard.Today != 1 || len(dashboard.Trend) != 30 || dashboard.Backend != repository.BackendMemory {
				t.Fatalf("unexpected aggregates: today=%d trend=%d backend=%s", dashboard.Today, len(dashboard.Trend), dashboard.Backend)
			}
		})
	}
}

func TestAdminHandler_ExportLeads(t *testing.T) {
	e := echo.New()
	repo := newMemoryLeadRepo(t)
	seedLeads(t, repo)
	h := newAdminHandler(t, repo)

	t.Run("csv", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/export-leads?format=csv&status=new", nil)
		rec := httptest.NewRecorder()
		if err := h.ExportLeads(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get(echo.HeaderContentDisposition); got != `attachment; filename="leads_export_20240310_153000.csv"` {
			t.Fatalf("unexpected content disposition: %s", got)
		}
		if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv") {
			t.Fatalf("unexpected content type: %s", rec.Header().Get(echo.HeaderContentType))
		}
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
		}
		if lines[0] != strings.Join(service.CSVColumns, ",") {
			t.Fatalf("unexpected header: %s", lines[0])
		}
		if !strings.Contains(lines[1], "2024-03-10 14:30:00") {
			t.Fatalf("expected formatted timestamp in first row: %s", lines[1])
		}
	})

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/export-leads?format=json&q=grace", nil)
		rec := httptest.NewRecorder()
		_ = h.ExportLeads(e.NewContext(req, rec))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var leads []entity.Lead
		if err := json.Unmarshal(rec.Body.Bytes(), &leads); err != nil {
			t.Fatalf("decode export: %v", err)
		}
		if len(leads) != 1 || leads[0].Email != "grace@example.com" {
			t.Fatalf("unexpected export: %+v", leads)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/export-leads?format=xml", nil)
		rec := httptest.NewRecorder()
		_ = h.ExportLeads(e.NewContext(req, rec))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAdminHandler_SequentialStatusUpdates(t *testing.T) {
	e := echo.New()
	repo := newMemoryLeadRepo(t)
	ids := seedLeads(t, repo)
	h := newAdminHandler(t, repo)

	for _, status := range []string{entity.LeadStatusContacted, entity.LeadStatusQualified} {
		req := newJSONRequest(http.MethodPost, "/admin/update-lead-status", map[string]string{"lead_id": ids[0], "status": status})
		rec := httptest.NewRecorder()
		if err := h.UpdateLeadStatus(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	lead, err := repo.FindByID(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("find lead: %v", err)
	}
	if lead.Status != entity.LeadStatusQualified {
		t.Fatalf("expected last write to win, got %s", lead.Status)
	}
	if lead.UpdatedAt == nil || !lead.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected updated_at stamped, got %v", lead.UpdatedAt)
	}
	if !lead.Timestamp.Equal(testNow.Add(-time.Hour)) {
		t.Fatalf("creation timestamp must not change, got %v", lead.Timestamp)
	}
}

func TestAdminHandler_UpdateLeadErrors(t *testing.T) {
	e := echo.New()
	repo := newMemoryLeadRepo(t)
	ids := seedLeads(t, repo)
	h := newAdminHandler(t, repo)

	tests := map[string]struct {
		payload        map[string]any
		expectedStatus int
	}{
		"unknown status":  {payload: map[string]any{"lead_id": ids[0], "status": "archived"}, expectedStatus: http.StatusBadRequest},
		"missing lead id": {payload: map[string]any{"status": "new"}, expectedStatus: http.StatusBadRequest},
		"unknown lead":    {payload: map[string]any{"lead_id": "missing", "status": "new"}, expectedStatus: http.StatusNotFound},
		"empty patch":     {payload: map[string]any{"lead_id": ids[0]}, expectedStatus: http.StatusBadRequest},
		"bad email":       {payload: map[string]any{"lead_id": ids[0], "email": "nope"}, expectedStatus: http.StatusBadRequest},
		"valid edit":      {payload: map[string]any{"lead_id": ids[0], "company": "Difference Engine"}, expectedStatus: http.StatusOK},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			_ = h.UpdateLead(e.NewContext(newJSONRequest(http.MethodPost, "/admin/update-lead", tt.payload), rec))
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}

	lead, _ := repo.FindByID(context.Background(), ids[0])
	if lead.Company != "Difference Engine" {
		t.Fatalf("expected company edited, got %s", lead.Company)
	}
}

func TestAdminHandler_GetAndDeleteLead(t *testing.T) {
	e := echo.New()
	repo := newMemoryLeadRepo(t)
	ids := seedLeads(t, repo)
	h := newAdminHandler(t, repo)

	get := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/leads/"+id, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/admin/leads/:id")
		c.SetParamNames("id")
		c.SetParamValues(id)
		_ = h.GetLead(c)
		return rec.Code
	}

	if code := get(ids[0]); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	// DELETE /admin/leads/:id
	req := httptest.NewRequest(http.MethodDelete, "/admin/leads/"+ids[0], nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(ids[0])
	_ = h.DeleteLead(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if code := get(ids[0]); code != http.StatusNotFound {
		t.Fatalf("expected deleted lead to be gone, got %d", code)
	}

	// POST /admin/delete-lead
	rec = httptest.NewRecorder()
	_ = h.DeleteLead(e.NewContext(newJSONRequest(http.MethodPost, "/admin/delete-lead", map[string]string{"lead_id": ids[1]}), rec))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	_ = h.DeleteLead(e.NewContext(newJSONRequest(http.MethodPost, "/admin/delete-lead", map[string]string{"lead_id": ids[1]}), rec))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}

	if n, _ := repo.Count(context.Background(), repository.LeadFilter{}); n != 1 {
		t.Fatalf("expected one lead left, got %d", n)
	}
}

func TestAdminHandler_BackendFailure(t *testing.T) {
	e := echo.New()
	h := newAdminHandler(t, &stubLeadRepository{})

	rec := httptest.NewRecorder()
	_ = h.Dashboard(e.NewContext(httptest.NewRequest(http.MethodGet, "/admin", nil), rec))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	_ = h.UpdateLeadStatus(e.NewContext(newJSONRequest(http.MethodPost, "/admin/update-lead-status", map[string]string{"lead_id": "abc", "status": "closed"}), rec))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAdminHandler_ImportLeads(t *testing.T) {
	e := echo.New()

	tests := map[string]struct {
		csv            string
		expectedStatus int
		expectedStored int64
	}{
		"valid rows and skipped rows": {
			csv:            "name,email,phone,status\nAda,ada@example.com,123,contacted\nNo Email,,555,new\n",
			expectedStatus: http.StatusOK,
			expectedStored: 1,
		},
		"missing required column": {
			csv:            "name,email\nAda,ada@example.com\n",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newMemoryLeadRepo(t)
			h := newAdminHandler(t, repo)

			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", "leads.csv")
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			_, _ = part.Write([]byte(tt.csv))
			writer.Close()

			req := httptest.NewRequest(http.MethodPost, "/admin/import-leads", body)
			req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
			rec := httptest.NewRecorder()

			if err := h.ImportLeads(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var summary service.ImportSummary
			decodeEnvelope(t, rec, &summary)
			if summary.Inserted != 1 || summary.Skipped != 1 || summary.Total != 2 {
				t.Fatalf("unexpected summary: %+v", summary)
			}
			if n, _ := repo.Count(context.Background(), repository.LeadFilter{}); n != tt.expectedStored {
				t.Fatalf("expected %d stored, got %d", tt.expectedStored, n)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		h := newAdminHandler(t, newMemoryLeadRepo(t))
		req := httptest.NewRequest(http.MethodPost, "/admin/import-leads", nil)
		rec := httptest.NewRecorder()
		_ = h.ImportLeads(e.NewContext(req, rec))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
