package service

import (
	"context"
	"strings"
	"time"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	trendDays       = 30
)

// DashboardQuery is the admin list request.
type DashboardQuery struct {
	Query    string
	Status   string
	SortBy   string
	SortDir  string
	Page     int
	PageSize int
}

// StatusCount is one bar of the status histogram.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// DailyCount is one point of the daily trend.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Dashboard carries everything the admin view renders.
type Dashboard struct {
	Leads        []entity.Lead `json:"leads"`
	Total        int64         `json:"total"`
	Filtered     int64         `json:"filtered"`
	Today        int64         `json:"today"`
	StatusCounts []StatusCount `json:"status_counts"`
	Trend        []DailyCount  `json:"trend"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
	TotalPages   int           `json:"total_pages"`
	SortBy       string        `json:"sort_by"`
	SortDir      string        `json:"sort_dir"`
	Query        string        `json:"q,omitempty"`
	Status       string        `json:"status,omitempty"`
	Backend      string        `json:"backend"`
}

// DashboardService computes dashboard aggregates through LeadRepository only, so both
// backends produce the same numbers. One request costs a filtered count, one page read
// and one summary.
type DashboardService struct {
	repo repository.LeadRepository
	opts options
}

// NewDashboardService creates a new instance of DashboardService.
func NewDashboardService(repo repository.LeadRepository, opts ...Option) *DashboardService {
	return &DashboardService{repo: repo, opts: buildOptions(opts)}
}

// Location returns the timezone used for day boundaries.
func (s *DashboardService) Location() *time.Location { return s.opts.location }

// Query returns one page of leads together with totals, histogram and trend.
func (s *DashboardService) Query(ctx context.Context, q DashboardQuery) (*Dashboard, error) {
	filter, err := buildFilter(q.Query, q.Status)
	if err != nil {
		return nil, err
	}
	q = normalizeQuery(q)
	sort := repository.LeadSort{Field: q.SortBy, Desc: q.SortDir == "desc"}

	result := &Dashboard{
		Page:     q.Page,
		PageSize: q.PageSize,
		SortBy:   q.SortBy,
		SortDir:  q.SortDir,
		Query:    filter.Query,
		Status:   filter.Status,
		Backend:  s.repo.Backend(),
	}

	if result.Filtered, err = s.count(ctx, filter); err != nil {
		return nil, err
	}

	leads, err := s.repo.Find(ctx, filter, repository.FindOptions{
		Sort:  sort,
		Skip:  (q.Page - 1) * q.PageSize,
		Limit: q.PageSize,
	})
	if err != nil {
		return nil, s.backendError("find", err)
	}
	result.Leads = leads
	result.TotalPages = int((result.Filtered + int64(q.PageSize) - 1) / int64(q.PageSize))

	today := s.startOfDay(s.opts.now())
	summary, err := s.summarize(ctx, today)
	if err != nil {
		return nil, err
	}
	result.Total = summary.Total
	result.StatusCounts = histogram(summary)
	result.Trend = s.trend(summary, today)
	for _, ts := range summary.Recent {
		if !ts.Before(today) {
			result.Today++
		}
	}

	return result, nil
}

// summarize fetches status totals and the timestamps inside the trend window.
func (s *DashboardService) summarize(ctx context.Context, today time.Time) (repository.LeadSummary, error) {
	summary, err := s.repo.Summarize(ctx, today.AddDate(0, 0, -(trendDays - 1)))
	if err != nil {
		return summary, s.backendError("summarize", err)
	}
	return summary, nil
}

// histogram lists every known status in entity.LeadStatuses order.
func histogram(summary repository.LeadSummary) []StatusCount {
	counts := make([]StatusCount, 0, len(entity.LeadStatuses))
	for _, status := range entity.LeadStatuses {
		counts = append(counts, StatusCount{Status: status, Count: summary.ByStatus[status]})
	}
	return counts
}

// trend counts leads per calendar day for the trailing 30 days, oldest first, today last.
func (s *DashboardService) trend(summary repository.LeadSummary, today time.Time) []DailyCount {
	perDay := make(map[string]int64, trendDays)
	for _, ts := range summary.Recent {
		perDay[ts.In(s.opts.location).Format("2006-01-02")]++
	}

	trend := make([]DailyCount, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		trend = append(trend, DailyCount{Date: day, Count: perDay[day]})
	}
	return trend
}

// ExportLeads returns the whole filtered set, ordered like the dashboard, without paging.
func (s *DashboardService) ExportLeads(ctx context.Context, q DashboardQuery) ([]entity.Lead, error) {
	filter, err := buildFilter(q.Query, q.Status)
	if err != nil {
		return nil, err
	}
	q = normalizeQuery(q)

	leads, err := s.repo.Find(ctx, filter, repository.FindOptions{
		Sort: repository.LeadSort{Field: q.SortBy, Desc: q.SortDir == "desc"},
	})
	if err != nil {
		return nil, s.backendError("find", err)
	}
	return leads, nil
}

func (s *DashboardService) count(ctx context.Context, filter repository.LeadFilter) (int64, error) {
	n, err := s.repo.Count(ctx, filter)
	if err != nil {
		return 0, s.backendError("count", err)
	}
	return n, nil
}

func (s *DashboardService) startOfDay(t time.Time) time.Time {
	t = t.In(s.opts.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.opts.location)
}

func (s *DashboardService) backendError(op string, err error) error {
	s.opts.recorder.BackendFailure(s.repo.Backend(), op)
	s.opts.logger.WithError(err).WithField("op", op).Error("dashboard query failed")
	return err
}

// buildFilter accepts an empty or "all" status as no filter.
func buildFilter(query, status string) (repository.LeadFilter, error) {
	filter := repository.LeadFilter{Query: strings.TrimSpace(query)}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != "all" {
		if !entity.IsValidLeadStatus(status) {
			return filter, ErrInvalidStatus
		}
		filter.Status = status
	}
	return filter, nil
}

func normalizeQuery(q DashboardQuery) DashboardQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	q.SortBy = repository.NormalizeSortField(q.SortBy)
	if strings.EqualFold(strings.TrimSpace(q.SortDir), "asc") {
		q.SortDir = "asc"
	} else {
		q.SortDir = "desc"
	}
	return q
}
