package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
)

func seedDashboardRepo(t *testing.T) *repository.FileLeadRepository {
	t.Helper()
	repo := newMemoryLeadRepo()
	seed := []entity.Lead{
		{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "1", Company: "Analytical, Ltd", Status: "new", Timestamp: fixedNow.Add(-time.Hour)},
		{Name: "Grace Hopper", Email: "grace@navy.mil", Phone: "2", Status: "contacted", Timestamp: fixedNow.Add(-15 * time.Hour)},
		{Name: "Linus", Email: "linus@example.com", Phone: "3", Status: "new", Timestamp: fixedNow.Add(-24 * time.Hour)},
		{Name: "Ken", Email: "ken@bell.com", Phone: "4", Status: "converted", Timestamp: fixedNow.AddDate(0, 0, -40)},
	}
	for i := range seed {
		if _, err := repo.Insert(context.Background(), &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return repo
}

func newTestDashboard(repo repository.LeadRepository) *DashboardService {
	logger, _ := test.NewNullLogger()
	return NewDashboardService(repo,
		WithLogger(logger),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
}

func TestDashboardService_Aggregates(t *testing.T) {
	svc := newTestDashboard(seedDashboardRepo(t))

	got, err := svc.Query(context.Background(), DashboardQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Total != 4 || got.Filtered != 4 {
		t.Fatalf("unexpected totals: total=%d filtered=%d", got.Total, got.Filtered)
	}
	if got.Today != 2 {
		t.Fatalf("expected 2 leads today, got %d", got.Today)
	}
	if got.Backend != repository.BackendMemory {
		t.Fatalf("unexpected backend %s", got.Backend)
	}

	if len(got.StatusCounts) != len(entity.LeadStatuses) {
		t.Fatalf("expected every status in histogram, got %v", got.StatusCounts)
	}
	want := map[string]int64{"new": 2, "contacted": 1, "converted": 1}
	for _, sc := range got.StatusCounts {
		if sc.Count != want[sc.Status] {
			t.Fatalf("status %s: expected %d, got %d", sc.Status, want[sc.Status], sc.Count)
		}
	}

	if len(got.Trend) != 30 {
		t.Fatalf("expected 30 trend points, got %d", len(got.Trend))
	}
	last := got.Trend[len(got.Trend)-1]
	if last.Date != "2024-03-10" || last.Count != 2 {
		t.Fatalf("unexpected today point: %+v", last)
	}
	if prev := got.Trend[len(got.Trend)-2]; prev.Date != "2024-03-09" || prev.Count != 1 {
		t.Fatalf("unexpected yesterday point: %+v", prev)
	}
	if first := got.Trend[0]; first.Date != "2024-02-10" {
		t.Fatalf("unexpected first trend date: %s", first.Date)
	}
	var sum int64
	for _, p := range got.Trend {
		sum += p.Count
	}
	if sum != 3 {
		t.Fatalf("expected leads older than 30 days excluded from trend, got %d", sum)
	}
}

func TestDashboardService_FilterSortPaginate(t *testing.T) {
	svc := newTestDashboard(seedDashboardRepo(t))
	ctx := context.Background()

	tests := map[string]struct {
		query      DashboardQuery
		wantNames  []string
		filtered   int64
		totalPages int
	}{
		"default newest first": {
			query:      DashboardQuery{PageSize: 2},
			wantNames:  []string{"Ada Lovelace", "Grace Hopper"},
			filtered:   4,
			totalPages: 2,
		},
		"second page": {
			query:      DashboardQuery{PageSize: 2, Page: 2},
			wantNames:  []string{"Linus", "Ken"},
			filtered:   4,
			totalPages: 2,
		},
		"status filter": {
			query:      DashboardQuery{Status: "NEW"},
			wantNames:  []string{"Ada Lovelace", "Linus"},
			filtered:   2,
			totalPages: 1,
		},
		"search by company": {
			query:      DashboardQuery{Query: "analytical"},
			wantNames:  []string{"Ada Lovelace"},
			filtered:   1,
			totalPages: 1,
		},
		"sort by name ascending": {
			query:      DashboardQuery{SortBy: "name", SortDir: "ASC"},
			wantNames:  []string{"Ada Lovelace", "Grace Hopper", "Ken", "Linus"},
			filtered:   4,
			totalPages: 1,
		},
		"all status means none": {
			query:      DashboardQuery{Status: "all", PageSize: 500},
			wantNames:  []string{"Ada Lovelace", "Grace Hopper", "Linus", "Ken"},
			filtered:   4,
			totalPages: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := svc.Query(ctx, tc.query)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Filtered != tc.filtered || got.TotalPages != tc.totalPages {
				t.Fatalf("filtered=%d pages=%d, want %d/%d", got.Filtered, got.TotalPages, tc.filtered, tc.totalPages)
			}
			if len(got.Leads) != len(tc.wantNames) {
				t.Fatalf("expected %d leads, got %d", len(tc.wantNames), len(got.Leads))
			}
			for i, lead := range got.Leads {
				if lead.Name != tc.wantNames[i] {
					t.Fatalf("position %d: expected %s, got %s", i, tc.wantNames[i], lead.Name)
				}
			}
		})
	}
}

func TestDashboardService_PageSizeCapped(t *testing.T) {
	svc := newTestDashboard(seedDashboardRepo(t))
	got, err := svc.Query(context.Background(), DashboardQuery{PageSize: 1000, Page: -3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PageSize != maxPageSize || got.Page != 1 {
		t.Fatalf("expected page defaults applied, got page=%d size=%d", got.Page, got.PageSize)
	}
}

func TestDashboardService_InvalidStatus(t *testing.T) {
	svc := newTestDashboard(seedDashboardRepo(t))
	if _, err := svc.Query(context.Background(), DashboardQuery{Status: "won"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestDashboardService_BackendFailure(t *testing.T) {
	recorder := &recordingRecorder{}
	repo := &mockLeadRepository{count: func(ctx context.Context, filter repository.LeadFilter) (int64, error) {
		return 0, fmt.Errorf("%w: socket closed", repository.ErrBackendFailure)
	}}
	logger, _ := test.NewNullLogger()
	svc := NewDashboardService(repo, WithLogger(logger), WithRecorder(recorder))

	if _, err := svc.Query(context.Background(), DashboardQuery{}); !errors.Is(err, repository.ErrBackendFailure) {
		t.Fatalf("expected backend failure, got %v", err)
	}
	if len(recorder.failures) != 1 {
		t.Fatalf("expected failure recorded once, got %v", recorder.failures)
	}
}

type countingLeadRepository struct {
	repository.LeadRepository
	calls map[string]int
	since time.Time
}

func (c *countingLeadRepository) Count(ctx context.Context, filter repository.LeadFilter) (int64, error) {
	c.calls["count"]++
	return c.LeadRepository.Count(ctx, filter)
}

func (c *countingLeadRepository) Find(ctx context.Context, filter repository.LeadFilter, opts repository.FindOptions) ([]entity.Lead, error) {
	c.calls["find"]++
	return c.LeadRepository.Find(ctx, filter, opts)
}

func (c *countingLeadRepository) Summarize(ctx context.Context, since time.Time) (repository.LeadSummary, error) {
	c.calls["summarize"]++
	c.since = since
	return c.LeadRepository.Summarize(ctx, since)
}

func TestDashboardService_QueryRoundTrips(t *testing.T) {
	repo := &countingLeadRepository{LeadRepository: seedDashboardRepo(t), calls: map[string]int{}}
	svc := newTestDashboard(repo)

	if _, err := svc.Query(context.Background(), DashboardQuery{Status: "new"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int{"count": 1, "find": 1, "summarize": 1}
	for op, n := range want {
		if repo.calls[op] != n {
			t.Fatalf("expected %d %s call(s), got %v", n, op, repo.calls)
		}
	}
	if wantSince := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC); !repo.since.Equal(wantSince) {
		t.Fatalf("expected summary window from %s, got %s", wantSince, repo.since)
	}
}

func TestDashboardService_SummaryFailure(t *testing.T) {
	recorder := &recordingRecorder{}
	repo := &mockLeadRepository{
		count: func(ctx context.Context, filter repository.LeadFilter) (int64, error) { return 0, nil },
		find: func(ctx context.Context, filter repository.LeadFilter, opts repository.FindOptions) ([]entity.Lead, error) {
			return nil, nil
		},
		summarize: func(ctx context.Context, since time.Time) (repository.LeadSummary, error) {
			return repository.LeadSummary{}, fmt.Errorf("%w: socket closed", repository.ErrBackendFailure)
		},
	}
	logger, _ := test.NewNullLogger()
	svc := NewDashboardService(repo, WithLogger(logger), WithRecorder(recorder))

	if _, err := svc.Query(context.Background(), DashboardQuery{}); !errors.Is(err, repository.ErrBackendFailure) {
		t.Fatalf("expected backend failure, got %v", err)
	}
	if len(recorder.failures) != 1 || recorder.failures[0] != "mongodb:summarize" {
		t.Fatalf("unexpected failures recorded: %v", recorder.failures)
	}
}

func TestDashboardService_ExportIgnoresPagination(t *testing.T) {
	svc := newTestDashboard(seedDashboardRepo(t))

	leads, err := svc.ExportLeads(context.Background(), DashboardQuery{Status: "new", Page: 5, PageSize: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected the full filtered set, got %d", len(leads))
	}
}
