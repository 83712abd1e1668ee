package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/octobees/lead-capture/internal/entity"
)

var (
	// ErrLeadNotFound is returned when no lead matches the identifier.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrBackendFailure wraps operational failures of the active storage backend.
	ErrBackendFailure = errors.New("lead store backend failure")
)

// LeadRepository is the single persistence contract for leads. Both implementations
// must return the same results for the same data.
type LeadRepository interface {
	// Backend names the storage in use ("mongodb" or "memory").
	Backend() string
	Insert(ctx context.Context, lead *entity.Lead) (string, error)
	Count(ctx context.Context, filter LeadFilter) (int64, error)
	Find(ctx context.Context, filter LeadFilter, opts FindOptions) ([]entity.Lead, error)
	FindByID(ctx context.Context, id string) (*entity.Lead, error)
	Update(ctx context.Context, id string, changes LeadChanges) error
	Delete(ctx context.Context, id string) error
	// Summarize counts every lead by status and returns the timestamps of leads created
	// at or after since, in a single pass over the store.
	Summarize(ctx context.Context, since time.Time) (LeadSummary, error)
}

// LeadSummary feeds the dashboard histogram and trend.
type LeadSummary struct {
	Total    int64
	ByStatus map[string]int64
	Recent   []time.Time
}

// LeadFilter narrows lead queries. Zero values match everything.
type LeadFilter struct {
	Status string
	// Query is a case-insensitive substring matched against each of SearchFields.
	Query string
	// Since and Until bound timestamp as [Since, Until).
	Since *time.Time
	Until *time.Time
}

// SearchFields are the lead attributes free-text search looks at.
var SearchFields = []string{"name", "email", "company", "phone", "message"}

// SortableFields whitelists lead attributes accepted for ordering.
var SortableFields = []string{"timestamp", "updated_at", "name", "email", "phone", "company", "network", "status"}

// DefaultSortField orders leads when the caller does not pick a valid field.
const DefaultSortField = "timestamp"

// LeadSort orders query results.
type LeadSort struct {
	Field string
	Desc  bool
}

// FindOptions controls ordering and pagination. Limit <= 0 means unbounded.
type FindOptions struct {
	Sort  LeadSort
	Skip  int
	Limit int
}

// LeadChanges lists the attributes to overwrite. Nil pointers are left untouched.
// UpdatedAt is always written.
type LeadChanges struct {
	Name      *string
	Email     *string
	Phone     *string
	Company   *string
	Network   *string
	Message   *string
	Status    *string
	UpdatedAt time.Time
}

// NormalizeSortField maps unknown fields to DefaultSortField.
func NormalizeSortField(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	for _, f := range SortableFields {
		if f == field {
			return f
		}
	}
	return DefaultSortField
}

// matchLead applies filter the same way the MongoDB query does.
func matchLead(lead entity.Lead, filter LeadFilter) bool {
	if filter.Status != "" && lead.Status != filter.Status {
		return false
	}
	if filter.Since != nil && lead.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && !lead.Timestamp.Before(*filter.Until) {
		return false
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		needle := strings.ToLower(q)
		for _, field := range []string{lead.Name, lead.Email, lead.Company, lead.Phone, lead.Message} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}
	return true
}

// sortLeads orders in place. Ties keep insertion order, mirroring the _id tie-break on MongoDB.
// Missing updated_at sorts before any value, as MongoDB orders null first.
func sortLeads(leads []entity.Lead, s LeadSort) {
	field := NormalizeSortField(s.Field)
	sort.SliceStable(leads, func(i, j int) bool {
		c := compareLeads(leads[i], leads[j], field)
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareLeads(a, b entity.Lead, field string) int {
	switch field {
	case "timestamp":
		return a.Timestamp.Compare(b.Timestamp)
	case "updated_at":
		switch {
		case a.UpdatedAt == nil && b.UpdatedAt == nil:
			return 0
		case a.UpdatedAt == nil:
			return -1
		case b.UpdatedAt == nil:
			return 1
		default:
			return a.UpdatedAt.Compare(*b.UpdatedAt)
		}
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "phone":
		return strings.Compare(a.Phone, b.Phone)
	case "company":
		return strings.Compare(a.Company, b.Company)
	case "network":
		return strings.Compare(a.Network, b.Network)
	case "status":
		return strings.Compare(a.Status, b.Status)
	default:
		return 0
	}
}

// paginate applies skip/limit to an already ordered slice.
func paginate(leads []entity.Lead, skip, limit int) []entity.Lead {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(leads) {
		return []entity.Lead{}
	}
	leads = leads[skip:]
	if limit > 0 && limit < len(leads) {
		leads = leads[:limit]
	}
	return leads
}

// applyChanges mutates lead with the non-nil fields of changes.
func applyChanges(lead *entity.Lead, changes LeadChanges) {
	if changes.Name != nil {
		lead.Name = *changes.Name
	}
	if changes.Email != nil {
		lead.Email = *changes.Email
	}
	if changes.Phone != nil {
		lead.Phone = *changes.Phone
	}
	if changes.Company != nil {
		lead.Company = *changes.Company
	}
	if changes.Network != nil {
		lead.Network = *changes.Network
	}
	if changes.Message != nil {
		lead.Message = *changes.Message
	}
	if changes.Status != nil {
		lead.Status = *changes.Status
	}
	updated := changes.UpdatedAt
	lead.UpdatedAt = &updated
}
