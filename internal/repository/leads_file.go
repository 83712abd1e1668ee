package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/entity"
)

// BackendMemory identifies the in-process store backed by the JSON journal.
const BackendMemory = "memory"

// FileLeadRepository keeps leads in memory and mirrors them to an NDJSON journal.
// The in-memory list is authoritative: journal write failures are logged, not returned.
// mu serialises every mutation together with its journal write.
type FileLeadRepository struct {
	mu      sync.RWMutex
	leads   []entity.Lead
	journal *Journal[entity.Lead]
	logger  logrus.FieldLogger
	newID   func() string
}

// NewFileLeadRepository builds an empty store. Call Load to hydrate it from the journal.
func NewFileLeadRepository(journal *Journal[entity.Lead], logger logrus.FieldLogger) *FileLeadRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileLeadRepository{
		journal: journal,
		logger:  logger.WithField("backend", BackendMemory),
		newID:   uuid.NewString,
	}
}

var _ LeadRepository = (*FileLeadRepository)(nil)

// Backend implements LeadRepository.
func (r *FileLeadRepository) Backend() string { return BackendMemory }

// Load replaces the in-memory list with the journal contents, so repeated calls never
// duplicate records. Records written before ids were assigned get one, and the journal is
// rewritten when anything had to be normalised.
func (r *FileLeadRepository) Load() (int, error) {
	result, err := r.journal.Load()
	if err != nil {
		r.logger.WithError(err).WithField("backup_writable", r.journal.Writable()).Error("failed to read lead backup, starting empty")
		return 0, err
	}

	dirty := result.Legacy
	seen := make(map[string]struct{}, len(result.Records))
	leads := make([]entity.Lead, 0, len(result.Records))
	for _, lead := range result.Records {
		if lead.ID == "" {
			lead.ID = r.newID()
			dirty = true
		}
		if _, dup := seen[lead.ID]; dup {
			dirty = true
			continue
		}
		seen[lead.ID] = struct{}{}
		if lead.Status == "" {
			lead.Status = entity.LeadStatusNew
			dirty = true
		}
		leads = append(leads, lead)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = leads

	if dirty {
		if err := r.journal.Rewrite(r.leads); err != nil {
			r.logger.WithError(err).Warn("failed to normalise lead backup file")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"path":            r.journal.Path(),
		"loaded":          len(leads),
		"skipped":         result.Skipped,
		"preserved":       result.Preserved,
		"backup_writable": r.journal.Writable(),
	}).Info("hydrated leads from backup")
	return len(leads), nil
}

// Summarize implements LeadRepository.
func (r *FileLeadRepository) Summarize(ctx context.Context, since time.Time) (LeadSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := LeadSummary{ByStatus: make(map[string]int64)}
	for _, lead := range r.leads {
		summary.Total++
		summary.ByStatus[lead.Status]++
		if !lead.Timestamp.Before(since) {
			summary.Recent = append(summary.Recent, lead.Timestamp)
		}
	}
	return summary, nil
}

// Insert implements LeadRepository.
func (r *FileLeadRepository) Insert(ctx context.Context, lead *entity.Lead) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead.ID = r.newID()
	r.leads = append(r.leads, *lead)

	if err := r.journal.Append(*lead); err != nil {
		r.logger.WithError(err).WithField("op", "insert").Warn("lead kept in memory but backup append failed")
	}
	return lead.ID, nil
}

// Count implements LeadRepository.
func (r *FileLeadRepository) Count(ctx context.Context, filter LeadFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, lead := range r.leads {
		if matchLead(lead, filter) {
			n++
		}
	}
	return n, nil
}

// Find implements LeadRepository.
func (r *FileLeadRepository) Find(ctx context.Context, filter LeadFilter, opts FindOptions) ([]entity.Lead, error) {
	r.mu.RLock()
	matched := make([]entity.Lead, 0)
	for _, lead := range r.leads {
		if matchLead(lead, filter) {
			matched = append(matched, cloneLead(lead))
		}
	}
	r.mu.RUnlock()

	sortLeads(matched, opts.Sort)
	return paginate(matched, opts.Skip, opts.Limit), nil
}

// FindByID implements LeadRepository.
func (r *FileLeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return nil, ErrLeadNotFound
	}
	lead := cloneLead(r.leads[idx])
	return &lead, nil
}

// Update implements LeadRepository. The journal is rewritten in full.
func (r *FileLeadRepository) Update(ctx context.Context, id string, changes LeadChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return ErrLeadNotFound
	}
	applyChanges(&r.leads[idx], changes)

	if err := r.journal.Rewrite(r.leads); err != nil {
		r.logger.WithError(err).WithField("op", "update").Warn("lead updated in memory but backup rewrite failed")
	}
	return nil
}

// Delete implements LeadRepository.
func (r *FileLeadRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return ErrLeadNotFound
	}
	r.leads = append(r.leads[:idx], r.leads[idx+1:]...)

	if err := r.journal.Rewrite(r.leads); err != nil {
		r.logger.WithError(err).WithField("op", "delete").Warn("lead deleted in memory but backup rewrite failed")
	}
	return nil
}

func (r *FileLeadRepository) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range r.leads {
		if r.leads[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneLead(lead entity.Lead) entity.Lead {
	if lead.UpdatedAt != nil {
		updated := *lead.UpdatedAt
		lead.UpdatedAt = &updated
	}
	return lead
}
