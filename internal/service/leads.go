package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
)

var (
	ErrInvalidStatus = errors.New("invalid lead status")
	ErrInvalidLeadID = errors.New("invalid lead id")
)

// Recorder receives business events for metrics.
type Recorder interface {
	LeadSubmitted(backend string)
	LeadStatusChanged(status string)
	BackendFailure(backend, op string)
	SubscriberEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) LeadSubmitted(string)          {}
func (noopRecorder) LeadStatusChanged(string)      {}
func (noopRecorder) BackendFailure(string, string) {}
func (noopRecorder) SubscriberEvent(string)        {}

// Option configures optional service dependencies.
type Option func(*options)

type options struct {
	logger   logrus.FieldLogger
	recorder Recorder
	now      func() time.Time
	location *time.Location
}

// WithLogger sets the logger used for backend failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the timezone used for calendar-day boundaries and CSV timestamps.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   logrus.StandardLogger(),
		recorder: noopRecorder{},
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LeadPatch lists the fields an admin may edit. Nil fields are kept.
type LeadPatch struct {
	Name    *string
	Email   *string
	Phone   *string
	Company *string
	Network *string
	Message *string
	Status  *string
}

// LeadService owns lead validation and lifecycle on top of whichever store is active.
type LeadService struct {
	repo      repository.LeadRepository
	validator *ContactValidator
	opts      options
}

// NewLeadService creates a new instance of LeadService.
func NewLeadService(repo repository.LeadRepository, validator *ContactValidator, opts ...Option) *LeadService {
	if validator == nil {
		validator = NewContactValidator(defaultPhoneRegion)
	}
	return &LeadService{repo: repo, validator: validator, opts: buildOptions(opts)}
}

// Backend names the store serving requests.
func (s *LeadService) Backend() string { return s.repo.Backend() }

// Submit validates input and stores it as a new lead.
func (s *LeadService) Submit(ctx context.Context, input LeadInput, requireCompany bool) (*entity.Lead, error) {
	clean, err := s.validator.Lead(ctx, input, requireCompany)
	if err != nil {
		return nil, err
	}

	lead := &entity.Lead{
		Name:      clean.Name,
		Email:     clean.Email,
		Phone:     clean.Phone,
		Company:   clean.Company,
		Network:   clean.Network,
		Message:   clean.Message,
		Status:    entity.LeadStatusNew,
		Timestamp: s.opts.now().UTC(),
	}
	if _, err := s.repo.Insert(ctx, lead); err != nil {
		return nil, s.backendError("insert", err)
	}

	s.opts.recorder.LeadSubmitted(s.repo.Backend())
	s.opts.logger.WithFields(logrus.Fields{
		"lead_id": lead.ID,
		"backend": s.repo.Backend(),
	}).Info("lead captured")
	return lead, nil
}

// Count returns the number of stored leads.
func (s *LeadService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx, repository.LeadFilter{})
	if err != nil {
		return 0, s.backendError("count", err)
	}
	return n, nil
}

// Get returns a single lead.
func (s *LeadService) Get(ctx context.Context, id string) (*entity.Lead, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidLeadID
	}
	lead, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.backendError("find_by_id", err)
	}
	return lead, nil
}

// UpdateStatus moves a lead to status and stamps updated_at.
func (s *LeadService) UpdateStatus(ctx context.Context, id, status string) (*entity.Lead, error) {
	return s.Update(ctx, id, LeadPatch{Status: &status})
}

// Update applies patch after validating every provided field. The creation timestamp is
// never changed.
func (s *LeadService) Update(ctx context.Context, id string, patch LeadPatch) (*entity.Lead, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidLeadID
	}

	changes, err := s.cleanPatch(ctx, patch)
	if err != nil {
		return nil, err
	}
	changes.UpdatedAt = s.opts.now().UTC()

	if err := s.repo.Update(ctx, id, changes); err != nil {
		return nil, s.backendError("update", err)
	}
	if changes.Status != nil {
		s.opts.recorder.LeadStatusChanged(*changes.Status)
	}

	return s.Get(ctx, id)
}

// Delete removes a lead under either backend.
func (s *LeadService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidLeadID
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.backendError("delete", err)
	}
	s.opts.logger.WithField("lead_id", id).Info("lead deleted")
	return nil
}

func (s *LeadService) cleanPatch(ctx context.Context, patch LeadPatch) (repository.LeadChanges, error) {
	var changes repository.LeadChanges

	if patch.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*patch.Status))
		if !entity.IsValidLeadStatus(status) {
			return changes, ErrInvalidStatus
		}
		changes.Status = &status
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return changes, invalid("name", "name must not be empty")
		}
		if len(name) > maxFieldLength {
			return changes, invalid("name", "name is too long")
		}
		changes.Name = &name
	}
	if patch.Email != nil {
		email, err := s.validator.Email(ctx, *patch.Email)
		if err != nil {
			return changes, err
		}
		changes.Email = &email
	}
	if patch.Phone != nil {
		phone := strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return changes, invalid("phone", "phone must not be empty")
		}
		if normalized := normalizePhone(phone, s.validator.DefaultRegion); normalized != "" {
			phone = normalized
		}
		changes.Phone = &phone
	}
	if patch.Company != nil {
		company := strings.TrimSpace(*patch.Company)
		changes.Company = &company
	}
	if patch.Network != nil {
		network := strings.ToLower(strings.TrimSpace(*patch.Network))
		changes.Network = &network
	}
	if patch.Message != nil {
		message := strings.TrimSpace(*patch.Message)
		if len(message) > maxMessageLength {
			return changes, invalid("message", "message is too long")
		}
		changes.Message = &message
	}

	if changes.Status == nil && changes.Name == nil && changes.Email == nil && changes.Phone == nil &&
		changes.Company == nil && changes.Network == nil && changes.Message == nil {
		return changes, invalid("lead", "no fields to update")
	}
	return changes, nil
}

// backendError records store failures. Not-found passes through untouched.
func (s *LeadService) backendError(op string, err error) error {
	if errors.Is(err, repository.ErrBackendFailure) {
		s.opts.recorder.BackendFailure(s.repo.Backend(), op)
		s.opts.logger.WithError(err).WithFields(logrus.Fields{
			"backend": s.repo.Backend(),
			"op":      op,
		}).Error("lead store operation failed")
	}
	return err
}
