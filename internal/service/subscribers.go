package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/repository"
)

var (
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrAlreadySubscribed = errors.New("email is already subscribed")
)

// SubscriberCounts summarises the newsletter list.
type SubscriberCounts struct {
	Total        int64 `json:"total"`
	Confirmed    int64 `json:"confirmed"`
	Unsubscribed int64 `json:"unsubscribed"`
}

// SubscriberService handles newsletter sign-up, confirmation and opt-out.
type SubscriberService struct {
	repo      repository.SubscriberRepository
	validator *ContactValidator
	opts      options
	newToken  func() string
}

// NewSubscriberService creates a new instance of SubscriberService.
func NewSubscriberService(repo repository.SubscriberRepository, validator *ContactValidator, opts ...Option) *SubscriberService {
	if validator == nil {
		validator = NewContactValidator(defaultPhoneRegion)
	}
	return &SubscriberService{
		repo:      repo,
		validator: validator,
		opts:      buildOptions(opts),
		newToken:  uuid.NewString,
	}
}

// Subscribe registers email. An address that unsubscribed earlier is re-activated with a
// fresh token and must confirm again.
func (s *SubscriberService) Subscribe(ctx context.Context, email, name string) (*entity.Subscriber, error) {
	email, err := s.validator.Email(ctx, email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > maxFieldLength {
		return nil, invalid("name", "name is too long")
	}
	now := s.opts.now().UTC()

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.Unsubscribed {
			return nil, ErrAlreadySubscribed
		}
		existing.Unsubscribed = false
		existing.UnsubscribedAt = nil
		existing.Confirmed = false
		existing.ConfirmedAt = nil
		existing.Token = s.newToken()
		existing.SubscribedAt = now
		if name != "" {
			existing.Name = name
		}
		if err := s.repo.Update(ctx, *existing); err != nil {
			return nil, s.backendError("resubscribe", err)
		}
		s.opts.recorder.SubscriberEvent("resubscribed")
		return existing, nil
	case !errors.Is(err, repository.ErrSubscriberNotFound):
		return nil, s.backendError("find_by_email", err)
	}

	sub := &entity.Subscriber{
		Email:        email,
		Name:         name,
		Token:        s.newToken(),
		SubscribedAt: now,
	}
	if _, err := s.repo.Insert(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrSubscriberExists) {
			return nil, ErrAlreadySubscribed
		}
		return nil, s.backendError("insert", err)
	}
	s.opts.recorder.SubscriberEvent("subscribed")
	return sub, nil
}

// Confirm marks the subscriber holding token as confirmed. Repeated calls are harmless.
func (s *SubscriberService) Confirm(ctx context.Context, token string) (*entity.Subscriber, error) {
	sub, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sub.Unsubscribed {
		return nil, ErrInvalidToken
	}
	if sub.Confirmed {
		return sub, nil
	}

	now := s.opts.now().UTC()
	sub.Confirmed = true
	sub.ConfirmedAt = &now
	if err := s.repo.Update(ctx, *sub); err != nil {
		return nil, s.backendError("confirm", err)
	}
	s.opts.recorder.SubscriberEvent("confirmed")
	return sub, nil
}

// Unsubscribe opts the subscriber holding token out. Repeated calls are harmless.
func (s *SubscriberService) Unsubscribe(ctx context.Context, token string) (*entity.Subscriber, error) {
	sub, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sub.Unsubscribed {
		return sub, nil
	}

	now := s.opts.now().UTC()
	sub.Unsubscribed = true
	sub.UnsubscribedAt = &now
	if err := s.repo.Update(ctx, *sub); err != nil {
		return nil, s.backendError("unsubscribe", err)
	}
	s.opts.recorder.SubscriberEvent("unsubscribed")
	return sub, nil
}

// Counts returns list totals.
func (s *SubscriberService) Counts(ctx context.Context) (SubscriberCounts, error) {
	yes := true
	var counts SubscriberCounts
	var err error
	if counts.Total, err = s.repo.Count(ctx, repository.SubscriberFilter{}); err != nil {
		return SubscriberCounts{}, s.backendError("count", err)
	}
	if counts.Confirmed, err = s.repo.Count(ctx, repository.SubscriberFilter{Confirmed: &yes}); err != nil {
		return SubscriberCounts{}, s.backendError("count", err)
	}
	if counts.Unsubscribed, err = s.repo.Count(ctx, repository.SubscriberFilter{Unsubscribed: &yes}); err != nil {
		return SubscriberCounts{}, s.backendError("count", err)
	}
	return counts, nil
}

func (s *SubscriberService) byToken(ctx context.Context, token string) (*entity.Subscriber, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	sub, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.backendError("find_by_token", err)
	}
	return sub, nil
}

func (s *SubscriberService) backendError(op string, err error) error {
	s.opts.recorder.BackendFailure(s.repo.Backend(), op)
	s.opts.logger.WithError(err).WithFields(logrus.Fields{
		"backend": s.repo.Backend(),
		"op":      op,
	}).Error("subscriber store operation failed")
	return err
}
