package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/octobees/lead-capture/internal/entity"
)

var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrSubscriberExists   = errors.New("subscriber already exists")
)

// SubscriberRepository persists newsletter subscribers. Email is unique per store.
type SubscriberRepository interface {
	Backend() string
	Insert(ctx context.Context, sub *entity.Subscriber) (string, error)
	FindByEmail(ctx context.Context, email string) (*entity.Subscriber, error)
	FindByToken(ctx context.Context, token string) (*entity.Subscriber, error)
	// Update replaces the stored subscriber with the same ID.
	Update(ctx context.Context, sub entity.Subscriber) error
	Count(ctx context.Context, filter SubscriberFilter) (int64, error)
}

// SubscriberFilter narrows subscriber counts. Nil fields match everything.
type SubscriberFilter struct {
	Confirmed    *bool
	Unsubscribed *bool
}

func matchSubscriber(sub entity.Subscriber, filter SubscriberFilter) bool {
	if filter.Confirmed != nil && sub.Confirmed != *filter.Confirmed {
		return false
	}
	if filter.Unsubscribed != nil && sub.Unsubscribed != *filter.Unsubscribed {
		return false
	}
	return true
}

func normalizeEmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
