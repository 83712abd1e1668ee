package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/entity"
)

// FileSubscriberRepository mirrors FileLeadRepository for subscribers.
type FileSubscriberRepository struct {
	mu      sync.RWMutex
	subs    []entity.Subscriber
	journal *Journal[entity.Subscriber]
	logger  logrus.FieldLogger
	newID   func() string
}

// NewFileSubscriberRepository builds an empty store. Call Load to hydrate it from the journal.
func NewFileSubscriberRepository(journal *Journal[entity.Subscriber], logger logrus.FieldLogger) *FileSubscriberRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileSubscriberRepository{
		journal: journal,
		logger:  logger.WithFields(logrus.Fields{"backend": BackendMemory, "entity": "subscriber"}),
		newID:   uuid.NewString,
	}
}

var _ SubscriberRepository = (*FileSubscriberRepository)(nil)

// Backend implements SubscriberRepository.
func (r *FileSubscriberRepository) Backend() string { return BackendMemory }

// Load hydrates the store from the journal. Later duplicates of an email or id are dropped.
func (r *FileSubscriberRepository) Load() (int, error) {
	result, err := r.journal.Load()
	if err != nil {
		r.logger.WithError(err).WithField("backup_writable", r.journal.Writable()).Error("failed to read subscriber backup, starting empty")
		return 0, err
	}

	dirty := result.Legacy
	ids := make(map[string]struct{}, len(result.Records))
	emails := make(map[string]struct{}, len(result.Records))
	subs := make([]entity.Subscriber, 0, len(result.Records))
	for _, sub := range result.Records {
		if sub.ID == "" {
			sub.ID = r.newID()
			dirty = true
		}
		if sub.Token == "" {
			sub.Token = uuid.NewString()
			dirty = true
		}
		key := normalizeEmailKey(sub.Email)
		_, dupID := ids[sub.ID]
		_, dupEmail := emails[key]
		if dupID || dupEmail {
			dirty = true
			continue
		}
		ids[sub.ID] = struct{}{}
		emails[key] = struct{}{}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = subs

	if dirty {
		if err := r.journal.Rewrite(r.subs); err != nil {
			r.logger.WithError(err).Warn("failed to normalise subscriber backup file")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"path":            r.journal.Path(),
		"loaded":          len(subs),
		"skipped":         result.Skipped,
		"preserved":       result.Preserved,
		"backup_writable": r.journal.Writable(),
	}).Info("hydrated subscribers from backup")
	return len(subs), nil
}

func (r *FileSubscriberRepository) Insert(ctx context.Context, sub *entity.Subscriber) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmailKey(sub.Email)
	for i := range r.subs {
		if normalizeEmailKey(r.subs[i].Email) == key {
			return "", ErrSubscriberExists
		}
	}

	sub.ID = r.newID()
	r.subs = append(r.subs, *sub)
	if err := r.journal.Append(*sub); err != nil {
		r.logger.WithError(err).WithField("op", "insert").Warn("subscriber kept in memory but backup append failed")
	}
	return sub.ID, nil
}

func (r *FileSubscriberRepository) FindByEmail(ctx context.Context, email string) (*entity.Subscriber, error) {
	key := normalizeEmailKey(email)
	return r.findFirst(func(s entity.Subscriber) bool { return normalizeEmailKey(s.Email) == key })
}

func (r *FileSubscriberRepository) FindByToken(ctx context.Context, token string) (*entity.Subscriber, error) {
	if token == "" {
		return nil, ErrSubscriberNotFound
	}
	return r.findFirst(func(s entity.Subscriber) bool { return s.Token == token })
}

func (r *FileSubscriberRepository) Update(ctx context.Context, sub entity.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.subs {
		if r.subs[i].ID == sub.ID {
			r.subs[i] = sub
			if err := r.journal.Rewrite(r.subs); err != nil {
				r.logger.WithError(err).WithField("op", "update").Warn("subscriber updated in memory but backup rewrite failed")
			}
			return nil
		}
	}
	return ErrSubscriberNotFound
}

func (r *FileSubscriberRepository) Count(ctx context.Context, filter SubscriberFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, sub := range r.subs {
		if matchSubscriber(sub, filter) {
			n++
		}
	}
	return n, nil
}

func (r *FileSubscriberRepository) findFirst(match func(entity.Subscriber) bool) (*entity.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if match(sub) {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrSubscriberNotFound
}
