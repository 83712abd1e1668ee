package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/octobees/lead-capture/internal/config"
)

// Backend names published by the selector.
const (
	BackendMongo  = "mongodb"
	BackendMemory = "memory"
)

// Selection is the sticky backend decision for the lifetime of the process.
// Client and DB are only set when Backend is BackendMongo.
type Selection struct {
	Backend string
	Client  *mongo.Client
	DB      *mongo.Database
}

// UsingMongo reports whether MongoDB is authoritative.
func (s Selection) UsingMongo() bool {
	return s.Backend == BackendMongo && s.DB != nil
}

// ConnectFunc dials and pings MongoDB.
type ConnectFunc func(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error)

// SleepFunc waits between probe attempts, returning early if ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Selector decides once whether MongoDB is usable.
type Selector struct {
	cfg     config.MongoConfig
	logger  logrus.FieldLogger
	connect ConnectFunc
	sleep   SleepFunc
}

// SelectorOption configures optional dependencies.
type SelectorOption func(*Selector)

// WithConnectFunc overrides how the selector dials MongoDB.
func WithConnectFunc(fn ConnectFunc) SelectorOption {
	return func(s *Selector) {
		if fn != nil {
			s.connect = fn
		}
	}
}

// WithSleepFunc overrides the backoff wait.
func WithSleepFunc(fn SleepFunc) SelectorOption {
	return func(s *Selector) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// NewSelector builds a selector for the given MongoDB settings.
func NewSelector(cfg config.MongoConfig, logger logrus.FieldLogger, opts ...SelectorOption) *Selector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Selector{
		cfg:     cfg,
		logger:  logger,
		connect: Connect,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select probes MongoDB with exponential backoff and always returns a decided backend.
// Failures are logged, never returned.
func (s *Selector) Select(ctx context.Context) Selection {
	memory := Selection{Backend: BackendMemory}

	if !s.cfg.Enabled {
		s.logger.WithField("backend", BackendMemory).Info("mongodb disabled by configuration, using local file storage")
		return memory
	}
	if err := ValidateURI(s.cfg.URI); err != nil {
		s.logger.WithError(err).WithField("backend", BackendMemory).Warn("mongodb uri unusable, using local file storage")
		return memory
	}

	attempts := s.cfg.ProbeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := s.cfg.ProbeBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		log := s.logger.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": attempts})
		log.Info("connecting to mongodb")

		client, err := s.probe(ctx)
		if err == nil {
			log.WithField("backend", BackendMongo).Info("mongodb connection established")
			return Selection{
				Backend: BackendMongo,
				Client:  client,
				DB:      client.Database(s.cfg.Database),
			}
		}
		log.WithError(err).Warn("mongodb connection attempt failed")

		if attempt == attempts {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			s.logger.WithError(err).Warn("mongodb probing interrupted")
			break
		}
		delay *= 2
	}

	s.logger.WithField("backend", BackendMemory).Warn("mongodb unavailable, committing to local file storage for this process")
	return memory
}

func (s *Selector) probe(ctx context.Context) (client *mongo.Client, err error) {
	defer func() {
		if r := recover(); r != nil {
			client = nil
			err = fmt.Errorf("mongodb probe panicked: %v", r)
		}
	}()
	client, err = s.connect(ctx, s.cfg.URI, s.cfg.Timeout)
	if err == nil && client == nil {
		err = fmt.Errorf("mongodb connect returned no client")
	}
	return client, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
