package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tapeview/pkg/domain"
)

// DefaultSessionCapacity bounds the number of live sessions kept in memory.
const DefaultSessionCapacity = 256

// ConsumerFactory builds the consumer attached to a new session.
type ConsumerFactory func(sessionID string, b *Baseline) Consumer

// Service loads baselines from a record source and keeps the open sessions.
// Least recently used sessions are dropped once capacity is reached.
type Service struct {
	source    domain.RecordSource
	sessions  *lru.Cache[string, *Session]
	consumers ConsumerFactory
	logger    *zap.Logger
	metrics   MetricsRecorder
	capacity  int
	newID     func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger; sessions inherit it.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder; sessions inherit it.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithConsumerFactory sets the factory for per-session consumers.
func WithConsumerFactory(f ConsumerFactory) ServiceOption {
	return func(s *Service) { s.consumers = f }
}

// WithSessionCapacity bounds the number of retained sessions.
func WithSessionCapacity(n int) ServiceOption {
	return func(s *Service) { s.capacity = n }
}

// NewService constructs a service over source.
func NewService(source domain.RecordSource, opts ...ServiceOption) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("record source cannot be nil")
	}
	s := &Service{
		source:   source,
		logger:   zap.NewNop(),
		metrics:  noopMetrics{},
		capacity: DefaultSessionCapacity,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.NewWithEvict[string, *Session](s.capacity, func(id string, _ *Session) {
		s.logger.Debug("session dropped", zap.String("session", id))
	})
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	s.sessions = cache
	return s, nil
}

// LoadBaseline reads both tables concurrently, keeps the strongest sample
// peaks, and merges them with the regions.
func (s *Service) LoadBaseline(ctx context.Context) (*Baseline, error) {
	var (
		peaks   []domain.PeakRow
		regions []domain.RegionRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.source.PeakRows(gctx)
		if err != nil {
			return storeUnavailable(err)
		}
		peaks = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.RegionRows(gctx)
		if err != nil {
			return storeUnavailable(err)
		}
		regions = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	baseline, err := Merge(SelectStrongestPeaks(peaks), regions)
	if err != nil {
		return nil, fmt.Errorf("merge records: %w", err)
	}
	return baseline, nil
}

// OpenSession loads a fresh baseline and starts a session over it. Store and
// merge failures abort the session.
func (s *Service) OpenSession(ctx context.Context) (*Session, error) {
	start := time.Now()
	baseline, err := s.LoadBaseline(ctx)
	if err != nil {
		s.metrics.Observe(OpOpenSession, false, time.Since(start))
		s.logger.Error("open session failed", zap.Error(err))
		return nil, err
	}
	id := s.newID()
	var consumer Consumer
	if s.consumers != nil {
		consumer = s.consumers(id, baseline)
	}
	session := NewSession(id, baseline, consumer,
		WithSessionLogger(s.logger),
		WithSessionMetrics(s.metrics))
	s.sessions.Add(id, session)
	s.metrics.Observe(OpOpenSession, true, time.Since(start))
	s.logger.Info("session opened",
		zap.String("session", id),
		zap.Int("baseline_rows", baseline.Len()),
		zap.Int("datasets", len(baseline.DatasetIDs())))
	return session, nil
}

// Session returns an open session.
func (s *Service) Session(id string) (*Session, bool) {
	return s.sessions.Get(id)
}

// CloseSession drops a session, reporting whether it was open.
func (s *Service) CloseSession(id string) bool {
	return s.sessions.Remove(id)
}

// OpenSessions returns the number of retained sessions.
func (s *Service) OpenSessions() int {
	return s.sessions.Len()
}

func storeUnavailable(err error) error {
	var unavailable domain.ErrStoreUnavailable
	if errors.As(err, &unavailable) {
		return err
	}
	return domain.ErrStoreUnavailable{Err: err}
}
