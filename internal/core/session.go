package core

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session operation names reported to the MetricsRecorder.
const (
	OpOpenSession           = "open_session"
	OpSetAreaCutoff         = "set_area_cutoff"
	OpSetConcentrationRange = "set_concentration_range"
	OpSetSelectedDatasets   = "set_selected_datasets"
	OpApplyControls         = "apply_controls"
)

// Session owns the control state and live set of one dashboard viewer over a
// shared baseline. Mutations are handled one at a time to completion:
// validate, recompute from baseline, swap, publish. Readers never block and
// never observe a partially computed live set.
type Session struct {
	id       string
	baseline *Baseline
	consumer Consumer
	logger   *zap.Logger
	metrics  MetricsRecorder
	created  time.Time

	mu         sync.Mutex
	generation uint64
	live       atomic.Pointer[LiveSet]
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionMetrics sets the metrics recorder.
func WithSessionMetrics(metrics MetricsRecorder) SessionOption {
	return func(s *Session) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewSession starts a session with default controls and publishes the
// initial live set to consumer. consumer may be nil.
func NewSession(id string, b *Baseline, consumer Consumer, opts ...SessionOption) *Session {
	s := &Session{
		id:       id,
		baseline: b,
		consumer: consumer,
		logger:   zap.NewNop(),
		metrics:  noopMetrics{},
		created:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", id))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapAndPublish(Recompute(b, DefaultControls(b)))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time { return s.created }

// Baseline returns the shared, immutable baseline.
func (s *Session) Baseline() *Baseline { return s.baseline }

// Consumer returns the registered consumer, or nil.
func (s *Session) Consumer() Consumer { return s.consumer }

// Live returns the current live set.
func (s *Session) Live() LiveSet { return *s.live.Load() }

// Controls returns the current control state.
func (s *Session) Controls() Controls { return s.Live().Controls() }

// SetAreaCutoff changes the integrated area threshold.
func (s *Session) SetAreaCutoff(v float64) (LiveSet, error) {
	return s.mutate(OpSetAreaCutoff, func(c *Controls) error { return c.SetAreaCutoff(v) })
}

// SetConcentrationRange changes the calibrated concentration interval.
func (s *Session) SetConcentrationRange(r Range) (LiveSet, error) {
	return s.mutate(OpSetConcentrationRange, func(c *Controls) error { return c.SetConcentrationRange(r) })
}

// SetSelectedDatasetIDs replaces the dataset selection.
func (s *Session) SetSelectedDatasetIDs(ids []string) (LiveSet, error) {
	return s.mutate(OpSetSelectedDatasets, func(c *Controls) error { return c.SetSelectedDatasetIDs(ids) })
}

// ControlUpdate carries several control changes submitted as one event.
// Nil fields are left unchanged; the selection is replaced only when
// ReplaceSelection is set.
type ControlUpdate struct {
	AreaCutoff         *float64
	ConcentrationRange *Range
	SelectedDatasetIDs []string
	ReplaceSelection   bool
}

// Empty reports whether the update changes nothing.
func (u ControlUpdate) Empty() bool {
	return u.AreaCutoff == nil && u.ConcentrationRange == nil && !u.ReplaceSelection
}

// Apply validates every change of u and, if all are valid, recomputes and
// publishes once. If any change is invalid none is applied.
func (s *Session) Apply(u ControlUpdate) (LiveSet, error) {
	if u.Empty() {
		return s.Live(), nil
	}
	return s.mutate(OpApplyControls, func(c *Controls) error {
		if u.AreaCutoff != nil {
			if err := c.SetAreaCutoff(*u.AreaCutoff); err != nil {
				return err
			}
		}
		if u.ConcentrationRange != nil {
			if err := c.SetConcentrationRange(*u.ConcentrationRange); err != nil {
				return err
			}
		}
		if u.ReplaceSelection {
			return c.SetSelectedDatasetIDs(u.SelectedDatasetIDs)
		}
		return nil
	})
}

func (s *Session) mutate(op string, fn func(*Controls) error) (LiveSet, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.live.Load()
	next := current.controls
	if err := fn(&next); err != nil {
		s.metrics.Observe(op, false, time.Since(start))
		s.logger.Debug("control change rejected", zap.String("operation", op), zap.Error(err))
		return *current, err
	}
	live := s.swapAndPublish(Recompute(s.baseline, next))
	s.metrics.Observe(op, true, time.Since(start))
	s.logger.Debug("live set recomputed",
		zap.String("operation", op),
		zap.Uint64("generation", live.generation),
		zap.Int("rows", live.Len()),
		zap.Int("baseline_rows", s.baseline.Len()))
	return live, nil
}

// swapAndPublish must be called with s.mu held.
func (s *Session) swapAndPublish(live LiveSet) LiveSet {
	s.generation++
	live.generation = s.generation
	s.live.Store(&live)
	s.metrics.ObserveLiveRows(live.Len())
	publish(s.consumer, live)
	return live
}
