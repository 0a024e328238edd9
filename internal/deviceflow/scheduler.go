package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/metrics"
)

// Outcome is the result of advancing one pending flow during a sweep.
type Outcome string

const (
	OutcomePending        Outcome = "pending"
	OutcomeCompleted      Outcome = "completed"
	OutcomeDenied         Outcome = "denied"
	OutcomeExpired        Outcome = "expired"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeStoreError     Outcome = "store_error"
)

// SchedulerConfig tunes the sweep. Zero values take the defaults.
type SchedulerConfig struct {
	Interval           time.Duration
	PollTimeout        time.Duration
	MaxConcurrentPolls int
	CompletionTTL      time.Duration
	FailureThreshold   int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.MaxConcurrentPolls <= 0 {
		c.MaxConcurrentPolls = 8
	}
	if c.CompletionTTL <= 0 {
		c.CompletionTTL = 10 * time.Minute
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	return c
}

// SweepResult counts the outcomes of one sweep.
type SweepResult struct {
	Outcomes map[Outcome]int
	// Err is set when the store could not be listed; no flow was advanced.
	Err error
}

// Total returns the number of flows the sweep looked at.
func (r SweepResult) Total() int {
	n := 0
	for _, c := range r.Outcomes {
		n += c
	}
	return n
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler periodically polls the provider for every pending flow and
// records completions for the clients waiting on them.
type Scheduler struct {
	store  Store
	client provider.Client
	cfg    SchedulerConfig
	now    func() time.Time
	log    *zap.SugaredLogger

	failMu   sync.Mutex
	failures map[string]int

	sweepMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(store Store, client provider.Client, cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		client:   client,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		log:      logger.With("component", "deviceflow-scheduler"),
		failures: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs sweeps every Interval until ctx is cancelled or Stop is called.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)
	s.log.Infof("device flow scheduler started (interval=%s poll_timeout=%s)", s.cfg.Interval, s.cfg.PollTimeout)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a stop signal must not cut provider calls short
			s.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// Stop ends the ticker loop and waits for a sweep in progress to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.log.Info("device flow scheduler stopped")
}

// Sweep advances every pending flow once. Flows are polled concurrently and
// a failure on one flow never affects the others.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := time.Now()
	defer func() { metrics.DeviceFlowSweepDuration.Observe(time.Since(started).Seconds()) }()

	flows, err := s.store.ListAll(ctx)
	if err != nil {
		s.log.Errorf("failed to list pending device flows: %v", err)
		return SweepResult{Outcomes: map[Outcome]int{}, Err: err}
	}
	metrics.DeviceFlowPending.Set(float64(len(flows)))

	outcomes := make([]Outcome, len(flows))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentPolls)
	for i := range flows {
		g.Go(func() error {
			outcomes[i] = s.advance(ctx, flows[i])
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Outcomes: make(map[Outcome]int)}
	for _, o := range outcomes {
		res.Outcomes[o]++
		metrics.DeviceFlowPolls.WithLabelValues(string(o)).Inc()
	}
	s.pruneFailures(flows)
	if len(flows) > 0 {
		s.log.Debugw("sweep finished", "flows", len(flows), "completed", res.Outcomes[OutcomeCompleted],
			"pending", res.Outcomes[OutcomePending], "expired", res.Outcomes[OutcomeExpired])
	}
	return res
}

func (s *Scheduler) advance(ctx context.Context, f models.PendingDeviceFlow) (outcome Outcome) {
	code := f.DeviceCode
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic while polling device code %s: %v", redact(code), r)
			s.recordFailure(code, fmt.Errorf("panic: %v", r))
			outcome = OutcomeProtocolError
		}
	}()

	now := s.now()
	if f.Expired(now) {
		if err := s.store.Delete(ctx, code); err != nil {
			s.log.Errorf("failed to delete expired device code %s: %v", redact(code), err)
			return OutcomeStoreError
		}
		s.resetFailures(code)
		s.log.Infof("device code %s expired at %s; dropped", redact(code), f.ExpiresAt.Format(time.RFC3339))
		return OutcomeExpired
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()
	tok, err := s.client.PollForToken(pctx, code)
	switch {
	case err == nil:
		return s.finish(ctx, &models.DeviceFlowCompletion{
			DeviceCode:  code,
			Status:      models.CompletionStatusCompleted,
			AccessToken: tok.AccessToken,
			TokenType:   tok.TokenType,
			Scope:       provider.TokenScope(tok),
			CompletedAt: now,
			ExpiresAt:   now.Add(s.cfg.CompletionTTL),
		}, OutcomeCompleted)
	case provider.IsPending(err):
		s.resetFailures(code)
		return OutcomePending
	case errors.Is(err, provider.ErrAccessDenied):
		return s.finish(ctx, &models.DeviceFlowCompletion{
			DeviceCode:  code,
			Status:      models.CompletionStatusDenied,
			CompletedAt: now,
			ExpiresAt:   now.Add(s.cfg.CompletionTTL),
		}, OutcomeDenied)
	case errors.Is(err, provider.ErrExpiredToken):
		if derr := s.store.Delete(ctx, code); derr != nil {
			s.log.Errorf("failed to delete expired device code %s: %v", redact(code), derr)
			return OutcomeStoreError
		}
		s.resetFailures(code)
		s.log.Infof("provider reports device code %s expired; dropped", redact(code))
		return OutcomeExpired
	case provider.IsTransport(err):
		s.recordFailure(code, err)
		return OutcomeTransportError
	default:
		s.recordFailure(code, err)
		return OutcomeProtocolError
	}
}

// finish stores the completion first so a crash in between leaves the flow
// pending rather than losing the token.
func (s *Scheduler) finish(ctx context.Context, c *models.DeviceFlowCompletion, outcome Outcome) Outcome {
	if err := s.store.SaveCompletion(ctx, c); err != nil {
		s.log.Errorf("failed to save completion for device code %s: %v", redact(c.DeviceCode), err)
		return OutcomeStoreError
	}
	if err := s.store.Delete(ctx, c.DeviceCode); err != nil {
		s.log.Warnf("completion saved but pending device code %s not deleted: %v", redact(c.DeviceCode), err)
	}
	s.resetFailures(c.DeviceCode)
	s.log.Infof("device code %s %s", redact(c.DeviceCode), c.Status)
	return outcome
}

func (s *Scheduler) recordFailure(code string, err error) {
	s.failMu.Lock()
	s.failures[code]++
	n := s.failures[code]
	s.failMu.Unlock()

	if n%s.cfg.FailureThreshold == 0 {
		metrics.DeviceFlowSustainedFailures.Inc()
		s.log.Errorw("provider keeps failing for pending device code", "device_code", redact(code), "consecutive_failures", n, "error", err.Error())
		return
	}
	s.log.Warnf("polling device code %s failed (attempt %d): %v", redact(code), n, err)
}

func (s *Scheduler) resetFailures(code string) {
	s.failMu.Lock()
	delete(s.failures, code)
	s.failMu.Unlock()
}

// Failures returns the consecutive failure count for a device code.
func (s *Scheduler) Failures(code string) int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failures[code]
}

// pruneFailures forgets counters of codes deleted by other instances.
func (s *Scheduler) pruneFailures(seen []models.PendingDeviceFlow) {
	keep := make(map[string]struct{}, len(seen))
	for _, f := range seen {
		keep[f.DeviceCode] = struct{}{}
	}
	s.failMu.Lock()
	defer s.failMu.Unlock()
	for code := range s.failures {
		if _, ok := keep[code]; !ok {
			delete(s.failures, code)
		}
	}
}

// redact shortens a device code for logs.
func redact(code string) string {
	if len(code) <= 6 {
		return code
	}
	return code[:6] + "..."
}
