package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"
	"github.com/farizadam/airport-app-sub000/internal/payout"

	"github.com/robfig/cron/v3"
)

// ErrSweepInProgress is returned when a sweep is requested while the previous
// one is still running.
var ErrSweepInProgress = errors.New("a reconciliation sweep is already running")

// Resolver settles a single stuck payout. Implemented by the payout service;
// every resolution there is a status-guarded update, so re-running a sweep
// over an already-settled payout is a no-op.
type Resolver interface {
	ResolvePending(ctx context.Context, p payout.Payout) (string, error)
	ResolveProcessing(ctx context.Context, p payout.Payout) (string, error)
	RetryManualRefund(ctx context.Context, p payout.Payout) error
}

// Report counts what one sweep did.
type Report struct {
	StalePending    int `json:"stale_pending"`
	StaleProcessing int `json:"stale_processing"`
	ManualRefunds   int `json:"manual_refunds"`
	Unresolved      int `json:"unresolved"`
}

// Sweeper periodically drives stuck withdrawal sagas to a terminal state:
// stale pending payouts are verified against the processor by their
// idempotency tag, stale processing payouts are re-checked by transfer id,
// and refunds that could not be applied are retried.
type Sweeper struct {
	payouts  payout.Repository
	resolver Resolver

	pendingThreshold time.Duration
	settlementWindow time.Duration

	cron *cron.Cron

	// Only one sweep at a time; a payout must never be compensated by two
	// overlapping passes.
	mu sync.Mutex
}

func New(payouts payout.Repository, resolver Resolver, pendingThreshold, settlementWindow time.Duration) *Sweeper {
	cronLogger := cron.PrintfLogger(printfAdapter{})
	return &Sweeper{
		payouts:          payouts,
		resolver:         resolver,
		pendingThreshold: pendingThreshold,
		settlementWindow: settlementWindow,
		cron:             cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start schedules the sweep and starts the cron loop.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil && !errors.Is(err, ErrSweepInProgress) {
			logger.Errorf("Reconciliation sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	logger.Infof("Reconciliation sweep scheduled: %s", schedule)
	return nil
}

// Stop stops the cron loop and returns once a running sweep has finished.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one reconciliation pass. Also the entry point for the manual
// admin trigger.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	report := &Report{}
	now := time.Now()

	stalePending, err := s.payouts.ListStalePending(ctx, now.Add(-s.pendingThreshold))
	if err != nil {
		return nil, err
	}
	for _, p := range stalePending {
		resolution, err := s.resolver.ResolvePending(ctx, p)
		if err != nil {
			logger.Errorf("Failed to resolve stale pending payout %d: %v", p.ID, err)
		}
		s.record(report, resolution)
		if resolution != "unresolved" && resolution != "noop" {
			report.StalePending++
		}
	}

	staleProcessing, err := s.payouts.ListStaleProcessing(ctx, now.Add(-s.settlementWindow))
	if err != nil {
		return nil, err
	}
	for _, p := range staleProcessing {
		resolution, err := s.resolver.ResolveProcessing(ctx, p)
		if err != nil {
			logger.Errorf("Failed to resolve stale processing payout %d: %v", p.ID, err)
		}
		s.record(report, resolution)
		if resolution != "unresolved" && resolution != "noop" {
			report.StaleProcessing++
		}
	}

	manualRefunds, err := s.payouts.ListManualRefunds(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range manualRefunds {
		if err := s.resolver.RetryManualRefund(ctx, p); err != nil {
			logger.Errorf("Manual refund retry for payout %d failed: %v", p.ID, err)
			report.Unresolved++
			continue
		}
		report.ManualRefunds++
		metrics.RecordReconcileResolution("manual_refund")
	}

	logger.WithFields(map[string]interface{}{
		"stale_pending":    report.StalePending,
		"stale_processing": report.StaleProcessing,
		"manual_refunds":   report.ManualRefunds,
		"unresolved":       report.Unresolved,
	}).Info("Reconciliation sweep finished")

	return report, nil
}

func (s *Sweeper) record(report *Report, resolution string) {
	switch resolution {
	case "unresolved":
		report.Unresolved++
		metrics.RecordReconcileResolution("unresolved")
	case "noop", "":
	default:
		metrics.RecordReconcileResolution(resolution)
	}
}

type printfAdapter struct{}

func (printfAdapter) Printf(format string, args ...interface{}) {
	logger.Infof(format, args...)
}
