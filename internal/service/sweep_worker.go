package service

import (
	"context"
	"sync"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/rs/zerolog"
)

// SweepWorker is a background worker that periodically runs the two
// time-driven batch jobs the core requires: expiring automatic-release
// holds past their expires_at (spec.md §4.2 process_expired_holds) and
// timing out overdue workflows (spec.md §4.5 bulk_timeout_expired). A
// TransactionApproval workflow that times out also marks its gated
// transaction Failed with reason "approval_timeout", per spec.md §4.5.
type SweepWorker struct {
	holds     *HoldService
	workflows *WorkflowService
	posting   *PostingService
	logger    zerolog.Logger
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// SweepWorkerConfig holds configuration for the sweep worker.
type SweepWorkerConfig struct {
	Interval time.Duration // How often to run both sweeps.
}

// DefaultSweepWorkerConfig returns sensible defaults.
func DefaultSweepWorkerConfig() SweepWorkerConfig {
	return SweepWorkerConfig{Interval: 5 * time.Minute}
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(holds *HoldService, workflows *WorkflowService, posting *PostingService, logger zerolog.Logger, config SweepWorkerConfig) *SweepWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepWorkerConfig().Interval
	}
	return &SweepWorker{
		holds:     holds,
		workflows: workflows,
		posting:   posting,
		logger:    logger.With().Str("component", "sweep_worker").Logger(),
		interval:  config.Interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *SweepWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("starting sweep worker")
	go w.run(ctx)
}

// Stop gracefully stops the sweep worker.
func (w *SweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("sweep worker stopped")
}

func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce executes both sweeps once, independently — a failure in one
// never blocks the other.
func (w *SweepWorker) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.sweepExpiredHolds(ctx, now)
	w.sweepWorkflowTimeouts(ctx, now)
}

func (w *SweepWorker) sweepExpiredHolds(ctx context.Context, asOf time.Time) {
	summary, err := w.holds.ProcessExpiredHolds(ctx, asOf)
	if err != nil {
		w.logger.Error().Err(err).Msg("hold expiry sweep failed")
		return
	}
	if summary.ProcessedCount > 0 || len(summary.Errors) > 0 {
		w.logger.Info().
			Int("released", summary.ProcessedCount).
			Str("total_amount", summary.TotalAmount.String()).
			Int("errors", len(summary.Errors)).
			Msg("hold expiry sweep completed")
	}
}

func (w *SweepWorker) sweepWorkflowTimeouts(ctx context.Context, asOf time.Time) {
	timedOut, err := w.workflows.ProcessTimeouts(ctx, asOf)
	if err != nil {
		w.logger.Error().Err(err).Msg("workflow timeout sweep failed")
		return
	}
	if len(timedOut) == 0 {
		return
	}
	w.logger.Info().Int("timed_out", len(timedOut)).Msg("workflow timeout sweep completed")

	system := domain.PersonID(domain.NilEntityID)
	for _, wf := range timedOut {
		if wf.WorkflowType != domain.WorkflowTypeTransactionApproval || wf.TransactionID == nil {
			continue
		}
		if w.posting == nil {
			continue
		}
		if _, err := w.posting.MarkFailed(ctx, *wf.TransactionID, "approval_timeout", system); err != nil {
			w.logger.Error().
				Err(err).
				Str("workflow_id", wf.ID.String()).
				Str("transaction_id", wf.TransactionID.String()).
				Msg("failed to mark transaction Failed after workflow timeout")
		}
	}
}
