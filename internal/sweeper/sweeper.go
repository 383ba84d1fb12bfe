package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/sokoplace/escrow-backend/internal/cron"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/metrics"
)

const defaultBatchSize = 100

// Params configure the auto-release sweeper.
type Params struct {
	Ledger    escrow.Ledger
	Logger    *logger.Logger
	Metrics   *metrics.EscrowMetrics
	BatchSize int
}

// Result summarizes one sweep pass.
type Result struct {
	Scanned  int `json:"scanned_count"`
	Released int `json:"released_count"`
	Blocked  int `json:"blocked_count"`
}

// Sweeper releases escrow records whose holding period lapsed without a
// confirmation. It holds no state of its own; every decision is re-derived
// from the ledger, so overlapping runs only cost redundant reads.
type Sweeper struct {
	ledger    escrow.Ledger
	logg      *logger.Logger
	metrics   *metrics.EscrowMetrics
	batchSize int
	now       func() time.Time
}

// New builds a sweeper.
func New(params Params) (*Sweeper, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sweeper{
		ledger:    params.Ledger,
		logg:      params.Logger,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Run scans due held records in batches and attempts to release each one.
// Batches walk a (release_at, id) cursor, so records blocked by an open
// return request are passed over once and retried on the next pass instead
// of pinning the head of the scan. Per-record failures do not stop the
// sweep; they are combined into the returned error.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	cutoff := s.now().UTC()
	result := &Result{}
	var cursor *escrow.DueCursor
	var errs []error
	for {
		due, err := s.ledger.FindDueHeld(ctx, cutoff, cursor, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("find due escrow records: %w", err)
		}
		if len(due) == 0 {
			break
		}
		for _, record := range due {
			result.Scanned++
			release, err := s.ledger.Release(ctx, escrow.ReleaseInput{
				OrderID: record.OrderID,
				Trigger: escrow.TriggerSweep,
			})
			if err != nil {
				logCtx := s.logg.WithOrderID(ctx, record.OrderID.String())
				s.logg.Error(logCtx, "sweep release failed", err)
				errs = append(errs, fmt.Errorf("release order %s: %w", record.OrderID, err))
				continue
			}
			if release.Blocked {
				result.Blocked++
				continue
			}
			if release.Released {
				result.Released++
			}
		}
		last := due[len(due)-1]
		cursor = &escrow.DueCursor{ReleaseAt: last.ReleaseAt, ID: last.ID}
		if len(due) < s.batchSize {
			break
		}
	}
	if s.metrics != nil {
		s.metrics.AddScanned(result.Scanned)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned":  result.Scanned,
		"released": result.Released,
		"blocked":  result.Blocked,
	})
	s.logg.Info(logCtx, "escrow sweep complete")
	return result, multierr.Combine(errs...)
}

// Job adapts the sweeper to the scheduler.
type Job struct {
	sweeper *Sweeper
}

// NewJob wraps a sweeper for the cron registry.
func NewJob(sweeper *Sweeper) (cron.Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &Job{sweeper: sweeper}, nil
}

func (j *Job) Name() string { return "escrow-sweep" }

func (j *Job) Run(ctx context.Context) error {
	_, err := j.sweeper.Run(ctx)
	return err
}
