/*
job.go - Chunked calculation pipeline for one pay run

PURPOSE:
  Drives a pay run end to end: Selector -> ContextBuilder -> Orchestrator ->
  Persister, one batch at a time.

PIPELINE:
  preflight   Load run, concepts and company settings. ConfigurationError or
              an unknown subsidiary fails the run before any write.
  read        Selector yields the next ChunkSize employees.
  compute     Build + compute each employee on a bounded worker pool.
              Results keep selector order. Employee-scoped errors become
              recorded failures; anything else fails the whole batch.
  write       One transaction per batch (Persister.CommitBatch).
  finalize    in_progress -> calculated (or failed) with the summary.

  Read and compute are retried together with exponential backoff when a
  collaborator reports a TransientIOError. When retries run out, or a write
  fails, the job halts: the run stays in_progress with Halted set and can be
  relaunched from Progress.LastEmployeeKey.

CANCELLATION:
  AbortFlag and ctx are checked between batches only, never mid-employee.

SEE ALSO:
  - persister.go: Batch transactions
  - service.go: LaunchCalculation
  - api/scheduler.go: Background execution
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AbortFlag is a cooperative cancellation signal, checked between batches.
type AbortFlag struct {
	requested atomic.Bool
}

func (f *AbortFlag) Request() { f.requested.Store(true) }

// Requested is safe on a nil flag.
func (f *AbortFlag) Requested() bool { return f != nil && f.requested.Load() }

// =============================================================================
// JOB
// =============================================================================

const (
	DefaultChunkSize            = 50
	DefaultWorkers              = 4
	DefaultMaxRetries           = 3
	DefaultRetryInitialInterval = 200 * time.Millisecond
)

type Job struct {
	Runs      RunTxStore
	Concepts  ConceptSource
	Companies CompanySource
	Employees EmployeeSource
	Builder   *ContextBuilder
	Registry  *Registry
	Persister *Persister

	ChunkSize            int
	Workers              int
	MaxRetries           int
	RetryInitialInterval time.Duration

	Logger *zap.Logger
}

func (j *Job) logger() *zap.Logger {
	if j.Logger == nil {
		return zap.NewNop()
	}
	return j.Logger
}

func (j *Job) chunkSize() int {
	if j.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return j.ChunkSize
}

func (j *Job) workers() int {
	if j.Workers <= 0 {
		return DefaultWorkers
	}
	return j.Workers
}

// Execute runs (or resumes) the calculation of an in_progress run and
// returns the run as last persisted. A halted run is returned together with
// the error that halted it.
func (j *Job) Execute(ctx context.Context, runID RunID, abort *AbortFlag) (PayRun, error) {
	log := j.logger().With(zap.String("run_id", string(runID)))

	run, err := j.Runs.GetRun(ctx, runID)
	if err != nil {
		return PayRun{}, err
	}
	if run.State != RunInProgress {
		return run, fmt.Errorf("%w: run is %s", ErrRunNotLaunchable, run.State)
	}

	concepts, company, err := j.preflight(ctx, run)
	if err != nil {
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrSubsidiaryNotFound) || errors.Is(err, ErrInvalidPeriod) {
			log.Error("pay run failed preflight", zap.Error(err))
			failed, ferr := j.Persister.Fail(ctx, runID, err)
			if ferr != nil {
				return run, errors.Join(err, ferr)
			}
			return failed, err
		}
		return j.halt(ctx, log, runID, err)
	}

	selector, err := NewSelector(j.Employees, run.SubsidiaryID, run.Period, j.chunkSize())
	if err != nil {
		return j.halt(ctx, log, runID, err)
	}
	selector.After(run.Progress.LastEmployeeKey)
	if run.Progress.LastEmployeeKey != "" {
		log.Info("resuming pay run", zap.String("after", string(run.Progress.LastEmployeeKey)))
	}

	orch := &Orchestrator{Registry: j.Registry}
	for {
		if abort.Requested() {
			return j.halt(ctx, log, runID, ErrAborted)
		}
		if err := ctx.Err(); err != nil {
			return j.halt(ctx, log, runID, err)
		}

		batch, err := j.readAndCompute(ctx, selector, run, company, concepts, orch)
		if err != nil {
			return j.halt(ctx, log, runID, err)
		}
		if len(batch) == 0 {
			break
		}

		run, err = j.Persister.CommitBatch(ctx, runID, batch)
		if err != nil {
			// The batch is rolled back; reposition on the last committed key.
			return j.halt(ctx, log, runID, err)
		}
		log.Debug("batch committed",
			zap.Int("batch", run.Progress.Batches),
			zap.Int("processed", run.Progress.Processed),
			zap.Int("failed", run.Progress.Failed),
		)
	}

	final, err := j.Persister.Finalize(ctx, runID)
	if err != nil {
		return j.halt(ctx, log, runID, err)
	}
	log.Info("pay run calculated",
		zap.String("state", string(final.State)),
		zap.String("outcome", string(final.Summary.Outcome)),
		zap.Int("employees", final.TotalEmployees),
		zap.Int("failed", final.Summary.Failed),
	)
	return final, nil
}

func (j *Job) preflight(ctx context.Context, run PayRun) ([]ConceptDefinition, CompanySettings, error) {
	if err := run.Period.Validate(); err != nil {
		return nil, CompanySettings{}, err
	}

	var (
		concepts []ConceptDefinition
		company  CompanySettings
	)
	err := j.retry(ctx, func() error {
		var err error
		concepts, err = j.Concepts.LoadConfiguredConcepts(ctx, run.ID)
		if err != nil {
			return asTransient("load configured concepts", err)
		}
		company, err = j.Companies.LoadCompanySettings(ctx, run.SubsidiaryID)
		if err != nil {
			return asTransient("load company settings", err)
		}
		return nil
	})
	if err != nil {
		return nil, CompanySettings{}, err
	}

	if len(concepts) == 0 {
		return nil, CompanySettings{}, &ConfigurationError{Reason: "no concepts configured for run"}
	}
	if err := ValidateConcepts(concepts); err != nil {
		return nil, CompanySettings{}, err
	}
	if err := j.Registry.Validate(concepts); err != nil {
		return nil, CompanySettings{}, err
	}
	return SortConcepts(concepts), company.WithDefaults(), nil
}

// readAndCompute pulls the next batch from the selector and computes it.
// A retry rewinds the selector to where the attempt started.
func (j *Job) readAndCompute(ctx context.Context, sel *Selector, run PayRun, company CompanySettings, concepts []ConceptDefinition, orch *Orchestrator) ([]EmployeeComputation, error) {
	start := sel.Position()
	var batch []EmployeeComputation
	err := j.retry(ctx, func() error {
		sel.After(start)
		ids, err := sel.NextChunk(ctx, j.chunkSize())
		if err != nil {
			return err
		}
		batch, err = j.computeBatch(ctx, ids, run, company, concepts, orch)
		return err
	})
	return batch, err
}

func (j *Job) computeBatch(ctx context.Context, ids []EmployeeID, run PayRun, company CompanySettings, concepts []ConceptDefinition, orch *Orchestrator) ([]EmployeeComputation, error) {
	results := make([]EmployeeComputation, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers())
	for i, id := range ids {
		g.Go(func() error {
			c := EmployeeComputation{EmployeeID: id, State: EmployeeInitialized}

			pctx, err := j.Builder.Build(gCtx, run, id, company, concepts)
			if err == nil {
				c.State = EmployeeComputing
				c.Detail, err = orch.Compute(pctx)
			}
			switch {
			case err == nil:
				c.State = EmployeeAccumulated
			case IsEmployeeScoped(err):
				c.State = EmployeeFailed
				c.Err = err
				j.logger().Warn("employee calculation failed",
					zap.String("run_id", string(run.ID)),
					zap.String("employee_id", string(id)),
					zap.Error(err),
				)
			default:
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// retry re-runs op with exponential backoff while it fails with a
// TransientIOError. Any other error stops immediately.
func (j *Job) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = j.RetryInitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetryInitialInterval
	}
	maxRetries := j.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx), func(err error, wait time.Duration) {
		j.logger().Warn("transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

// halt records the stop even when ctx is already cancelled.
func (j *Job) halt(ctx context.Context, log *zap.Logger, runID RunID, cause error) (PayRun, error) {
	log.Warn("pay run halted", zap.Error(cause))
	run, err := j.Persister.Halt(context.WithoutCancel(ctx), runID, cause)
	if err != nil {
		return PayRun{}, errors.Join(cause, err)
	}
	return run, cause
}
