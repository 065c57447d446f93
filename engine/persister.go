package engine

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// DETAIL PERSISTER - Pipeline sink, one transaction per batch
// =============================================================================

type Persister struct {
	Store RunTxStore
	Now   func() time.Time
}

func (p *Persister) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// CommitBatch writes the details and failures of one batch and advances the
// run's progress in a single transaction. Any error rolls back the whole
// batch; batches committed earlier are untouched. Successful computations
// are marked persisted in place.
func (p *Persister) CommitBatch(ctx context.Context, runID RunID, batch []EmployeeComputation) (PayRun, error) {
	var committed PayRun
	err := p.Store.WithTx(ctx, func(w RunWriter) error {
		run, err := w.GetRun(ctx, runID)
		if err != nil {
			return &DataIntegrityError{RunID: runID, Err: err}
		}
		if run.State != RunInProgress {
			return &DataIntegrityError{RunID: runID, Err: fmt.Errorf("%w: run is %s", ErrInvalidTransition, run.State)}
		}

		progress := run.Progress
		for _, c := range batch {
			switch c.State {
			case EmployeeAccumulated:
				exists, err := w.EmployeeExists(ctx, c.EmployeeID)
				if err != nil {
					return err
				}
				if !exists {
					return &DataIntegrityError{RunID: runID, EmployeeID: c.EmployeeID, Err: ErrEmployeeNotFound}
				}
				if err := w.InsertDetail(ctx, c.Detail); err != nil {
					return err
				}
				progress.Succeeded++
				progress.TotalIncome = progress.TotalIncome.Add(c.Detail.TotalIncome)
				progress.TotalDeductions = progress.TotalDeductions.Add(c.Detail.TotalDeductions)
				progress.TotalEmployerContributions = progress.TotalEmployerContributions.Add(c.Detail.TotalEmployerContributions)
				progress.TotalNet = progress.TotalNet.Add(c.Detail.NetToPay)
			case EmployeeFailed:
				if err := w.InsertFailure(ctx, runID, c.Failure()); err != nil {
					return err
				}
				progress.Failed++
			default:
				return fmt.Errorf("employee %s reached the sink in state %s", c.EmployeeID, c.State)
			}
			progress.Processed++
			progress.LastEmployeeKey = c.EmployeeID
		}
		progress.Batches++

		run.Progress = progress
		run.UpdatedAt = p.now()
		if err := w.SaveRun(ctx, run); err != nil {
			return err
		}
		committed = run
		return nil
	})
	if err != nil {
		return PayRun{}, err
	}

	for i := range batch {
		if batch[i].State == EmployeeAccumulated {
			batch[i].State = EmployeePersisted
		}
	}
	return committed, nil
}

// Finalize moves the run from in_progress to calculated (or failed) and
// writes its summary.
func (p *Persister) Finalize(ctx context.Context, runID RunID) (PayRun, error) {
	var final PayRun
	err := p.Store.WithTx(ctx, func(w RunWriter) error {
		run, err := w.GetRun(ctx, runID)
		if err != nil {
			return &DataIntegrityError{RunID: runID, Err: err}
		}
		if err := run.Finalize(p.now()); err != nil {
			return err
		}
		run.LastError = ""
		if err := w.SaveRun(ctx, run); err != nil {
			return err
		}
		final = run
		return nil
	})
	return final, err
}

// Halt leaves an in_progress run resumable and records why it stopped. Runs
// that already left in_progress (e.g. cancelled meanwhile) are returned as is.
func (p *Persister) Halt(ctx context.Context, runID RunID, cause error) (PayRun, error) {
	return p.stopInProgress(ctx, runID, func(run *PayRun) error {
		run.Halted = true
		run.LastError = cause.Error()
		run.UpdatedAt = p.now()
		return nil
	})
}

// Fail moves an in_progress run to failed before any batch ran, e.g. on a
// configuration error. Like Halt it leaves runs that moved on untouched.
func (p *Persister) Fail(ctx context.Context, runID RunID, cause error) (PayRun, error) {
	return p.stopInProgress(ctx, runID, func(run *PayRun) error {
		if err := run.Transition(RunFailed, p.now()); err != nil {
			return err
		}
		run.LastError = cause.Error()
		run.Summary = &RunSummary{Outcome: OutcomeFailed}
		return nil
	})
}

// stopInProgress applies fn to the run if it is still in_progress when read
// inside the transaction.
func (p *Persister) stopInProgress(ctx context.Context, runID RunID, fn func(*PayRun) error) (PayRun, error) {
	var out PayRun
	err := p.Store.WithTx(ctx, func(w RunWriter) error {
		run, err := w.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		out = run
		if run.State != RunInProgress {
			return nil
		}
		if err := fn(&run); err != nil {
			return err
		}
		if err := w.SaveRun(ctx, run); err != nil {
			return err
		}
		out = run
		return nil
	})
	if err != nil {
		return PayRun{}, err
	}
	return out, nil
}
