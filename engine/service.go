package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RUN SERVICE - Operations exposed to collaborators
// =============================================================================

// Dispatcher executes launched runs in the background.
type Dispatcher interface {
	Submit(id RunID) error
	Running(id RunID) bool
	Abort(id RunID) bool
}

type RunService struct {
	Runs       RunTxStore
	Companies  CompanySource
	Registry   *Registry
	Dispatcher Dispatcher
	Now        func() time.Time
}

func (s *RunService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RunStatus is the state and progress of a run as seen by callers.
type RunStatus struct {
	Run     PayRun
	Running bool
	Outcome Outcome // Empty until the run is finalized
}

// CreateRun opens a draft run. Only one active run may exist for a
// subsidiary over overlapping periods; the check and the insert share one
// transaction.
func (s *RunService) CreateRun(ctx context.Context, subsidiary SubsidiaryID, period Period) (PayRun, error) {
	if err := period.Validate(); err != nil {
		return PayRun{}, err
	}
	if _, err := s.Companies.LoadCompanySettings(ctx, subsidiary); err != nil {
		return PayRun{}, err
	}

	now := s.now()
	run := PayRun{
		ID:           RunID(uuid.NewString()),
		SubsidiaryID: subsidiary,
		Period:       period,
		State:        RunDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.Runs.WithTx(ctx, func(w RunWriter) error {
		existing, err := w.ListRuns(ctx, RunFilter{SubsidiaryID: subsidiary, States: ActiveRunStates})
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Period.Overlaps(period) {
				return fmt.Errorf("%w: run %s is %s", ErrRunConflict, r.ID, r.State)
			}
		}
		return w.CreateRun(ctx, run)
	})
	if err != nil {
		return PayRun{}, err
	}
	return run, nil
}

// ConfigureConcepts replaces the concepts of a draft run.
func (s *RunService) ConfigureConcepts(ctx context.Context, id RunID, concepts []ConceptDefinition) error {
	if err := ValidateConcepts(concepts); err != nil {
		return err
	}
	if err := s.Registry.Validate(concepts); err != nil {
		return err
	}
	sorted := SortConcepts(concepts)
	return s.Runs.WithTx(ctx, func(w RunWriter) error {
		if err := editable(ctx, w, id); err != nil {
			return err
		}
		return w.SaveRunConcepts(ctx, id, sorted)
	})
}

// DeleteRun removes a draft run.
func (s *RunService) DeleteRun(ctx context.Context, id RunID) error {
	return s.Runs.WithTx(ctx, func(w RunWriter) error {
		if err := editable(ctx, w, id); err != nil {
			return err
		}
		return w.DeleteRun(ctx, id)
	})
}

func editable(ctx context.Context, w RunWriter, id RunID) error {
	run, err := w.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !run.Editable() {
		return ErrRunNotEditable
	}
	return nil
}

// LaunchCalculation starts or resumes a run. Launching a run that is already
// executing or queued is a no-op, so the call is idempotent. Runs that are
// neither draft nor halted in_progress are rejected.
func (s *RunService) LaunchCalculation(ctx context.Context, id RunID) (PayRun, error) {
	var (
		run    PayRun
		submit bool
	)
	err := s.Runs.WithTx(ctx, func(w RunWriter) error {
		var err error
		run, err = w.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if s.Dispatcher.Running(id) || (run.State == RunInProgress && !run.Halted) {
			return nil
		}
		if !run.Launchable() {
			return fmt.Errorf("%w: run is %s", ErrRunNotLaunchable, run.State)
		}

		if run.State == RunDraft {
			if err := run.Transition(RunInProgress, s.now()); err != nil {
				return err
			}
		}
		run.Halted = false
		run.UpdatedAt = s.now()
		if err := w.SaveRun(ctx, run); err != nil {
			return err
		}
		submit = true
		return nil
	})
	if err != nil {
		return PayRun{}, err
	}
	if submit {
		if err := s.Dispatcher.Submit(id); err != nil {
			return PayRun{}, err
		}
	}
	return run, nil
}

// Abort asks the executing job to stop after its current batch.
func (s *RunService) Abort(ctx context.Context, id RunID) error {
	if _, err := s.Runs.GetRun(ctx, id); err != nil {
		return err
	}
	if !s.Dispatcher.Abort(id) {
		return ErrRunNotRunning
	}
	return nil
}

func (s *RunService) GetRunStatus(ctx context.Context, id RunID) (RunStatus, error) {
	run, err := s.Runs.GetRun(ctx, id)
	if err != nil {
		return RunStatus{}, err
	}
	status := RunStatus{Run: run, Running: s.Dispatcher.Running(id)}
	if run.Summary != nil {
		status.Outcome = run.Summary.Outcome
	}
	return status, nil
}

func (s *RunService) ListRuns(ctx context.Context, filter RunFilter) ([]PayRun, error) {
	return s.Runs.ListRuns(ctx, filter)
}

func (s *RunService) GetDetail(ctx context.Context, id RunID, employee EmployeeID) (PayDetail, error) {
	if _, err := s.Runs.GetRun(ctx, id); err != nil {
		return PayDetail{}, err
	}
	return s.Runs.GetDetail(ctx, id, employee)
}

func (s *RunService) ListDetails(ctx context.Context, id RunID) ([]PayDetail, error) {
	if _, err := s.Runs.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.Runs.ListDetails(ctx, id)
}

func (s *RunService) ListFailures(ctx context.Context, id RunID) ([]EmployeeFailure, error) {
	if _, err := s.Runs.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.Runs.ListFailures(ctx, id)
}

// Approve records who approved a calculated run.
func (s *RunService) Approve(ctx context.Context, id RunID, approver string) (PayRun, error) {
	return s.update(ctx, id, func(run *PayRun) error {
		return run.Approve(approver, s.now())
	})
}

func (s *RunService) MarkPaid(ctx context.Context, id RunID) (PayRun, error) {
	return s.update(ctx, id, func(run *PayRun) error {
		return run.Transition(RunPaid, s.now())
	})
}

// Cancel closes a run. A draft becomes cancelled; an in_progress or
// calculated run becomes cancelled_for_correction, signalling that a
// replacement run should be created. An executing job is aborted first.
func (s *RunService) Cancel(ctx context.Context, id RunID, reason string) (PayRun, error) {
	s.Dispatcher.Abort(id)
	return s.update(ctx, id, func(run *PayRun) error {
		next := RunCancelledForCorrection
		if run.State == RunDraft {
			next = RunCancelled
		}
		if err := run.Transition(next, s.now()); err != nil {
			return err
		}
		run.CancelReason = reason
		return nil
	})
}

func (s *RunService) update(ctx context.Context, id RunID, fn func(*PayRun) error) (PayRun, error) {
	var updated PayRun
	err := s.Runs.WithTx(ctx, func(w RunWriter) error {
		run, err := w.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&run); err != nil {
			return err
		}
		if err := w.SaveRun(ctx, run); err != nil {
			return err
		}
		updated = run
		return nil
	})
	return updated, err
}
