/*
run.go - Pay run aggregate and lifecycle

PURPOSE:
  PayRun is the aggregate root of one payroll execution for a subsidiary and
  period. It carries the lifecycle state, the resumable progress position and,
  once calculated, the finalized summary.

STATE MACHINE:
  draft ──► in_progress ──► calculated ──► approved ──► paid
    │            │               │
    ▼            ├──► failed     │
  cancelled      └──► cancelled_for_correction ◄──┘

  Only draft is editable or deletable. in_progress rejects structural edits.
  calculated and later are append-only with respect to approval metadata.

RESUMABILITY:
  A batch failure or abort leaves the run in_progress with Halted set.
  Progress.LastEmployeeKey is the last employee of the last committed batch;
  a relaunch continues strictly after it.

SEE ALSO:
  - persister.go: The only writer of Progress and Summary
  - service.go: Exposed lifecycle operations
*/
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RUN STATE
// =============================================================================

type RunState string

const (
	RunDraft                  RunState = "draft"
	RunInProgress             RunState = "in_progress"
	RunCalculated             RunState = "calculated"
	RunApproved               RunState = "approved"
	RunPaid                   RunState = "paid"
	RunCancelled              RunState = "cancelled"
	RunCancelledForCorrection RunState = "cancelled_for_correction"
	RunFailed                 RunState = "failed"
)

var runTransitions = map[RunState][]RunState{
	RunDraft:      {RunInProgress, RunCancelled},
	RunInProgress: {RunCalculated, RunFailed, RunCancelledForCorrection},
	RunCalculated: {RunApproved, RunCancelledForCorrection},
	RunApproved:   {RunPaid},
}

// CanTransition reports whether s may move to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active states count toward the one-run-per-subsidiary-and-period rule.
func (s RunState) Active() bool {
	switch s {
	case RunDraft, RunInProgress, RunCalculated, RunApproved:
		return true
	}
	return false
}

func (s RunState) Terminal() bool {
	return len(runTransitions[s]) == 0
}

func (s RunState) Valid() bool {
	switch s {
	case RunDraft, RunInProgress, RunCalculated, RunApproved, RunPaid,
		RunCancelled, RunCancelledForCorrection, RunFailed:
		return true
	}
	return false
}

// ActiveRunStates lists every state counted by Active.
var ActiveRunStates = []RunState{RunDraft, RunInProgress, RunCalculated, RunApproved}

// =============================================================================
// OUTCOME AND FAILURES
// =============================================================================

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailed         Outcome = "failed"
)

// OutcomeOf classifies a run from its success and failure counts. A run that
// selected nobody is a success.
func OutcomeOf(succeeded, failed int) Outcome {
	switch {
	case failed == 0:
		return OutcomeSuccess
	case succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartialSuccess
	}
}

// EmployeeFailure is one employee that produced no detail, with the reason.
type EmployeeFailure struct {
	EmployeeID  EmployeeID  `json:"employee_id"`
	ConceptCode ConceptCode `json:"concept_code,omitempty"`
	Reason      string      `json:"reason"`
}

// =============================================================================
// PROGRESS AND SUMMARY
// =============================================================================

// Progress is updated once per committed batch.
type Progress struct {
	Processed       int        `json:"processed"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	Batches         int        `json:"batches"`
	LastEmployeeKey EmployeeID `json:"last_employee_key,omitempty"`

	TotalIncome                decimal.Decimal `json:"total_income"`
	TotalDeductions            decimal.Decimal `json:"total_deductions"`
	TotalEmployerContributions decimal.Decimal `json:"total_employer_contributions"`
	TotalNet                   decimal.Decimal `json:"total_net"`
}

// RunSummary is written once, when the run leaves in_progress for calculated
// or failed.
type RunSummary struct {
	Outcome                    Outcome         `json:"outcome"`
	Succeeded                  int             `json:"succeeded"`
	Failed                     int             `json:"failed"`
	TotalIncome                decimal.Decimal `json:"total_income"`
	TotalDeductions            decimal.Decimal `json:"total_deductions"`
	TotalEmployerContributions decimal.Decimal `json:"total_employer_contributions"`
	TotalNet                   decimal.Decimal `json:"total_net"`
}

// =============================================================================
// PAY RUN
// =============================================================================

type PayRun struct {
	ID             RunID
	SubsidiaryID   SubsidiaryID
	Period         Period
	State          RunState
	Progress       Progress
	Summary        *RunSummary
	TotalEmployees int

	// Halted marks an in_progress run whose job stopped early. LastError
	// holds the reason.
	Halted    bool
	LastError string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CalculatedAt *time.Time
	ApprovedAt   *time.Time
	ApprovedBy   string
	PaidAt       *time.Time
	CancelledAt  *time.Time
	CancelReason string
}

// Launchable runs are draft, or in_progress and halted.
func (r PayRun) Launchable() bool {
	return r.State == RunDraft || (r.State == RunInProgress && r.Halted)
}

func (r PayRun) Editable() bool {
	return r.State == RunDraft
}

// Transition moves the run to next and stamps the matching timestamp.
func (r *PayRun) Transition(next RunState, at time.Time) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}
	r.State = next
	r.UpdatedAt = at
	switch next {
	case RunInProgress:
		r.StartedAt = &at
	case RunCalculated:
		r.CalculatedAt = &at
	case RunPaid:
		r.PaidAt = &at
	case RunCancelled, RunCancelledForCorrection:
		r.CancelledAt = &at
	}
	if next != RunInProgress {
		r.Halted = false
	}
	return nil
}

// Approve moves a calculated run to approved with approver metadata.
func (r *PayRun) Approve(by string, at time.Time) error {
	if by == "" {
		return fmt.Errorf("%w: approver is required", ErrInvalidTransition)
	}
	if err := r.Transition(RunApproved, at); err != nil {
		return err
	}
	r.ApprovedBy = by
	r.ApprovedAt = &at
	return nil
}

// Finalize closes an in_progress run from its accumulated progress. It moves
// to failed when every processed employee failed, otherwise to calculated.
func (r *PayRun) Finalize(at time.Time) error {
	p := r.Progress
	outcome := OutcomeOf(p.Succeeded, p.Failed)
	next := RunCalculated
	if outcome == OutcomeFailed {
		next = RunFailed
	}
	if err := r.Transition(next, at); err != nil {
		return err
	}
	r.TotalEmployees = p.Processed
	r.Summary = &RunSummary{
		Outcome:                    outcome,
		Succeeded:                  p.Succeeded,
		Failed:                     p.Failed,
		TotalIncome:                p.TotalIncome,
		TotalDeductions:            p.TotalDeductions,
		TotalEmployerContributions: p.TotalEmployerContributions,
		TotalNet:                   p.TotalNet,
	}
	return nil
}

// =============================================================================
// EMPLOYEE COMPUTATION - Per-employee state machine
// =============================================================================

type EmployeeState string

const (
	EmployeeInitialized EmployeeState = "initialized"
	EmployeeComputing   EmployeeState = "computing"
	EmployeeAccumulated EmployeeState = "accumulated"
	EmployeePersisted   EmployeeState = "persisted"
	EmployeeFailed      EmployeeState = "failed"
)

// EmployeeComputation tracks one employee through a batch.
type EmployeeComputation struct {
	EmployeeID EmployeeID
	State      EmployeeState
	Detail     PayDetail
	Err        error
}

// Failure converts a failed computation into its recorded form.
func (c EmployeeComputation) Failure() EmployeeFailure {
	f := EmployeeFailure{EmployeeID: c.EmployeeID}
	if c.Err != nil {
		f.Reason = c.Err.Error()
		var ce *CalculationError
		if errors.As(c.Err, &ce) {
			f.ConceptCode = ce.ConceptCode
		}
	}
	return f
}
