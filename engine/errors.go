/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and handlers wrap these with context; callers match them with
  errors.Is and errors.As.

ERROR CATEGORIES:
  1. ConfigurationError - Missing calculator, malformed concept. Fatal, the
     run aborts before any detail is written.
  2. DataIntegrityError - Run or employee reference missing at write time.
     Fatal for the batch being written.
  3. CalculationError   - A calculator failed for one employee. Recorded as a
     failure, the run continues.
  4. TransientIOError   - A collaborator read failed in a way that may
     succeed later. Retried at chunk level, then escalated.

SEE ALSO:
  - job.go: Decides which errors abort the run and which are recorded
  - api/handlers.go: Maps errors to HTTP statuses
*/
package engine

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrDataIntegrity  = errors.New("data integrity error")
	ErrCalculation    = errors.New("calculation error")
	ErrTransientIO    = errors.New("transient io error")
	ErrInvalidPeriod  = errors.New("invalid period: end before start")
	ErrNegativeAmount = errors.New("calculator returned a negative amount")
	ErrNegativeInput  = errors.New("activity record has negative values")

	ErrRunNotFound        = errors.New("pay run not found")
	ErrDetailNotFound     = errors.New("pay detail not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrSubsidiaryNotFound = errors.New("subsidiary not found")

	// ErrInvalidTransition is returned when a run state change is not allowed.
	ErrInvalidTransition = errors.New("invalid run state transition")

	// ErrRunNotLaunchable is returned by LaunchCalculation for runs that are
	// neither draft nor halted in progress.
	ErrRunNotLaunchable = errors.New("pay run cannot be launched in its current state")

	// ErrRunNotEditable is returned when concepts or the run itself are
	// modified outside the draft state.
	ErrRunNotEditable = errors.New("pay run is not editable once it leaves draft")

	// ErrRunConflict is returned when another active run exists for the same
	// subsidiary and period.
	ErrRunConflict = errors.New("an active pay run already exists for this subsidiary and period")

	// ErrRunNotRunning is returned when aborting a run that has no active job.
	ErrRunNotRunning = errors.New("pay run has no calculation in progress")

	// ErrAborted is returned when a job stops because of a cooperative abort.
	ErrAborted = errors.New("calculation aborted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError describes a run configuration the engine cannot execute.
type ConfigurationError struct {
	ConceptCode ConceptCode
	Reason      string
}

func (e *ConfigurationError) Error() string {
	if e.ConceptCode == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: concept %s: %s", e.ConceptCode, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// DataIntegrityError reports a reference that no longer resolves while a
// batch is being written.
type DataIntegrityError struct {
	RunID      RunID
	EmployeeID EmployeeID
	Err        error
}

func (e *DataIntegrityError) Error() string {
	if e.EmployeeID != "" {
		return fmt.Sprintf("data integrity error: run %s employee %s: %v", e.RunID, e.EmployeeID, e.Err)
	}
	return fmt.Sprintf("data integrity error: run %s: %v", e.RunID, e.Err)
}

func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }
func (e *DataIntegrityError) Unwrap() error       { return e.Err }

// CalculationError is scoped to one employee. ConceptCode is empty when the
// failure happened while building the context.
type CalculationError struct {
	EmployeeID  EmployeeID
	ConceptCode ConceptCode
	Err         error
}

func (e *CalculationError) Error() string {
	if e.ConceptCode == "" {
		return fmt.Sprintf("calculation error: employee %s: %v", e.EmployeeID, e.Err)
	}
	return fmt.Sprintf("calculation error: employee %s concept %s: %v", e.EmployeeID, e.ConceptCode, e.Err)
}

func (e *CalculationError) Is(target error) bool { return target == ErrCalculation }
func (e *CalculationError) Unwrap() error       { return e.Err }

// TransientIOError wraps a collaborator failure that is worth retrying.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io error: %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Is(target error) bool { return target == ErrTransientIO }
func (e *TransientIOError) Unwrap() error       { return e.Err }

// Transient marks err as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientIOError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// IsClientError returns true if the error is due to invalid client input or
// a request that conflicts with the run state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRunNotLaunchable) ||
		errors.Is(err, ErrRunNotEditable) ||
		errors.Is(err, ErrRunConflict) ||
		errors.Is(err, ErrRunNotRunning) ||
		errors.Is(err, ErrConfiguration)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrDetailNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrSubsidiaryNotFound)
}

// asTransient keeps typed engine errors and context cancellation as they are
// and marks anything else as a retryable collaborator failure.
func asTransient(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrTransientIO), errors.Is(err, ErrCalculation),
		errors.Is(err, ErrConfiguration), errors.Is(err, ErrDataIntegrity),
		errors.Is(err, ErrInvalidPeriod), IsNotFound(err):
		return err
	}
	return Transient(op, err)
}

// IsEmployeeScoped returns true if the error only affects one employee's
// computation and the run can continue.
func IsEmployeeScoped(err error) bool {
	return errors.Is(err, ErrCalculation)
}
