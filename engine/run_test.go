package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
)

func TestRunState_Transitions(t *testing.T) {
	tests := []struct {
		from, to engine.RunState
		allowed  bool
	}{
		{engine.RunDraft, engine.RunInProgress, true},
		{engine.RunDraft, engine.RunCancelled, true},
		{engine.RunDraft, engine.RunCalculated, false},
		{engine.RunInProgress, engine.RunCalculated, true},
		{engine.RunInProgress, engine.RunFailed, true},
		{engine.RunInProgress, engine.RunCancelledForCorrection, true},
		{engine.RunInProgress, engine.RunDraft, false},
		{engine.RunCalculated, engine.RunApproved, true},
		{engine.RunCalculated, engine.RunCancelledForCorrection, true},
		{engine.RunCalculated, engine.RunPaid, false},
		{engine.RunApproved, engine.RunPaid, true},
		{engine.RunApproved, engine.RunCancelledForCorrection, false},
		{engine.RunPaid, engine.RunCancelled, false},
		{engine.RunFailed, engine.RunInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, engine.RunPaid.Terminal())
	assert.True(t, engine.RunFailed.Terminal())
	assert.False(t, engine.RunCalculated.Terminal())
	assert.True(t, engine.RunApproved.Active())
	assert.False(t, engine.RunCancelledForCorrection.Active())
}

func TestPayRun_TransitionStampsTimes(t *testing.T) {
	at := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)
	run := engine.PayRun{State: engine.RunDraft}

	require.NoError(t, run.Transition(engine.RunInProgress, at))
	require.NotNil(t, run.StartedAt)
	assert.Equal(t, at, *run.StartedAt)

	err := run.Transition(engine.RunPaid, at)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	assert.Equal(t, engine.RunInProgress, run.State)
}

func TestPayRun_ApproveRequiresApprover(t *testing.T) {
	at := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	run := engine.PayRun{State: engine.RunCalculated}

	assert.ErrorIs(t, run.Approve("", at), engine.ErrInvalidTransition)

	require.NoError(t, run.Approve("controller@acme", at))
	assert.Equal(t, engine.RunApproved, run.State)
	assert.Equal(t, "controller@acme", run.ApprovedBy)
	require.NotNil(t, run.ApprovedAt)
}

func TestPayRun_Finalize(t *testing.T) {
	at := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		succeeded int
		failed    int
		state     engine.RunState
		outcome   engine.Outcome
	}{
		{name: "all succeed", succeeded: 5, state: engine.RunCalculated, outcome: engine.OutcomeSuccess},
		{name: "some fail", succeeded: 9, failed: 1, state: engine.RunCalculated, outcome: engine.OutcomePartialSuccess},
		{name: "all fail", failed: 3, state: engine.RunFailed, outcome: engine.OutcomeFailed},
		{name: "nobody selected", state: engine.RunCalculated, outcome: engine.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN an in_progress run with accumulated progress
			run := engine.PayRun{State: engine.RunInProgress, Halted: true}
			run.Progress = engine.Progress{
				Processed:   tt.succeeded + tt.failed,
				Succeeded:   tt.succeeded,
				Failed:      tt.failed,
				TotalIncome: dec("100"),
				TotalNet:    dec("90"),
			}

			// WHEN it is finalized
			require.NoError(t, run.Finalize(at))

			// THEN the summary mirrors the progress
			assert.Equal(t, tt.state, run.State)
			require.NotNil(t, run.Summary)
			assert.Equal(t, tt.outcome, run.Summary.Outcome)
			assert.Equal(t, tt.succeeded, run.Summary.Succeeded)
			assert.Equal(t, tt.failed, run.Summary.Failed)
			assert.Equal(t, tt.succeeded+tt.failed, run.TotalEmployees)
			assertDecimal(t, "90", run.Summary.TotalNet)
			assert.False(t, run.Halted)
		})
	}
}

func TestPeriod(t *testing.T) {
	assert.Len(t, march2026.Days(), 31)
	assert.NoError(t, march2026.Validate())

	april := engine.MonthPeriod(2026, time.April)
	assert.False(t, march2026.Overlaps(april))

	straddle := engine.Period{Start: engine.NewDate(2026, time.March, 31), End: engine.NewDate(2026, time.April, 2)}
	assert.True(t, march2026.Overlaps(straddle))
	assert.True(t, april.Overlaps(straddle))
}
