/*
scheduler.go - Background execution of pay run calculations

PURPOSE:
  Implements engine.Dispatcher. LaunchCalculation submits a run here; a
  small pool of workers executes it with engine.Job, off the request path.

DESIGN:
  - Submitted runs are tracked until their job returns, so a second launch
    of a queued or executing run is a no-op
  - Each tracked run owns an engine.AbortFlag; Abort sets it and the job
    stops after its current batch
  - A recovery ticker resumes in_progress runs that are neither halted nor
    tracked, i.e. runs whose process died mid-calculation
  - Stop cancels executing jobs; they halt and can be relaunched

CONFIGURATION:
  - Workers:          Concurrent runs (default: 2)
  - RecoveryInterval: How often to sweep for orphaned runs (default: 5m)
  - QueueSize:        Pending submissions (default: 64)

USAGE:
  scheduler := NewCalculationScheduler(store, job, logger)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - engine/job.go: The calculation pipeline
  - engine/service.go: LaunchCalculation, Abort
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/observability"
)

var (
	ErrSchedulerStopped = errors.New("calculation scheduler is not running")
	ErrQueueFull        = errors.New("calculation queue is full")
)

// Executor runs one pay run to completion or halt.
type Executor interface {
	Execute(ctx context.Context, id engine.RunID, abort *engine.AbortFlag) (engine.PayRun, error)
}

// CalculationScheduler executes launched runs and recovers orphaned ones.
type CalculationScheduler struct {
	Runs             engine.RunStore
	Executor         Executor
	Workers          int
	RecoveryInterval time.Duration
	QueueSize        int
	Logger           *zap.Logger

	mu      sync.Mutex
	tracked map[engine.RunID]*engine.AbortFlag
	queue   chan engine.RunID
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	ticker *time.Ticker
	wg     sync.WaitGroup
}

// NewCalculationScheduler creates a scheduler with default settings.
func NewCalculationScheduler(runs engine.RunStore, executor Executor, logger *zap.Logger) *CalculationScheduler {
	return &CalculationScheduler{
		Runs:             runs,
		Executor:         executor,
		Workers:          2,
		RecoveryInterval: 5 * time.Minute,
		QueueSize:        64,
		Logger:           observability.OrNop(logger),
		tracked:          make(map[engine.RunID]*engine.AbortFlag),
	}
}

// Start launches the workers and the recovery loop.
func (cs *CalculationScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.started {
		return
	}

	workers := cs.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cs.QueueSize
	if size <= 0 {
		size = 64
	}
	interval := cs.RecoveryInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.queue = make(chan engine.RunID, size)
	cs.ticker = time.NewTicker(interval)
	cs.started = true

	for i := 0; i < workers; i++ {
		cs.wg.Add(1)
		go cs.work()
	}
	cs.wg.Add(1)
	go cs.recoverLoop()

	cs.Logger.Info("calculation scheduler started",
		zap.Int("workers", workers),
		zap.Duration("recovery_interval", interval),
	)
}

// Stop cancels executing jobs and waits for the workers to exit.
func (cs *CalculationScheduler) Stop() {
	cs.mu.Lock()
	if !cs.started {
		cs.mu.Unlock()
		return
	}
	cs.started = false
	cs.ticker.Stop()
	cs.cancel()
	cs.mu.Unlock()

	cs.wg.Wait()

	// Queued runs stay in_progress and are picked up by the next recovery.
	cs.mu.Lock()
	cs.tracked = make(map[engine.RunID]*engine.AbortFlag)
	cs.mu.Unlock()
	cs.Logger.Info("calculation scheduler stopped")
}

// =============================================================================
// engine.Dispatcher
// =============================================================================

// Submit queues a run. Submitting a tracked run does nothing.
func (cs *CalculationScheduler) Submit(id engine.RunID) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.started {
		return ErrSchedulerStopped
	}
	if _, ok := cs.tracked[id]; ok {
		return nil
	}

	select {
	case cs.queue <- id:
		cs.tracked[id] = &engine.AbortFlag{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Running reports whether the run is queued or executing.
func (cs *CalculationScheduler) Running(id engine.RunID) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.tracked[id]
	return ok
}

// Abort requests a cooperative stop. It returns false if the run is not
// tracked.
func (cs *CalculationScheduler) Abort(id engine.RunID) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	flag, ok := cs.tracked[id]
	if ok {
		flag.Request()
	}
	return ok
}

// =============================================================================
// WORKERS
// =============================================================================

func (cs *CalculationScheduler) work() {
	defer cs.wg.Done()
	for {
		select {
		case <-cs.ctx.Done():
			return
		case id := <-cs.queue:
			cs.execute(id)
		}
	}
}

func (cs *CalculationScheduler) execute(id engine.RunID) {
	cs.mu.Lock()
	flag := cs.tracked[id]
	cs.mu.Unlock()

	defer func() {
		cs.mu.Lock()
		delete(cs.tracked, id)
		cs.mu.Unlock()
	}()

	log := cs.Logger.With(zap.String("run_id", string(id)))
	start := time.Now()
	run, err := cs.Executor.Execute(cs.ctx, id, flag)
	if err != nil {
		log.Warn("pay run stopped",
			zap.String("state", string(run.State)),
			zap.Bool("halted", run.Halted),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	log.Info("pay run finished",
		zap.String("state", string(run.State)),
		zap.Int("processed", run.Progress.Processed),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (cs *CalculationScheduler) recoverLoop() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.RecoverNow(cs.ctx)

	for {
		select {
		case <-cs.ticker.C:
			cs.RecoverNow(cs.ctx)
		case <-cs.ctx.Done():
			return
		}
	}
}

// RecoverNow resubmits in_progress runs that are neither halted nor tracked
// and returns how many were submitted.
func (cs *CalculationScheduler) RecoverNow(ctx context.Context) int {
	runs, err := cs.Runs.ListRuns(ctx, engine.RunFilter{States: []engine.RunState{engine.RunInProgress}})
	if err != nil {
		cs.Logger.Error("recovery sweep failed", zap.Error(err))
		return 0
	}

	submitted := 0
	for _, run := range runs {
		if run.Halted || cs.Running(run.ID) {
			continue
		}
		if err := cs.Submit(run.ID); err != nil {
			cs.Logger.Warn("could not resubmit pay run", zap.String("run_id", string(run.ID)), zap.Error(err))
			continue
		}
		submitted++
	}
	if submitted > 0 {
		cs.Logger.Info("resubmitted orphaned pay runs", zap.Int("count", submitted))
	}
	return submitted
}
