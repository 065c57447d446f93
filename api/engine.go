package api

import (
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/concepts"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/observability"
	"github.com/warp/payroll-engine/store/sqlite"
)

// EngineOptions tunes the calculation job and scheduler. Zero values use
// the engine defaults.
type EngineOptions struct {
	ChunkSize            int
	Workers              int
	MaxRetries           int
	RetryInitialInterval time.Duration
	RecoveryInterval     time.Duration
}

// Engine is the payroll engine wired over one SQLite store.
type Engine struct {
	Service   *engine.RunService
	Scheduler *CalculationScheduler
	Calendar  *engine.WorkCalendar
	Job       *engine.Job
}

// NewEngine wires the registry, job, scheduler and run service. The
// scheduler is not started.
func NewEngine(store *sqlite.Store, opts EngineOptions, logger *zap.Logger) (*Engine, error) {
	logger = observability.OrNop(logger)

	registry, err := concepts.NewRegistry()
	if err != nil {
		return nil, err
	}

	calendar := engine.NewWorkCalendar(store, store)
	job := &engine.Job{
		Runs:      store,
		Concepts:  store,
		Companies: store,
		Employees: store,
		Builder: &engine.ContextBuilder{
			Profiles:   store,
			Aggregator: &engine.AttendanceAggregator{Activity: store, Calendar: calendar},
		},
		Registry:             registry,
		Persister:            &engine.Persister{Store: store},
		ChunkSize:            opts.ChunkSize,
		Workers:              opts.Workers,
		MaxRetries:           opts.MaxRetries,
		RetryInitialInterval: opts.RetryInitialInterval,
		Logger:               logger.Named("job"),
	}

	scheduler := NewCalculationScheduler(store, job, logger.Named("scheduler"))
	if opts.RecoveryInterval > 0 {
		scheduler.RecoveryInterval = opts.RecoveryInterval
	}

	service := &engine.RunService{
		Runs:       store,
		Companies:  store,
		Registry:   registry,
		Dispatcher: scheduler,
	}

	return &Engine{Service: service, Scheduler: scheduler, Calendar: calendar, Job: job}, nil
}
