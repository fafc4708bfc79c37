package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catlux/pkg/catalog"
	errs "catlux/pkg/errors"
	"catlux/pkg/inventory"
	"catlux/pkg/logger"
	"catlux/pkg/models"
	"catlux/pkg/planner"
)

// Fetcher retrieves the bytes behind a locator, giving up after timeout
type Fetcher interface {
	Get(ctx context.Context, locator string, timeout time.Duration) ([]byte, error)
}

// Store is the write side of a destination
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	WriteAtomic(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// Ledger is the quota the executor spends
type Ledger interface {
	Remaining() int
	RecordDownload(documentID string) error
	// Reload rereads the persisted state after a failed RecordDownload
	Reload() error
}

// Indexer is told about every stored document. Its failures are logged only.
type Indexer interface {
	Add(ctx context.Context, r models.Record, size int) error
}

// State is the executor lifecycle
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateQuotaExhausted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateQuotaExhausted:
		return "quota_exhausted"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is what happened to one plan item
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Failure is a document that could not be fetched
type Failure struct {
	ID   string
	Kind errs.ErrorType
	Err  error
}

// Report summarizes one execution
type Report struct {
	Planned             []string
	Completed           []string
	Skipped             []string
	Failed              []Failure
	// Unrecorded holds documents that were stored but could not be entered
	// in the ledger nor removed again
	Unrecorded          []string
	StoppedEarly        bool
	State               State
	QuotaRemainingAfter int
	Duration            time.Duration
}

// Options configures an Executor
type Options struct {
	// Timeout bounds each fetch attempt
	Timeout time.Duration
	Indexer Indexer
	// Progress is called after every plan item
	Progress func(done, total int, r models.Record, outcome Outcome)
	Logger   logger.Logger
}

// Executor downloads a plan one item at a time, spending quota only for
// documents that were fetched and stored. An Executor runs once.
type Executor struct {
	fetcher Fetcher
	store   Store
	ledger  Ledger
	opts    Options
	logger  logger.Logger
	state   State

	// groups whose exam failed in this batch
	missingExams map[string]bool
}

// NewExecutor creates an idle executor
func NewExecutor(fetcher Fetcher, store Store, ledger Ledger, opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Executor{
		fetcher: fetcher,
		store:   store,
		ledger:  ledger,
		opts:    opts,
		logger:  logger.Component(log, "executor"),
		state:   StateIdle,

		missingExams: make(map[string]bool),
	}
}

// State returns the current lifecycle state
func (e *Executor) State() State {
	return e.state
}

// PlanAndExecute plans against the ledger's remaining quota and runs the plan
func (e *Executor) PlanAndExecute(ctx context.Context, cat *catalog.Catalog, inv inventory.Inventory, policy planner.Policy) (*Report, error) {
	remaining := e.ledger.Remaining()
	plan := planner.Plan(cat, inv, remaining, policy)

	e.logger.InfoWithFields("Download plan ready", map[string]interface{}{
		"policy":          policy.String(),
		"planned":         len(plan),
		"quota_remaining": remaining,
	})

	return e.Execute(ctx, plan)
}

// Execute runs plan sequentially. Fetch failures are recorded and the batch
// continues; a solution whose exam failed earlier in the batch is not fetched.
// Storage and ledger failures are recorded, abort the batch and are returned.
// A document stored but not entered in the ledger is removed again.
// Running out of quota ends the batch without an error.
func (e *Executor) Execute(ctx context.Context, plan planner.FetchPlan) (*Report, error) {
	if e.state != StateIdle {
		return nil, fmt.Errorf("executor already used (state %s)", e.state)
	}
	e.state = StateRunning
	start := time.Now()

	report := &Report{Planned: plan.IDs()}
	finish := func(state State, err error) (*Report, error) {
		e.state = state
		report.State = state
		report.QuotaRemainingAfter = e.ledger.Remaining()
		report.Duration = time.Since(start)

		e.logger.InfoWithFields("Download batch finished", map[string]interface{}{
			"state":           state.String(),
			"completed":       len(report.Completed),
			"skipped":         len(report.Skipped),
			"failed":          len(report.Failed),
			"stopped_early":   report.StoppedEarly,
			"quota_remaining": report.QuotaRemainingAfter,
			"duration":        report.Duration,
		})
		return report, err
	}

	for i, item := range plan {
		if err := ctx.Err(); err != nil {
			report.StoppedEarly = true
			return finish(StateAborted, err)
		}

		if e.ledger.Remaining() <= 0 {
			e.logger.WarnWithFields("Quota exhausted, stopping batch", map[string]interface{}{
				"not_attempted": len(plan) - i,
			})
			report.StoppedEarly = true
			return finish(StateQuotaExhausted, nil)
		}

		outcome, err := e.process(ctx, item, report)
		if err != nil {
			report.StoppedEarly = i < len(plan)-1
			return finish(StateAborted, err)
		}

		if e.opts.Progress != nil {
			e.opts.Progress(i+1, len(plan), item, outcome)
		}
	}

	return finish(StateCompleted, nil)
}

// process handles one item. A returned error aborts the batch. Cancellation
// is only honored between items, so the item itself runs detached from ctx.
func (e *Executor) process(ctx context.Context, item models.Record, report *Report) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	name := item.FileName()

	if !item.IsExam() && e.missingExams[item.GroupID] {
		err := fmt.Errorf("exam %s was not downloaded", item.GroupID)
		report.Failed = append(report.Failed, Failure{ID: item.ID, Kind: errs.ErrorTypeExamMissing, Err: err})
		logger.LogItem(e.logger, item.ID, item.Kind.String(), string(OutcomeFailed), err)
		return OutcomeFailed, nil
	}

	exists, err := e.store.Exists(ctx, name)
	if err != nil {
		e.logger.WithError(err).ErrorWithFields("Destination check failed", map[string]interface{}{"document_id": item.ID})
		report.Failed = append(report.Failed, Failure{ID: item.ID, Kind: errs.TypeOf(err), Err: err})
		return "", err
	}
	if exists {
		report.Skipped = append(report.Skipped, item.ID)
		logger.LogItem(e.logger, item.ID, item.Kind.String(), string(OutcomeSkipped), nil)
		return OutcomeSkipped, nil
	}

	data, err := e.fetcher.Get(ctx, item.Locator, e.opts.Timeout)
	if err != nil {
		kind := errs.TypeOf(err)
		report.Failed = append(report.Failed, Failure{ID: item.ID, Kind: kind, Err: err})
		if item.IsExam() {
			e.missingExams[item.GroupID] = true
		}
		logger.LogItem(e.logger, item.ID, item.Kind.String(), string(OutcomeFailed), err)
		return OutcomeFailed, nil
	}

	if err := e.store.WriteAtomic(ctx, name, data); err != nil {
		e.logger.WithError(err).ErrorWithFields("Destination not writable, aborting batch", map[string]interface{}{
			"document_id": item.ID,
			"completed":   len(report.Completed),
		})
		report.Failed = append(report.Failed, Failure{ID: item.ID, Kind: errs.TypeOf(err), Err: err})
		return "", err
	}

	if err := e.ledger.RecordDownload(item.ID); err != nil {
		var persistErr *errs.PersistenceError
		if !errors.As(err, &persistErr) {
			persistErr = &errs.PersistenceError{Err: err}
		}
		persistErr.DocumentID = item.ID
		persistErr.Completed = len(report.Completed)

		e.logger.WithError(err).ErrorWithFields("Download ledger not updated, aborting batch", map[string]interface{}{
			"document_id": item.ID,
			"completed":   len(report.Completed),
		})
		report.Failed = append(report.Failed, Failure{ID: item.ID, Kind: errs.ErrorTypePersistence, Err: persistErr})

		// an unrecorded file would be taken as local and never charged
		if delErr := e.store.Delete(ctx, name); delErr != nil {
			e.logger.WithError(delErr).ErrorWithFields("Stored document could not be removed after ledger failure", map[string]interface{}{
				"document_id": item.ID,
			})
			report.Unrecorded = append(report.Unrecorded, item.ID)
		}
		if reloadErr := e.ledger.Reload(); reloadErr != nil {
			e.logger.WithError(reloadErr).Error("Download ledger could not be reloaded")
		}
		return "", persistErr
	}

	report.Completed = append(report.Completed, item.ID)
	logger.LogItem(e.logger, item.ID, item.Kind.String(), string(OutcomeCompleted), nil)

	if e.opts.Indexer != nil {
		if err := e.opts.Indexer.Add(ctx, item, len(data)); err != nil {
			e.logger.WithError(err).WarnWithFields("Download index not updated", map[string]interface{}{"document_id": item.ID})
		}
	}

	return OutcomeCompleted, nil
}
