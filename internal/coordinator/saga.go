package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog"
)

const defaultCompensationTimeout = 15 * time.Second

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Compensation records a compensating action that failed.
type Compensation struct {
	Step string
	Err  error
}

// SagaError reports the step that failed and any compensation that could
// not be applied while rolling back.
type SagaError struct {
	Step          string
	Err           error
	Compensations []Compensation
}

func (e *SagaError) Error() string {
	if len(e.Compensations) > 0 {
		return fmt.Sprintf("saga step %s failed: %v (%d compensation(s) failed)", e.Step, e.Err, len(e.Compensations))
	}
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Err)
}

func (e *SagaError) Unwrap() error { return e.Err }

type Option func(*Orchestrator)

// WithCompensationTimeout bounds each compensating call.
func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.compensationTimeout = d
		}
	}
}

// WithPayload stores the serialised saga input on the STARTED entry.
func WithPayload(payload string) Option {
	return func(o *Orchestrator) { o.payload = payload }
}

// WithCompensationObserver is called after every compensating call with its
// outcome.
func WithCompensationObserver(fn func(step string, err error)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// Orchestrator manages the execution of a collection of Steps.
type Orchestrator struct {
	sagaID              string
	steps               []Step
	repo                sagalog.Repository
	payload             string
	compensationTimeout time.Duration
	observe             func(step string, err error)
}

// NewOrchestrator builds a saga over steps. repo may be nil, in which case
// nothing is persisted.
func NewOrchestrator(sagaID string, steps []Step, repo sagalog.Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sagaID:              sagaID,
		steps:               steps,
		repo:                repo,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the saga steps sequentially.
// If a step fails, it triggers the compensation of all previously successful
// steps in reverse order and returns a *SagaError.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var successfulSteps []Step
	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, step.Name(), err, successfulSteps)
		}
		slog.InfoContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "saga step failed, starting rollback",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			return o.fail(ctx, step.Name(), err, successfulSteps)
		}
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
		successfulSteps = append(successfulSteps, step)
	}

	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	slog.InfoContext(ctx, "saga completed", "saga_id", o.sagaID)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, stepName string, cause error, done []Step) error {
	sagaErr := &SagaError{Step: stepName, Err: cause}
	msgs := []string{fmt.Sprintf("step %s failed: %v", stepName, cause)}

	if len(done) > 0 {
		o.record(ctx, sagalog.StatusCompensating, stepName, "", msgs)
		sagaErr.Compensations = o.rollback(ctx, done)
		for _, c := range sagaErr.Compensations {
			msgs = append(msgs, fmt.Sprintf("compensation of %s failed: %v", c.Step, c.Err))
		}
	}

	o.record(ctx, sagalog.StatusFailed, stepName, "", msgs)
	return sagaErr
}

// rollback compensates steps LIFO. Compensations ignore the caller's
// cancellation but each one is bounded by compensationTimeout.
func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []Compensation {
	base := context.WithoutCancel(ctx)
	var failed []Compensation
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating saga step", "saga_id", o.sagaID, "step", step.Name())

		cctx, cancel := context.WithTimeout(base, o.compensationTimeout)
		err := step.Compensate(cctx)
		cancel()
		if o.observe != nil {
			o.observe(step.Name(), err)
		}
		if err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate saga step",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			failed = append(failed, Compensation{Step: step.Name(), Err: err})
		}
	}
	return failed
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.repo == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.repo.Save(context.WithoutCancel(ctx), entry); err != nil {
		slog.WarnContext(ctx, "saga log write failed", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
