// Package sagalog defines the audit trail written by the checkout saga.
//
// Every state transition of a saga is appended as one row, so an operator
// can see where a confirmation stopped and which compensations failed, and
// jump to the matching distributed trace through trace_id.
package sagalog

import "time"

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is a single row in the saga_logs table.
type SagaLog struct {
	// SagaID is the order id, so entries join with business data.
	SagaID string

	Status Status

	// CurrentStep is the step that was just executed or failed.
	CurrentStep string

	// Payload is the JSON input of the saga, written on STARTED only.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	// TraceID and SpanID identify the span that was active when the entry
	// was written. Empty without tracing.
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
