package sagalog

import "context"

// Repository persists saga log entries. The table is append-only.
type Repository interface {
	// Save appends an entry.
	Save(ctx context.Context, entry *SagaLog) error
	// List returns every entry of a saga, oldest first.
	List(ctx context.Context, sagaID string) ([]SagaLog, error)
}
