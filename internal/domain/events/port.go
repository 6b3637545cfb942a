package events

import "context"

// Repository port (interface for persistence)
type Repository interface {
	// Save inserts or updates the event; on first save the store assigns
	// the numeric ID and timestamps. Returns the persisted form.
	Save(ctx context.Context, e *AnomalyEvent) (*AnomalyEvent, error)
	FindByID(ctx context.Context, id int64) (*AnomalyEvent, error)
	Latest(ctx context.Context, limit int) ([]*AnomalyEvent, error)
	FindByVerdict(ctx context.Context, v Verdict) ([]*AnomalyEvent, error)
}
