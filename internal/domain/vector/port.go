package vector

import "context"

// Store port: similarity search over past analyzed events.
type Store interface {
	// Query returns the content of the most similar indexed records.
	Query(ctx context.Context, text string) ([]string, error)
	// Index stores a record summary with its metadata for future lookups.
	Index(ctx context.Context, text string, metadata map[string]string) error
}
