package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

const topK = 5

// Store is an in-process similarity index over analyzed-event summaries,
// backed by chromem-go. The embedding function is injected so the backing
// embedding service can be swapped (OpenAI in production, a fake in tests).
type Store struct {
	collection *chromem.Collection
	mu         sync.RWMutex
}

func NewStore(embed chromem.EmbeddingFunc) (*Store, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("anomaly_events", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{collection: collection}, nil
}

// NewOpenAIStore builds a store that embeds through the OpenAI embeddings API.
func NewOpenAIStore(apiKey string) (*Store, error) {
	return NewStore(chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI3Small))
}

// Query returns the content of the most similar indexed summaries, newest
// collection state wins. An empty index yields no results, not an error.
func (s *Store) Query(ctx context.Context, text string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if n > topK {
		n = topK
	}

	results, err := s.collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Content)
	}
	return out, nil
}

// Index stores one summary document with its metadata.
func (s *Store) Index(ctx context.Context, text string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := chromem.Document{
		ID:       uuid.New().String(),
		Content:  text,
		Metadata: metadata,
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}
