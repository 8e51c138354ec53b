package lexical

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// Store holds one BM25 index per collection and implements the lexical
// search port. Indexes are registered at startup and read-only afterwards.
type Store struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

func NewStore() *Store {
	return &Store{indexes: make(map[string]*Index)}
}

// Register installs the index for a collection, replacing any previous one.
func (s *Store) Register(collection string, idx *Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[collection] = idx
}

// Collections lists the registered collection names.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	return out
}

// Search runs BM25 search over one collection.
func (s *Store) Search(ctx context.Context, collection, query string, limit int) ([]domain.ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	idx, ok := s.indexes[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrCollectionNotFound, "lexical search",
			fmt.Errorf("collection %q not registered", collection))
	}

	scoreByID := make(map[string]float64, idx.Len())
	for _, s := range idx.Scores(query) {
		scoreByID[s.ID] = s.Score
	}

	ranked := idx.Search(query, limit)
	out := make([]domain.ScoredDocument, 0, len(ranked))
	for _, doc := range ranked {
		out = append(out, domain.ScoredDocument{
			ID:     doc.ID,
			Title:  doc.Title,
			Origin: doc.Origin,
			Text:   doc.Text,
			Score:  scoreByID[doc.ID],
		})
	}
	return out, nil
}
