// Package search ranks stored embeddings against a text query and
// returns the top-K media references.
package search

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"semanticgallery/apperr"
	"semanticgallery/embedding"
	"semanticgallery/models"
)

// DefaultLimit caps the result set when the caller does not specify one.
const DefaultLimit = 10

// Store is the ranking surface the engine needs: similarity ordering is
// delegated to the persistence store's vector operator.
type Store interface {
	SearchSimilar(ctx context.Context, query pgvector.Vector, modelName, modelVersion string, limit int) ([]models.SearchResult, error)
}

// Searcher encodes queries and ranks persisted embeddings. Queries are
// scored only against embeddings produced by the live engine's model and
// version; vectors from other versions are not comparable.
type Searcher struct {
	encoder embedding.Encoder
	store   Store
	log     *logrus.Logger
}

// NewSearcher wires the retrieval collaborators.
func NewSearcher(encoder embedding.Encoder, store Store, log *logrus.Logger) *Searcher {
	return &Searcher{encoder: encoder, store: store, log: log}
}

// Search encodes query and returns at most limit results in
// non-increasing similarity order. limit <= 0 is rejected before any
// encoding or querying happens; callers wanting the conventional cap
// pass DefaultLimit. An empty result set is a normal outcome. Any
// failure is fatal to the request; no partial results are returned.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	const op = "search.Search"

	if limit <= 0 {
		return nil, apperr.New(apperr.KindValidation, op, "limit must be positive, got %d", limit)
	}

	vector, err := s.encoder.EncodeText(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.store.SearchSimilar(ctx, pgvector.NewVector(vector),
		s.encoder.ModelName(), s.encoder.ModelVersion(), limit)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"query":   query,
		"limit":   limit,
		"results": len(results),
	}).Debug("search complete")
	return results, nil
}
