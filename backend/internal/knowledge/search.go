package knowledge

import (
	"context"

	"go.uber.org/zap"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/observability"
	"buddy/backend/pkg/logger"
)

// Searcher answers free-text questions with the matching part of a user's graph
type Searcher struct {
	embedder  graph.Embedder
	store     SearchStore
	metrics   *observability.Collector
	threshold float64
	logger    *zap.Logger
}

// NewSearcher creates a Searcher whose default cutoff is threshold
func NewSearcher(embedder graph.Embedder, store SearchStore, metrics *observability.Collector, threshold float64) *Searcher {
	return &Searcher{
		embedder:  embedder,
		store:     store,
		metrics:   metrics,
		threshold: threshold,
		logger:    logger.Named("search"),
	}
}

// Search embeds query and returns the user's nodes scoring above the
// threshold plus their direct neighbours. A nil threshold uses the default.
func (s *Searcher) Search(ctx context.Context, userID, query string, threshold *float64) (*graph.Neo4jGraph, error) {
	cutoff, err := s.cutoff(threshold)
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, collaboratorError("embedding", "", err)
	}
	return s.searchVector(ctx, userID, vector, cutoff)
}

// SearchVector is Search for a query that is already embedded
func (s *Searcher) SearchVector(ctx context.Context, userID string, vector []float32, threshold *float64) (*graph.Neo4jGraph, error) {
	cutoff, err := s.cutoff(threshold)
	if err != nil {
		return nil, err
	}
	return s.searchVector(ctx, userID, vector, cutoff)
}

func (s *Searcher) cutoff(threshold *float64) (float64, error) {
	cutoff := s.threshold
	if threshold != nil {
		cutoff = *threshold
	}
	return cutoff, graph.ValidateThreshold(cutoff)
}

func (s *Searcher) searchVector(ctx context.Context, userID string, vector []float32, cutoff float64) (*graph.Neo4jGraph, error) {
	result, err := s.store.SemanticSearch(ctx, userID, vector, cutoff)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSearch()
	s.logger.Debug("Semantic search",
		zap.String("user_id", userID),
		zap.Float64("threshold", cutoff),
		zap.Int("matches", len(result.Ranking)),
		zap.Int("nodes", len(result.Nodes)))
	return result, nil
}
