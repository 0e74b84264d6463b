package knowledge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddy/backend/internal/graph"
	"buddy/backend/pkg/logger"
)

// Merger reconciles a fresh extraction with the graph already stored for a user
type Merger struct {
	llm    Completer
	now    func() time.Time
	logger *zap.Logger
}

// NewMerger creates a Merger on llm
func NewMerger(llm Completer) *Merger {
	return &Merger{llm: llm, now: time.Now, logger: logger.Named("merger")}
}

// Reconcile returns the document to commit. With nothing stored, fresh is
// returned as is and the model is not consulted.
func (m *Merger) Reconcile(ctx context.Context, existing, fresh graph.GraphData) (graph.GraphData, error) {
	if existing.IsEmpty() {
		return fresh, nil
	}

	existingJSON, err := existing.JSON()
	if err != nil {
		return graph.GraphData{}, fmt.Errorf("failed to serialize existing graph: %w", err)
	}
	freshJSON, err := fresh.JSON()
	if err != nil {
		return graph.GraphData{}, fmt.Errorf("failed to serialize new graph: %w", err)
	}

	reply, err := m.llm.Complete(ctx, RenderMergePrompt(existingJSON, freshJSON, m.now()))
	if err != nil {
		return graph.GraphData{}, collaboratorError("completion", "", err)
	}

	merged, err := graph.ParseGraphData("merge", []byte(extractJSONObject(reply)))
	if err != nil {
		m.logger.Warn("Merge reply did not parse", zap.Int("reply_length", len(reply)), zap.Error(err))
		return graph.GraphData{}, err
	}

	m.logger.Debug("Merged graphs",
		zap.Int("existing_nodes", len(existing.Nodes)),
		zap.Int("new_nodes", len(fresh.Nodes)),
		zap.Int("merged_nodes", len(merged.Nodes)))
	return merged, nil
}
