package knowledge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/transcript"
	"buddy/backend/pkg/logger"
)

// Extractor asks the model for the entities a transcript reveals
type Extractor struct {
	llm    Completer
	now    func() time.Time
	logger *zap.Logger
}

// NewExtractor creates an Extractor on llm
func NewExtractor(llm Completer) *Extractor {
	return &Extractor{llm: llm, now: time.Now, logger: logger.Named("extractor")}
}

// Extract returns the GraphData the model produced for messages. A reply
// that does not parse is a MalformedExchangeDocument from "extraction".
func (e *Extractor) Extract(ctx context.Context, userID string, messages []transcript.Message) (graph.GraphData, error) {
	prompt := RenderExtractionPrompt(transcript.Render(messages), userID, e.now())

	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return graph.GraphData{}, collaboratorError("completion", "", err)
	}

	data, err := graph.ParseGraphData("extraction", []byte(extractJSONObject(reply)))
	if err != nil {
		e.logger.Warn("Extraction reply did not parse",
			zap.String("user_id", userID),
			zap.Int("reply_length", len(reply)),
			zap.Error(err))
		return graph.GraphData{}, err
	}

	e.logger.Debug("Extracted graph",
		zap.String("user_id", userID),
		zap.Int("nodes", len(data.Nodes)),
		zap.Int("relationships", len(data.Relationships)))
	return data, nil
}
