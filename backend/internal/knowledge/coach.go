package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddy/backend/internal/audit"
	"buddy/backend/internal/graph"
	"buddy/backend/internal/observability"
	"buddy/backend/internal/transcript"
	"buddy/backend/pkg/logger"
)

// Flavour selects the coach's system prompt
type Flavour string

const (
	// FlavourInitialGoals is the onboarding interview; its closing reply queues a build
	FlavourInitialGoals Flavour = "initial_goals"
	// FlavourDailyOutline plans the day with retrieval context from the graph
	FlavourDailyOutline Flavour = "daily_outline"
)

// ErrUnknownFlavour is returned for a flavour other than the ones above
var ErrUnknownFlavour = errors.New("unknown chat flavour")

// ParseFlavour validates a flavour name. An empty name is FlavourInitialGoals.
func ParseFlavour(name string) (Flavour, error) {
	switch Flavour(name) {
	case "", FlavourInitialGoals:
		return FlavourInitialGoals, nil
	case FlavourDailyOutline:
		return FlavourDailyOutline, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlavour, name)
}

// ChatCompleter generates the assistant's next turn
type ChatCompleter interface {
	Chat(ctx context.Context, system string, history []transcript.Message) (string, error)
}

// ChatLog stores chat turns
type ChatLog interface {
	TranscriptSource
	Append(ctx context.Context, chatID, userID, role, content string) (*transcript.Message, error)
	AppendWithEmbedding(ctx context.Context, chatID, userID, role, content string, embedding []float32) (*transcript.Message, error)
}

// VectorSearcher retrieves graph context for an embedded query
type VectorSearcher interface {
	SearchVector(ctx context.Context, userID string, vector []float32, threshold *float64) (*graph.Neo4jGraph, error)
}

// BuildQueue accepts background builds
type BuildQueue interface {
	Submit(ctx context.Context, req BuildRequest) (*audit.Run, <-chan Outcome, error)
}

// Reply is one exchange: the stored user turn and the generated answer
type Reply struct {
	UserMessage *transcript.Message `json:"user_message"`
	Message     *transcript.Message `json:"message"`
	Final       bool                `json:"final"`
	Build       *audit.Run          `json:"build,omitempty"`
	BuildError  string              `json:"build_error,omitempty"`
}

// Coach answers chat messages server-side. Both turns are stored with their
// embeddings, and the model's own closing reply is what queues a build.
type Coach struct {
	llm      ChatCompleter
	embedder graph.Embedder
	searcher VectorSearcher
	chats    ChatLog
	builds   BuildQueue
	metrics  *observability.Collector
	now      func() time.Time
	logger   *zap.Logger
}

// NewCoach wires a Coach
func NewCoach(
	llm ChatCompleter,
	embedder graph.Embedder,
	searcher VectorSearcher,
	chats ChatLog,
	builds BuildQueue,
	metrics *observability.Collector,
) *Coach {
	return &Coach{
		llm:      llm,
		embedder: embedder,
		searcher: searcher,
		chats:    chats,
		builds:   builds,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger.Named("coach"),
	}
}

// Reply stores content as the user's turn, generates and stores the
// assistant's answer, and queues a knowledge build when an onboarding
// interview closes. A failed queue is reported in Reply.BuildError; both
// turns are kept.
func (c *Coach) Reply(ctx context.Context, userID, chatID string, flavour Flavour, content string) (*Reply, error) {
	history, err := c.chats.List(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}

	// one embedding serves both retrieval and the stored user turn
	vector, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, collaboratorError("embedding", "", err)
	}

	var known string
	if flavour == FlavourDailyOutline {
		found, err := c.searcher.SearchVector(ctx, userID, vector, nil)
		if err != nil {
			return nil, err
		}
		known = found.ToContext()
	}
	system := RenderChatPrompt(flavour, known, c.now())

	if len(history) == 0 {
		if _, err := c.chats.Append(ctx, chatID, userID, transcript.RoleSystem, system); err != nil {
			return nil, fmt.Errorf("failed to start chat: %w", err)
		}
	}

	userMsg, err := c.chats.AppendWithEmbedding(ctx, chatID, userID, transcript.RoleUser, content, vector)
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	history = append(history, *userMsg)

	text, err := c.llm.Chat(ctx, system, history)
	if err != nil {
		return nil, collaboratorError("completion", "", err)
	}
	replyVector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, collaboratorError("embedding", "", err)
	}
	assistantMsg, err := c.chats.AppendWithEmbedding(ctx, chatID, userID, transcript.RoleAssistant, text, replyVector)
	if err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	reply := &Reply{UserMessage: userMsg, Message: assistantMsg, Final: IsConversationComplete(text)}
	c.metrics.RecordChatReply(string(flavour), reply.Final)

	if reply.Final && flavour == FlavourInitialGoals {
		run, _, err := c.builds.Submit(ctx, BuildRequest{UserID: userID, ChatID: chatID})
		if err != nil {
			c.logger.Warn("Failed to queue knowledge build",
				zap.String("user_id", userID),
				zap.String("chat_id", chatID),
				zap.Error(err))
			reply.BuildError = err.Error()
		} else {
			reply.Build = run
		}
	}

	c.logger.Debug("Chat reply",
		zap.String("user_id", userID),
		zap.String("chat_id", chatID),
		zap.String("flavour", string(flavour)),
		zap.Bool("final", reply.Final),
		zap.Int("context_length", len(known)))
	return reply, nil
}
