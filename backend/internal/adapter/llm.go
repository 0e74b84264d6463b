package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"buddy/backend/internal/transcript"
	apperrors "buddy/backend/pkg/errors"
	"buddy/backend/pkg/logger"
)

const (
	collaboratorCompletion = "completion"
	collaboratorEmbedding  = "embedding"
)

// LLMAdapter handles text completion and embedding calls against an
// OpenAI-compatible API
type LLMAdapter struct {
	client         *openai.Client
	model          string
	embeddingModel string
	dimensions     int
	maxRetries     int
	backoff        time.Duration
	logger         *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter. baseURL must include the API
// version path (e.g. https://api.openai.com/v1).
func NewLLMAdapter(baseURL, apiKey, model, embeddingModel string, dimensions int) *LLMAdapter {
	// OpenAI-compatible proxies accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &LLMAdapter{
		client:         openai.NewClientWithConfig(config),
		model:          model,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
		maxRetries:     3,
		backoff:        time.Second,
		logger:         logger.Named("llm"),
	}
}

// Model returns the completion model
func (a *LLMAdapter) Model() string {
	return a.model
}

// Complete sends prompt as a single user message and returns the reply. The
// model is asked for a JSON object.
func (a *LLMAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := a.withRetry(ctx, collaboratorCompletion, a.model, func() error {
		var err error
		resp, err = a.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.NewCollaboratorFailed(collaboratorCompletion, a.model, fmt.Errorf("no choices in LLM response"))
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("LLM response generated",
		zap.String("model", a.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("content_length", len(content)),
	)
	return content, nil
}

// Chat continues a conversation: system comes first, then history in order.
// System lines in history are skipped. The reply is free text.
func (a *LLMAdapter) Chat(ctx context.Context, system string, history []transcript.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range history {
		switch m.Role {
		case transcript.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case transcript.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}

	var resp openai.ChatCompletionResponse
	err := a.withRetry(ctx, collaboratorCompletion, a.model, func() error {
		var err error
		resp, err = a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{Model: a.model, Messages: messages})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperrors.NewCollaboratorFailed(collaboratorCompletion, a.model, fmt.Errorf("no content in chat response"))
	}

	a.logger.Debug("Chat reply generated",
		zap.String("model", a.model),
		zap.Int("history", len(history)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text
func (a *LLMAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(a.embeddingModel),
		Dimensions: a.dimensions,
	}

	var resp openai.EmbeddingResponse
	err := a.withRetry(ctx, collaboratorEmbedding, a.embeddingModel, func() error {
		var err error
		resp, err = a.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, apperrors.NewCollaboratorFailed(collaboratorEmbedding, a.embeddingModel, fmt.Errorf("empty embedding in response"))
	}
	return resp.Data[0].Embedding, nil
}

// withRetry runs call up to maxRetries times with linear backoff. Client
// errors other than rate limiting are not retried.
func (a *LLMAdapter) withRetry(ctx context.Context, collaborator, model string, call func() error) error {
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.String("collaborator", collaborator),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return apperrors.NewCollaboratorFailed(collaborator, model, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err = call()
		if err == nil {
			return nil
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.String("collaborator", collaborator),
			zap.Int("attempt", attempt+1),
			zap.String("model", model),
		)

		if !retryable(err) {
			break
		}
	}

	return apperrors.NewCollaboratorFailed(collaborator, model, err)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Transport failures and non-JSON bodies from proxies are usually transient
	return true
}
