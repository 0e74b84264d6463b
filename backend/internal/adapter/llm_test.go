package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddy/backend/internal/transcript"
	apperrors "buddy/backend/pkg/errors"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *LLMAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewLLMAdapter(srv.URL, "test-key", "gpt-4o", "text-embedding-3-small", 384)
	a.backoff = time.Millisecond
	return a
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestLLMAdapter_Complete(t *testing.T) {
	var captured map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"nodes": [], "relationships": []}`},
				"finish_reason": "stop",
			}},
		})
	})

	out, err := a.Complete(context.Background(), "extract the graph")
	require.NoError(t, err)
	assert.Equal(t, `{"nodes": [], "relationships": []}`, out)

	assert.Equal(t, "gpt-4o", captured["model"])
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "extract the graph", messages[0].(map[string]any)["content"])
}

func TestLLMAdapter_Chat(t *testing.T) {
	var captured map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "chatcmpl-2",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "What got you into hiking?"},
				"finish_reason": "stop",
			}},
		})
	})

	history := []transcript.Message{
		{Role: transcript.RoleSystem, Content: "stale system prompt"},
		{Role: transcript.RoleAssistant, Content: "What do you enjoy?"},
		{Role: transcript.RoleUser, Content: "I love hiking"},
	}
	out, err := a.Chat(context.Background(), "You are a coach.", history)
	require.NoError(t, err)
	assert.Equal(t, "What got you into hiking?", out)

	assert.NotContains(t, captured, "response_format")
	messages := captured["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "You are a coach.", messages[0].(map[string]any)["content"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	assert.Equal(t, "I love hiking", messages[2].(map[string]any)["content"])
}

func TestLLMAdapter_ChatEmptyReply(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "x",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": ""}}},
		})
	})

	_, err := a.Chat(context.Background(), "system", nil)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator))
}

func TestLLMAdapter_Embed(t *testing.T) {
	var captured map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{{
				"object":    "embedding",
				"index":     0,
				"embedding": []float32{0.25, -0.5, 1},
			}},
		})
	})

	vec, err := a.Embed(context.Background(), "hiking")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "text-embedding-3-small", captured["model"])
	assert.EqualValues(t, 384, captured["dimensions"])
}

func TestLLMAdapter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{"message": "overloaded", "type": "server_error"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{1}}},
		})
	})

	vec, err := a.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLLMAdapter_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "bad model", "type": "invalid_request_error"},
		})
	})

	_, err := a.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var failed *apperrors.ErrCollaboratorFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "completion", failed.Collaborator)
	assert.Equal(t, "gpt-4o", failed.Model)
}

func TestLLMAdapter_NoChoices(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "x", "object": "chat.completion", "choices": []any{}})
	})

	_, err := a.Complete(context.Background(), "x")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator))
}

// TestLLMAdapter_Live requires OPENAI_API_KEY and network access
func TestLLMAdapter_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	a := NewLLMAdapter("https://api.openai.com/v1", key, "gpt-4o", "text-embedding-3-small", 384)
	vec, err := a.Embed(context.Background(), "I love hiking")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}
