package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/transcript"
	apperrors "buddy/backend/pkg/errors"
)

func parse(t *testing.T, raw string) graph.GraphData {
	t.Helper()
	data, err := graph.ParseGraphData("test", []byte(extractJSONObject(raw)))
	require.NoError(t, err)
	return data
}

func TestReconcile_EmptyExistingSkipsCompletion(t *testing.T) {
	llm := &fakeCompleter{}
	fresh := parse(t, hikingReply)

	got, err := NewMerger(llm).Reconcile(context.Background(), graph.GraphData{}, fresh)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Zero(t, llm.calls())
}

func TestReconcile_AsksModelWithBothGraphs(t *testing.T) {
	llm := &fakeCompleter{replies: []string{mergedReply}}
	m := NewMerger(llm)
	m.now = fixedNow

	existing := parse(t, `{"nodes":[{"id":"n1","label":"Goal","props":{"description":"run a marathon"}}],"relationships":[]}`)
	fresh := parse(t, hikingReply)

	got, err := m.Reconcile(context.Background(), existing, fresh)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 3)
	assert.Len(t, got.Relationships, 2)

	require.Equal(t, 1, llm.calls())
	assert.Contains(t, llm.prompts[0], "run a marathon")
	assert.Contains(t, llm.prompts[0], "hiking")
	assert.Contains(t, llm.prompts[0], "March 05, 2024")
}

func TestReconcile_MalformedReply(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"nodes": "oops"}`}}
	existing := parse(t, `{"nodes":[{"id":"n1","label":"Interest","props":{"name":"chess"}}],"relationships":[]}`)

	_, err := NewMerger(llm).Reconcile(context.Background(), existing, parse(t, hikingReply))

	var malformed *apperrors.ErrMalformedExchangeDocument
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "merge", malformed.Source)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestReconcile_CompletionFailure(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("connection reset")}
	existing := parse(t, `{"nodes":[{"id":"n1","label":"Interest","props":{"name":"chess"}}],"relationships":[]}`)

	_, err := NewMerger(llm).Reconcile(context.Background(), existing, parse(t, hikingReply))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator))
}

func TestExtract(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"Sure!\n" + hikingReply}}
	e := NewExtractor(llm)
	e.now = fixedNow

	data, err := e.Extract(context.Background(), "u-1", hikingTranscript().messages)
	require.NoError(t, err)
	assert.Len(t, data.Nodes, 2)
	assert.Contains(t, llm.prompts[0], "assistant: What do you enjoy doing?\nuser: I love hiking")
}

func TestExtract_Malformed(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"I could not find anything."}}

	_, err := NewExtractor(llm).Extract(context.Background(), "u-1", []transcript.Message{{Role: "user", Content: "hi"}})

	var malformed *apperrors.ErrMalformedExchangeDocument
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "extraction", malformed.Source)
}
