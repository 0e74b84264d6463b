package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/transcript"
)

// fakeCompleter returns queued replies in order
type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

// fakeStore serves a fixed stored graph and records commits
type fakeStore struct {
	mu        sync.Mutex
	rows      []graph.TraversalRow
	readErr   error
	commitErr error
	reads     int
	committed [][]graph.Statement
}

func (f *fakeStore) FullGraph(_ context.Context, _ string) (*graph.Neo4jGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return graph.AssembleFull(f.rows)
}

func (f *fakeStore) RunStatements(_ context.Context, statements []graph.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, statements)
	return nil
}

func (f *fakeStore) touched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads > 0 || len(f.committed) > 0
}

type fakeTranscripts struct {
	messages []transcript.Message
	err      error
}

func (f *fakeTranscripts) List(_ context.Context, _, _ string) ([]transcript.Message, error) {
	return f.messages, f.err
}

func hikingTranscript() *fakeTranscripts {
	return &fakeTranscripts{messages: []transcript.Message{
		{Role: transcript.RoleAssistant, Content: "What do you enjoy doing?"},
		{Role: transcript.RoleUser, Content: "I love hiking"},
	}}
}

const hikingReply = `{
  "nodes": [
    {"id": "u", "label": "User", "props": {"user_id": "ignored"}},
    {"id": "i", "label": "Interest", "props": {"name": "hiking"}}
  ],
  "relationships": [
    {"source": "u", "target": "i", "label": "INTERESTED_IN"}
  ]
}`

const mergedReply = "```json\n" + `{
  "nodes": [
    {"id": "n1", "label": "User", "props": {"user_id": "ignored"}},
    {"id": "n2", "label": "Interest", "props": {"name": "hiking"}},
    {"id": "n3", "label": "Goal", "props": {"description": "run a marathon", "timeframe": "long-term"}}
  ],
  "relationships": [
    {"source": "n1", "target": "n2", "label": "INTERESTED_IN"},
    {"source": "n1", "target": "n3", "label": "HAS_GOAL"}
  ]
}` + "\n```"

// storedRows is a user(1) -HAS_GOAL-> goal(2) graph as the repository returns it
func storedRows(userID string) []graph.TraversalRow {
	user := neo4j.Node{Id: 1, Labels: []string{graph.LabelUser}, Props: map[string]any{"id": "a", "user_id": userID}}
	goal := neo4j.Node{Id: 2, Labels: []string{graph.LabelGoal}, Props: map[string]any{"id": "b", "description": "run a marathon"}}
	rel := neo4j.Relationship{Id: 9, StartId: 1, EndId: 2, Type: graph.RelHasGoal}
	return []graph.TraversalRow{
		{Node: goal, Relation: &rel, Neighbor: &user},
		{Node: user, Relation: &rel, Neighbor: &goal},
	}
}

// loneUserRows is a stored User node with no relations
func loneUserRows(userID string) []graph.TraversalRow {
	user := neo4j.Node{Id: 1, Labels: []string{graph.LabelUser}, Props: map[string]any{"id": "a", "user_id": userID}}
	return []graph.TraversalRow{{Node: user}}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func fixedNow() time.Time {
	return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
}
