// Package knowledge runs the transcript-to-graph pipeline: extraction,
// reconciliation with the stored graph, compilation and a single
// transactional commit per user, plus semantic retrieval for prompts.
package knowledge

import (
	"context"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/lock"
	"buddy/backend/internal/transcript"
	apperrors "buddy/backend/pkg/errors"
)

// Completer is the text-completion collaborator
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GraphStore reads a user's graph and commits statement batches
type GraphStore interface {
	FullGraph(ctx context.Context, userID string) (*graph.Neo4jGraph, error)
	RunStatements(ctx context.Context, statements []graph.Statement) error
}

// SearchStore serves semantic retrieval
type SearchStore interface {
	SemanticSearch(ctx context.Context, userID string, query []float32, threshold float64) (*graph.Neo4jGraph, error)
}

// TranscriptSource lists a chat's messages
type TranscriptSource interface {
	List(ctx context.Context, chatID, userID string) ([]transcript.Message, error)
}

// UserLocker grants per-user exclusion across processes
type UserLocker interface {
	TryAcquire(ctx context.Context, resource string) (*lock.Lock, error)
}

// collaboratorError types a plain failure from a collaborator
func collaboratorError(collaborator, model string, err error) error {
	if apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator) {
		return err
	}
	return apperrors.NewCollaboratorFailed(collaborator, model, err)
}
