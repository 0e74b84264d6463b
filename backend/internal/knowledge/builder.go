package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/lock"
	"buddy/backend/internal/observability"
	apperrors "buddy/backend/pkg/errors"
	"buddy/backend/pkg/logger"
)

var (
	errNoUserNode = errors.New("document has nodes but no User node")
	errEmptyMerge = errors.New("merge produced an empty graph")
)

// BuildRequest asks for the graph of one user to be rebuilt from one chat
type BuildRequest struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
	Attempt int    `json:"attempt,omitempty"`
	RetryOf string `json:"retry_of,omitempty"`
}

// BuildResult summarizes a finished cycle
type BuildResult struct {
	Mode       string `json:"mode,omitempty"` // observability.MergeDirect or MergeMerged
	Statements int    `json:"statements"`
	Empty      bool   `json:"empty"`
}

// Builder runs one extraction → reconcile → compile → commit cycle
type Builder struct {
	transcripts TranscriptSource
	extractor   *Extractor
	merger      *Merger
	compiler    *graph.Compiler
	store       GraphStore
	locker      UserLocker
	metrics     *observability.Collector
	logger      *zap.Logger
}

// NewBuilder wires a Builder
func NewBuilder(
	transcripts TranscriptSource,
	extractor *Extractor,
	merger *Merger,
	compiler *graph.Compiler,
	store GraphStore,
	locker UserLocker,
	metrics *observability.Collector,
) *Builder {
	return &Builder{
		transcripts: transcripts,
		extractor:   extractor,
		merger:      merger,
		compiler:    compiler,
		store:       store,
		locker:      locker,
		metrics:     metrics,
		logger:      logger.Named("builder"),
	}
}

// Build runs one cycle for req. Everything it writes is committed in a
// single transaction, or nothing is.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	messages, err := b.transcripts.List(ctx, req.ChatID, req.UserID)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(messages) == 0 {
		b.logger.Info("Empty transcript, nothing to build",
			zap.String("user_id", req.UserID), zap.String("chat_id", req.ChatID))
		return BuildResult{Empty: true}, nil
	}

	fresh, err := b.extractor.Extract(ctx, req.UserID, messages)
	if err != nil {
		return BuildResult{}, err
	}
	if fresh.IsEmpty() {
		b.logger.Info("Extraction found nothing to store", zap.String("user_id", req.UserID))
		return BuildResult{Empty: true}, nil
	}

	// read existing → reconcile → commit must not interleave with another build for this user
	held, err := b.locker.TryAcquire(ctx, lock.UserResource(req.UserID))
	if err != nil {
		return BuildResult{}, err
	}
	defer func() {
		if err := held.Release(context.Background()); err != nil {
			b.logger.Warn("Failed to release user lock", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}()

	stored, err := b.store.FullGraph(ctx, req.UserID)
	if err != nil {
		return BuildResult{}, err
	}
	existing := stored.ToGraphData()

	mode := observability.MergeDirect
	if !existing.IsEmpty() {
		mode = observability.MergeMerged
	}

	doc, err := b.merger.Reconcile(ctx, existing, fresh)
	if err != nil {
		return BuildResult{}, err
	}
	source := "extraction"
	if mode == observability.MergeMerged {
		source = "merge"
	}
	var owner *uuid.UUID
	if id, err := uuid.Parse(req.UserID); err == nil {
		owner = &id
	}
	if err := requireUserNode(source, doc, owner); err != nil {
		return BuildResult{}, err
	}
	statements, err := b.compiler.Compile(ctx, doc, owner)
	if err != nil {
		return BuildResult{}, err
	}
	if mode == observability.MergeMerged {
		statements = append([]graph.Statement{graph.ReplaceUserGraph(req.UserID)}, statements...)
	}

	if held.IsExpired() {
		return BuildResult{}, apperrors.NewLockNotAcquired(held.Resource(), 0, lock.ErrHeld)
	}
	if err := b.store.RunStatements(ctx, statements); err != nil {
		return BuildResult{}, err
	}

	b.metrics.RecordMerge(mode)
	b.logger.Info("Knowledge graph committed",
		zap.String("user_id", req.UserID),
		zap.String("mode", mode),
		zap.Int("statements", len(statements)))
	return BuildResult{Mode: mode, Statements: len(statements)}, nil
}

// requireUserNode rejects documents with no User node to anchor them. Nodes
// that fail classification are left for the compiler to report.
func requireUserNode(source string, doc graph.GraphData, owner *uuid.UUID) error {
	if doc.IsEmpty() {
		return apperrors.NewMalformedExchangeDocument(source, "", errEmptyMerge)
	}
	var ownerID string
	if owner != nil {
		ownerID = owner.String()
	}
	for _, gn := range doc.Nodes {
		node, err := graph.ClassifyOwned([]string{gn.Label}, gn.Properties, ownerID)
		if err != nil {
			continue
		}
		switch node.(type) {
		case graph.User:
			return nil
		}
	}
	raw, _ := doc.JSON()
	return apperrors.NewMalformedExchangeDocument(source, raw, errNoUserNode)
}
