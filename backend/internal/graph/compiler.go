package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"buddy/backend/pkg/logger"
	apperrors "buddy/backend/pkg/errors"
)

// Statement is one parameterized Cypher mutation
type Statement struct {
	Cypher string
	Params map[string]any
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultEmbedConcurrency bounds parallel embedding calls per compilation
const DefaultEmbedConcurrency = 4

var propertyKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compiler translates GraphData into Cypher statements
type Compiler struct {
	embedder    Embedder
	concurrency int
	logger      *zap.Logger
}

// NewCompiler creates a compiler backed by embedder
func NewCompiler(embedder Embedder) *Compiler {
	return &Compiler{
		embedder:    embedder,
		concurrency: DefaultEmbedConcurrency,
		logger:      logger.Get(),
	}
}

// WithConcurrency sets the embedding fan-out; values below 1 mean 1
func (c *Compiler) WithConcurrency(n int) *Compiler {
	if n < 1 {
		n = 1
	}
	c.concurrency = n
	return c
}

type compiledNode struct {
	node     Node
	stableID string
	props    map[string]any
}

// Compile validates data and returns one CREATE statement per node followed by
// one MATCH/CREATE statement per relationship, both in input order. When owner
// is non-nil its id is injected as user_id on every User node. On any error no
// statement is returned.
func (c *Compiler) Compile(ctx context.Context, data GraphData, owner *uuid.UUID) ([]Statement, error) {
	arena := NewIDArena(len(data.Nodes))
	nodes := make([]compiledNode, len(data.Nodes))
	byLocal := make(map[string]int, len(data.Nodes))

	for i, gn := range data.Nodes {
		props := make(map[string]any, len(gn.Properties)+1)
		for k, v := range gn.Properties {
			props[k] = v
		}
		delete(props, "id")
		delete(props, "embedding")

		var ownerID string
		if owner != nil {
			ownerID = owner.String()
		}
		node, err := ClassifyOwned([]string{gn.Label}, props, ownerID)
		if err != nil {
			return nil, apperrors.NewMalformedNode(i, gn.ID, err)
		}
		for k, v := range props {
			if v == nil {
				delete(props, k)
				continue
			}
			if !propertyKeyPattern.MatchString(k) {
				return nil, apperrors.NewMalformedNode(i, gn.ID,
					apperrors.NewInvalidProperty(gn.Label, k, "property key is not a plain identifier"))
			}
			if !storableValue(v) {
				return nil, apperrors.NewMalformedNode(i, gn.ID,
					apperrors.NewInvalidProperty(gn.Label, k, fmt.Sprintf("%T cannot be stored as a property", v)))
			}
		}

		stableID, err := arena.Mint(gn.ID)
		if err != nil {
			return nil, apperrors.NewMalformedNode(i, gn.ID, err)
		}

		// canonical values win over what the batch sent
		for k, v := range node.ToGraphNode().Properties {
			props[k] = v
		}

		nodes[i] = compiledNode{node: node, stableID: stableID, props: props}
		byLocal[gn.ID] = i
	}

	// Relationships are validated before any embedding call is spent
	relStatements := make([]Statement, 0, len(data.Relationships))
	for i, rel := range data.Relationships {
		relType, ok := NormalizeRelationshipType(rel.Label)
		if !ok {
			return nil, apperrors.NewInvalidRelationship(i, rel.Label)
		}
		source, ok := arena.Stable(rel.SourceID)
		if !ok {
			return nil, apperrors.NewIdentifierResolution(i, "source", rel.SourceID)
		}
		target, ok := arena.Stable(rel.TargetID)
		if !ok {
			return nil, apperrors.NewIdentifierResolution(i, "target", rel.TargetID)
		}
		from, to := nodes[byLocal[rel.SourceID]].node, nodes[byLocal[rel.TargetID]].node
		if !AllowsRelationship(from, relType, to) {
			return nil, apperrors.NewRelationshipEndpointMismatch(i, relType, from.Label(), to.Label())
		}
		relStatements = append(relStatements, relationshipStatement(from.Label(), to.Label(), relType, source, target))
	}

	embeddings, err := c.embedAll(ctx, nodes)
	if err != nil {
		return nil, err
	}

	statements := make([]Statement, 0, len(nodes)+len(relStatements))
	for i, n := range nodes {
		statements = append(statements, nodeStatement(n, embeddings[i]))
	}
	statements = append(statements, relStatements...)

	c.logger.Debug("Compiled graph data",
		zap.Int("nodes", len(nodes)),
		zap.Int("relationships", len(relStatements)),
		zap.Int("statements", len(statements)),
	)
	return statements, nil
}

// embedAll embeds every embeddable node. Results are indexed like nodes; nil
// marks a node that carries no embedding.
func (c *Compiler) embedAll(ctx context.Context, nodes []compiledNode) ([][]float64, error) {
	out := make([][]float64, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, n := range nodes {
		text, ok := n.node.EmbeddingText()
		if !ok {
			continue
		}
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, text)
			if err != nil {
				if apperrors.IsErrorType(err, apperrors.ErrorTypeCollaborator) {
					return fmt.Errorf("embedding %s node %d: %w", n.node.Label(), i, err)
				}
				return apperrors.NewCollaboratorFailed("embedding", "", fmt.Errorf("%s node %d: %w", n.node.Label(), i, err))
			}
			out[i] = toFloat64s(vec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func nodeStatement(n compiledNode, embedding []float64) Statement {
	keys := make([]string, 0, len(n.props))
	for k := range n.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make(map[string]any, len(keys)+2)
	fields := make([]string, 0, len(keys)+2)

	params["id"] = n.stableID
	fields = append(fields, "id: $id")
	for i, k := range keys {
		name := fmt.Sprintf("p%d", i)
		params[name] = n.props[k]
		fields = append(fields, fmt.Sprintf("%s: $%s", k, name))
	}
	if embedding != nil {
		params["embedding"] = embedding
		fields = append(fields, "embedding: $embedding")
	}

	return Statement{
		Cypher: fmt.Sprintf("CREATE (n:%s {%s})", n.node.Label(), strings.Join(fields, ", ")),
		Params: params,
	}
}

func relationshipStatement(sourceLabel, targetLabel, relType, source, target string) Statement {
	return Statement{
		Cypher: fmt.Sprintf("MATCH (n:%s), (m:%s) WHERE n.id = $source AND m.id = $target CREATE (n)-[:%s]->(m)",
			sourceLabel, targetLabel, relType),
		Params: map[string]any{"source": source, "target": target},
	}
}

// ReplaceUserGraph deletes the subgraph reachable from the user so a merged
// document can take its place inside the same transaction.
func ReplaceUserGraph(userID string) Statement {
	return Statement{
		Cypher: `MATCH (u:User {user_id: $user_id})
OPTIONAL MATCH (u)-[*]-(n)
WITH collect(DISTINCT n) + collect(DISTINCT u) AS doomed
UNWIND doomed AS d
DETACH DELETE d`,
		Params: map[string]any{"user_id": userID},
	}
}

// storableValue reports whether Neo4j accepts v as a property value:
// a scalar, or a list of scalars.
func storableValue(v any) bool {
	switch val := v.(type) {
	case string, bool, int64, int, float64:
		return true
	case []any:
		for _, item := range val {
			switch item.(type) {
			case string, bool, int64, int, float64:
			default:
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
