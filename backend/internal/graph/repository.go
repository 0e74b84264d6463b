package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "buddy/backend/pkg/errors"
	"buddy/backend/pkg/logger"
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository. An empty database selects
// the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Named("graph"),
	}
}

// Connect opens and verifies a driver for uri
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// RunStatements executes statements in order inside one explicit transaction.
// Either every statement commits or none does.
func (r *Repository) RunStatements(ctx context.Context, statements []Statement) error {
	if len(statements) == 0 {
		return nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return apperrors.NewTransactionFailed(len(statements), -1, err)
	}
	// Rollback after a successful Commit is a no-op
	defer tx.Close(ctx)

	for i, stmt := range statements {
		result, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.logger.Warn("Rollback failed", zap.Error(rbErr))
			}
			return apperrors.NewTransactionFailed(len(statements), i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewTransactionFailed(len(statements), -1, err)
	}

	r.logger.Debug("Committed statements", zap.Int("statements", len(statements)))
	return nil
}

// rowColumns returns n and m as id, labels and properties without the stored
// embedding, so vectors never leave the database on reads.
const rowColumns = `
	RETURN id(n) AS n_id, labels(n) AS n_labels, n {.*, embedding: null} AS n_props,
	       r AS rel,
	       id(m) AS m_id, labels(m) AS m_labels, m {.*, embedding: null} AS m_props,
	       %s AS score
`

// fullGraphQuery anchors on the User node itself, so a user stored without
// any relation still reads back as one node.
var fullGraphQuery = `
	MATCH (u:User {user_id: $user_id})
	OPTIONAL MATCH (u)-[*]-(reached)
	WITH u, collect(DISTINCT reached) AS reached
	UNWIND [u] + reached AS n
	WITH DISTINCT n
	OPTIONAL MATCH (n)-[r]-(m)
` + fmt.Sprintf(rowColumns, "null")

// cosineScore is CosineSimilarity over n.embedding and $embedding. Vectors of
// another length and zero-norm vectors score 0.
const cosineScore = `
	WITH n, $embedding AS q
	WITH n, q,
	     reduce(dot = 0.0, i IN range(0, size(q) - 1) | dot + n.embedding[i] * q[i]) AS dot,
	     sqrt(reduce(acc = 0.0, x IN n.embedding | acc + x * x)) AS norm_n,
	     sqrt(reduce(acc = 0.0, x IN q | acc + x * x)) AS norm_q
	WITH n, CASE
	          WHEN size(n.embedding) <> size(q) OR norm_n = 0 OR norm_q = 0 THEN 0.0
	          ELSE dot / (norm_n * norm_q)
	        END AS raw
	WITH n, CASE WHEN raw > 1.0 THEN 1.0 WHEN raw < -1.0 THEN -1.0 ELSE raw END AS score
`

var semanticSearchQuery = `
	MATCH (:User {user_id: $user_id})-[*]-(n)
	WHERE n.embedding IS NOT NULL
	WITH DISTINCT n
` + cosineScore + `
	WHERE score > $threshold
	OPTIONAL MATCH (n)-[r]-(m)
` + fmt.Sprintf(rowColumns, "score")

// FullGraph returns every node reachable from the user, the user included,
// and the relations among them. A user with no graph yields an empty snapshot.
func (r *Repository) FullGraph(ctx context.Context, userID string) (*Neo4jGraph, error) {
	rows, err := r.traverse(ctx, fullGraphQuery, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	return AssembleFull(rows)
}

// SemanticSearch returns the user's nodes whose embedding scores strictly
// above threshold against query, plus their one-hop neighbors. Scoring and
// filtering run in the database.
func (r *Repository) SemanticSearch(ctx context.Context, userID string, query []float32, threshold float64) (*Neo4jGraph, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	rows, err := r.traverse(ctx, semanticSearchQuery, map[string]any{
		"user_id":   userID,
		"embedding": toFloat64s(query),
		"threshold": threshold,
	})
	if err != nil {
		return nil, err
	}
	return AssembleSearch(rows, threshold)
}

func (r *Repository) traverse(ctx context.Context, query string, params map[string]any) ([]TraversalRow, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		rows := make([]TraversalRow, 0, len(records))
		for _, record := range records {
			row, err := traversalRowFromRecord(record)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(strings.TrimSpace(query), err)
	}
	return result.([]TraversalRow), nil
}

// EnsureSchema creates the id uniqueness constraint for every label and the
// User.user_id lookup index. Safe to run repeatedly.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	queries := make([]string, 0, len(Labels)+1)
	for _, label := range Labels {
		queries = append(queries, fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			strings.ToLower(label), label))
	}
	queries = append(queries, "CREATE INDEX user_user_id IF NOT EXISTS FOR (u:User) ON (u.user_id)")

	for _, q := range queries {
		result, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			return apperrors.NewGraphQueryFailed(q, err)
		}
		r.logger.Info("Schema statement applied", zap.String("query", q))
	}
	return nil
}
