package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TraversalRow is one (n, r, m, score) row of a user-scoped traversal.
// Relation and Neighbor are nil for a node with no relations.
type TraversalRow struct {
	Node     neo4j.Node
	Relation *neo4j.Relationship
	Neighbor *neo4j.Node
	// Score is the cosine score of Node against the query; zero for full reads
	Score float64
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Mismatched lengths and zero-norm vectors score 0. cosineScore
// computes the same value inside Cypher.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// ValidateThreshold rejects thresholds outside [0, 1]
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("similarity threshold must be within [0, 1], got %v", threshold)
	}
	return nil
}

// AssembleSearch keeps rows whose Node scored strictly above threshold,
// together with the one-hop neighbor and the relation joining them.
func AssembleSearch(rows []TraversalRow, threshold float64) (*Neo4jGraph, error) {
	g := NewNeo4jGraph()
	scores := make(map[int64]float64)

	for _, row := range rows {
		if row.Score <= threshold {
			continue
		}
		scores[row.Node.Id] = row.Score
		if err := g.addRow(row); err != nil {
			return nil, err
		}
	}

	g.Ranking = make([]ScoredNode, 0, len(scores))
	for id, score := range scores {
		g.Ranking = append(g.Ranking, ScoredNode{ID: id, Score: score})
	}
	sort.Slice(g.Ranking, func(i, j int) bool {
		if g.Ranking[i].Score != g.Ranking[j].Score {
			return g.Ranking[i].Score > g.Ranking[j].Score
		}
		return g.Ranking[i].ID < g.Ranking[j].ID
	})

	return g, nil
}

// AssembleFull keeps every row
func AssembleFull(rows []TraversalRow) (*Neo4jGraph, error) {
	g := NewNeo4jGraph()
	for _, row := range rows {
		if err := g.addRow(row); err != nil {
			return nil, err
		}
	}
	return g, nil
}
