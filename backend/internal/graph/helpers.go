package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

// getProjectedNode rebuilds a node returned as <prefix>_id, <prefix>_labels
// and <prefix>_props columns. A null id means the node was not matched.
func getProjectedNode(record *neo4j.Record, prefix string) (*neo4j.Node, error) {
	rawID, _ := record.Get(prefix + "_id")
	if rawID == nil {
		return nil, nil
	}
	id, ok := rawID.(int64)
	if !ok {
		return nil, fmt.Errorf("column %s_id is %T, not an integer", prefix, rawID)
	}

	rawLabels, _ := record.Get(prefix + "_labels")
	list, ok := rawLabels.([]any)
	if !ok {
		return nil, fmt.Errorf("column %s_labels is %T, not a list", prefix, rawLabels)
	}
	labels := make([]string, 0, len(list))
	for _, l := range list {
		label, ok := l.(string)
		if !ok {
			return nil, fmt.Errorf("column %s_labels holds %T", prefix, l)
		}
		labels = append(labels, label)
	}

	rawProps, _ := record.Get(prefix + "_props")
	projected, ok := rawProps.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("column %s_props is %T, not a map", prefix, rawProps)
	}
	// the projection nulls out properties it does not ship
	props := make(map[string]any, len(projected))
	for k, v := range projected {
		if v != nil {
			props[k] = v
		}
	}

	return &neo4j.Node{Id: id, Labels: labels, Props: props}, nil
}

func getOptionalRelationship(record *neo4j.Record, key string) (*neo4j.Relationship, error) {
	val, _ := record.Get(key)
	if val == nil {
		return nil, nil
	}
	rel, ok := val.(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("column %q is %T, not a relationship", key, val)
	}
	return &rel, nil
}

func getOptionalFloat(record *neo4j.Record, key string) (float64, error) {
	val, _ := record.Get(key)
	switch v := val.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("column %q is %T, not a number", key, val)
	}
}

func traversalRowFromRecord(record *neo4j.Record) (TraversalRow, error) {
	n, err := getProjectedNode(record, "n")
	if err != nil {
		return TraversalRow{}, err
	}
	if n == nil {
		return TraversalRow{}, fmt.Errorf("record has no n node")
	}
	rel, err := getOptionalRelationship(record, "rel")
	if err != nil {
		return TraversalRow{}, err
	}
	m, err := getProjectedNode(record, "m")
	if err != nil {
		return TraversalRow{}, err
	}
	if (rel == nil) != (m == nil) {
		return TraversalRow{}, fmt.Errorf("node %d: relation and neighbor must both be present or both null", n.Id)
	}
	score, err := getOptionalFloat(record, "score")
	if err != nil {
		return TraversalRow{}, err
	}
	return TraversalRow{Node: *n, Relation: rel, Neighbor: m, Score: score}, nil
}
