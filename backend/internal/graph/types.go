package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "buddy/backend/pkg/errors"
)

// ============================================================================
// Exchange Format
// ============================================================================

// GraphNode is a node as produced by the extraction step. ID is local to one batch.
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"props"`
}

// GraphRelationship links two GraphNode IDs from the same batch
type GraphRelationship struct {
	SourceID string `json:"source"`
	TargetID string `json:"target"`
	Label    string `json:"label"`
}

// GraphData is the document exchanged between the LLM collaborator and the compiler
type GraphData struct {
	Nodes         []GraphNode         `json:"nodes"`
	Relationships []GraphRelationship `json:"relationships"`
}

// IsEmpty reports whether the document has no nodes and no relationships
func (g GraphData) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Relationships) == 0
}

// JSON renders the document for prompt substitution
func (g GraphData) JSON() (string, error) {
	nodes := g.Nodes
	if nodes == nil {
		nodes = []GraphNode{}
	}
	rels := g.Relationships
	if rels == nil {
		rels = []GraphRelationship{}
	}
	data, err := json.MarshalIndent(GraphData{Nodes: nodes, Relationships: rels}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal graph data: %w", err)
	}
	return string(data), nil
}

// wire shapes used to tell "missing" apart from "empty"
type wireGraphData struct {
	Nodes         *[]wireGraphNode         `json:"nodes"`
	Relationships *[]wireGraphRelationship `json:"relationships"`
}

type wireGraphNode struct {
	ID         *string         `json:"id"`
	Label      *string         `json:"label"`
	Properties *map[string]any `json:"props"`
}

type wireGraphRelationship struct {
	SourceID *string `json:"source"`
	TargetID *string `json:"target"`
	Label    *string `json:"label"`
}

// ParseGraphData strictly decodes a collaborator response into GraphData.
// source names the producing step ("extraction", "merge") for error reporting.
// Any shape mismatch is an ErrMalformedExchangeDocument; a well-formed document
// with zero nodes and relationships is valid.
func ParseGraphData(source string, raw []byte) (GraphData, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var wire wireGraphData
	if err := dec.Decode(&wire); err != nil {
		return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), err)
	}
	if dec.More() {
		return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("trailing data after document"))
	}
	if wire.Nodes == nil {
		return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("missing \"nodes\""))
	}
	if wire.Relationships == nil {
		return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("missing \"relationships\""))
	}

	out := GraphData{
		Nodes:         make([]GraphNode, 0, len(*wire.Nodes)),
		Relationships: make([]GraphRelationship, 0, len(*wire.Relationships)),
	}

	for i, n := range *wire.Nodes {
		switch {
		case n.ID == nil || *n.ID == "":
			return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("node %d: missing \"id\"", i))
		case n.Label == nil || *n.Label == "":
			return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("node %d: missing \"label\"", i))
		case n.Properties == nil:
			return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("node %d: missing \"props\"", i))
		}
		props := make(map[string]any, len(*n.Properties))
		for k, v := range *n.Properties {
			props[k] = normalizeJSONValue(v)
		}
		out.Nodes = append(out.Nodes, GraphNode{ID: *n.ID, Label: *n.Label, Properties: props})
	}

	for i, r := range *wire.Relationships {
		if r.SourceID == nil || r.TargetID == nil || r.Label == nil || *r.Label == "" {
			return GraphData{}, apperrors.NewMalformedExchangeDocument(source, string(raw), fmt.Errorf("relationship %d: \"source\", \"target\" and \"label\" are required", i))
		}
		out.Relationships = append(out.Relationships, GraphRelationship{
			SourceID: *r.SourceID,
			TargetID: *r.TargetID,
			Label:    *r.Label,
		})
	}

	return out, nil
}

// normalizeJSONValue turns json.Number into int64 when integral, float64 otherwise
func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalizeJSONValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeJSONValue(inner)
		}
		return out
	default:
		return v
	}
}
