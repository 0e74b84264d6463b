package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRelation is a directed, typed edge between two engine node ids
type Neo4jRelation struct {
	SrcID int64
	DstID int64
	Type  string
}

// ScoredNode is a direct semantic match
type ScoredNode struct {
	ID    int64
	Score float64
}

// Neo4jGraph is a deduplicated snapshot of persisted nodes and relations,
// keyed by the engine's internal ids.
type Neo4jGraph struct {
	Nodes     map[int64]Node
	Relations map[Neo4jRelation]struct{}
	// Ranking lists direct matches by descending score; empty for full reads
	Ranking []ScoredNode
}

// NewNeo4jGraph creates an empty snapshot
func NewNeo4jGraph() *Neo4jGraph {
	return &Neo4jGraph{
		Nodes:     make(map[int64]Node),
		Relations: make(map[Neo4jRelation]struct{}),
	}
}

// IsEmpty reports whether the snapshot holds no nodes
func (g *Neo4jGraph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Relations) == 0
}

// addNode classifies and stores an engine node once
func (g *Neo4jGraph) addNode(n neo4j.Node) error {
	if _, seen := g.Nodes[n.Id]; seen {
		return nil
	}
	node, err := Classify(n.Labels, n.Props)
	if err != nil {
		return fmt.Errorf("node %d: %w", n.Id, err)
	}
	g.Nodes[n.Id] = node
	return nil
}

func (g *Neo4jGraph) addRelation(r neo4j.Relationship) {
	g.Relations[Neo4jRelation{SrcID: r.StartId, DstID: r.EndId, Type: r.Type}] = struct{}{}
}

func (g *Neo4jGraph) addRow(row TraversalRow) error {
	if err := g.addNode(row.Node); err != nil {
		return err
	}
	if row.Relation == nil || row.Neighbor == nil {
		return nil
	}
	if err := g.addNode(*row.Neighbor); err != nil {
		return err
	}
	g.addRelation(*row.Relation)
	return nil
}

// SortedRelations returns the relation set ordered by source, target, type
func (g *Neo4jGraph) SortedRelations() []Neo4jRelation {
	rels := make([]Neo4jRelation, 0, len(g.Relations))
	for r := range g.Relations {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SrcID != rels[j].SrcID {
			return rels[i].SrcID < rels[j].SrcID
		}
		if rels[i].DstID != rels[j].DstID {
			return rels[i].DstID < rels[j].DstID
		}
		return rels[i].Type < rels[j].Type
	})
	return rels
}

func (g *Neo4jGraph) sortedNodeIDs() []int64 {
	ids := make([]int64, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ToContext renders the snapshot as prompt context: direct matches first,
// then their neighbors, then one line per relation.
func (g *Neo4jGraph) ToContext() string {
	if g.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Known about the user:\n")

	ranked := make(map[int64]bool, len(g.Ranking))
	for _, s := range g.Ranking {
		ranked[s.ID] = true
		if node, ok := g.Nodes[s.ID]; ok {
			sb.WriteString(fmt.Sprintf("- %s\n", node.Describe()))
		}
	}
	for _, id := range g.sortedNodeIDs() {
		if ranked[id] {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s\n", g.Nodes[id].Describe()))
	}

	rels := g.SortedRelations()
	if len(rels) > 0 {
		sb.WriteString("\nConnections:\n")
		for _, r := range rels {
			src, okSrc := g.Nodes[r.SrcID]
			dst, okDst := g.Nodes[r.DstID]
			if !okSrc || !okDst {
				continue
			}
			sb.WriteString(fmt.Sprintf("- %s -[%s]-> %s\n", src.Describe(), r.Type, dst.Describe()))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// ToGraphData converts the snapshot to the exchange format with local ids
// "n<engine id>". Relations whose endpoints are not in the snapshot are dropped.
func (g *Neo4jGraph) ToGraphData() GraphData {
	data := GraphData{
		Nodes:         make([]GraphNode, 0, len(g.Nodes)),
		Relationships: make([]GraphRelationship, 0, len(g.Relations)),
	}
	for _, id := range g.sortedNodeIDs() {
		gn := g.Nodes[id].ToGraphNode()
		gn.ID = localID(id)
		data.Nodes = append(data.Nodes, gn)
	}
	for _, r := range g.SortedRelations() {
		if _, ok := g.Nodes[r.SrcID]; !ok {
			continue
		}
		if _, ok := g.Nodes[r.DstID]; !ok {
			continue
		}
		data.Relationships = append(data.Relationships, GraphRelationship{
			SourceID: localID(r.SrcID),
			TargetID: localID(r.DstID),
			Label:    r.Type,
		})
	}
	return data
}

func localID(engineID int64) string {
	return fmt.Sprintf("n%d", engineID)
}
