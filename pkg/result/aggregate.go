// Package result assembles raw traversal rows into client payloads.
//
// Aggregation deduplicates entities and relationships by engine id with
// first-wins semantics: a later snapshot of an id already seen is dropped, not
// merged, even when it carries more properties.
package result

import (
	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Aggregator accumulates rows. The zero value is not usable; call
// NewAggregator.
type Aggregator struct {
	nodes   []*graph.Entity
	edges   []*graph.Relationship
	nodeIDs map[string]struct{}
	edgeIDs map[string]struct{}
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		nodes:   make([]*graph.Entity, 0),
		edges:   make([]*graph.Relationship, 0),
		nodeIDs: make(map[string]struct{}),
		edgeIDs: make(map[string]struct{}),
	}
}

// Add folds one row in: the primary node, then connected nodes, then
// relationships.
func (a *Aggregator) Add(row graph.Row) {
	a.addNode(row.Node)
	for _, n := range row.Connected {
		a.addNode(n)
	}
	for _, r := range row.Relationships {
		a.addEdge(r)
	}
}

func (a *Aggregator) addNode(n *graph.Entity) {
	if n == nil {
		return
	}
	if _, seen := a.nodeIDs[n.ID]; seen {
		return
	}
	a.nodeIDs[n.ID] = struct{}{}
	a.nodes = append(a.nodes, n)
}

func (a *Aggregator) addEdge(r *graph.Relationship) {
	if r == nil {
		return
	}
	if _, seen := a.edgeIDs[r.ID]; seen {
		return
	}
	a.edgeIDs[r.ID] = struct{}{}
	a.edges = append(a.edges, r)
}

// Result returns the nodes and edges in first-encounter order. Any edge
// endpoint the rows never delivered as an entity is added as a placeholder of
// kind Unknown so every edge resolves within the node list.
func (a *Aggregator) Result() ([]*graph.Entity, []*graph.Relationship) {
	for _, r := range a.edges {
		for _, id := range [2]string{r.SourceID, r.TargetID} {
			if _, ok := a.nodeIDs[id]; !ok {
				a.addNode(graph.NewEntity(id, []string{}, nil))
			}
		}
	}
	return a.nodes, a.edges
}

// Aggregate is the one-shot form of Aggregator.
func Aggregate(rows []graph.Row) ([]*graph.Entity, []*graph.Relationship) {
	agg := NewAggregator()
	for _, row := range rows {
		agg.Add(row)
	}
	return agg.Result()
}
