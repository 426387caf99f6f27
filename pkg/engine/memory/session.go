package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/query"
)

type session struct {
	engine *Engine
	once   sync.Once
}

var _ engine.Session = (*session)(nil)

// begin checks the context, injected failures and engine state, and takes
// the read lock. Callers must call the returned release.
func (s *session) begin(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, err)
	}
	if err := s.engine.injected(); err != nil {
		return nil, err
	}
	s.engine.mu.RLock()
	if s.engine.closed {
		s.engine.mu.RUnlock()
		return nil, fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, ErrClosed)
	}
	return s.engine.mu.RUnlock, nil
}

// Traverse evaluates plan against the stored graph. Rows come out in node
// insertion order; paging applies to rows.
func (s *session) Traverse(ctx context.Context, plan *query.Plan) ([]graph.Row, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []graph.Row
	switch {
	case plan.Shape == query.ShapeExpansion:
		rows = s.expand(plan)
	case plan.Shape == query.ShapePath:
		rows = s.paths(plan)
	case plan.Shape == query.ShapeInfluence:
		rows = s.influence(plan)
	case len(plan.Anchors) > 0:
		rows = s.anchored(plan)
	case plan.Shape == query.ShapeRelationship:
		rows = s.relationshipRows(plan)
	default:
		rows = s.nodeRows(plan)
	}

	if plan.Unbounded {
		return rows, nil
	}
	return page(rows, plan.Page), nil
}

func page(rows []graph.Row, p graph.Page) []graph.Row {
	if p.Offset >= len(rows) {
		return []graph.Row{}
	}
	rows = rows[p.Offset:]
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	return rows
}

// nodeRows mirrors MATCH (n) WHERE ... [OPTIONAL MATCH (n)-[r]-(m)].
func (s *session) nodeRows(plan *query.Plan) []graph.Row {
	var rows []graph.Row
	for _, id := range s.engine.nodeOrder {
		n := s.engine.nodes[id]
		if !plan.MatchNode(n) {
			continue
		}
		row := graph.Row{Node: copyEntity(n)}
		if plan.Expand {
			s.collectNeighbors(&row, id, func(*graph.Relationship) bool { return true })
		}
		rows = append(rows, row)
	}
	return rows
}

// relationshipRows mirrors MATCH (n)-[r]-(m) WHERE ...: a node yields a row
// only when at least one incident relationship passes.
func (s *session) relationshipRows(plan *query.Plan) []graph.Row {
	var rows []graph.Row
	for _, id := range s.engine.nodeOrder {
		n := s.engine.nodes[id]
		if !plan.MatchNode(n) {
			continue
		}
		row := graph.Row{Node: copyEntity(n)}
		s.collectNeighbors(&row, id, plan.MatchRelationship)
		if len(row.Relationships) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// anchored mirrors the detail query: the anchor plus an optional one-hop
// neighborhood. Unknown anchors produce no row.
func (s *session) anchored(plan *query.Plan) []graph.Row {
	var rows []graph.Row
	for _, id := range plan.Anchors {
		n, ok := s.engine.nodes[id]
		if !ok {
			continue
		}
		row := graph.Row{Node: copyEntity(n)}
		s.collectNeighbors(&row, id, plan.MatchRelationship)
		if len(row.Relationships) == 0 && !plan.Optional {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *session) collectNeighbors(row *graph.Row, id string, keep func(*graph.Relationship) bool) {
	seen := make(map[string]bool)
	for _, eid := range s.engine.incident[id] {
		r := s.engine.edges[eid]
		if !keep(r) {
			continue
		}
		row.Relationships = append(row.Relationships, copyRelationship(r))
		other := r.Other(id)
		if seen[other] {
			continue
		}
		seen[other] = true
		row.Connected = append(row.Connected, copyEntity(s.engine.nodes[other]))
	}
}

// expand walks breadth-first over the known relationship types, up to
// plan.Depth hops from each anchor. The anchor itself is not repeated in
// Connected.
func (s *session) expand(plan *query.Plan) []graph.Row {
	allowed := knownTypes()

	var rows []graph.Row
	for _, anchor := range plan.Anchors {
		n, ok := s.engine.nodes[anchor]
		if !ok {
			continue
		}
		row := graph.Row{Node: copyEntity(n)}
		visited := map[string]bool{anchor: true}
		usedEdge := make(map[string]bool)
		frontier := []string{anchor}
		for depth := 0; depth < plan.Depth && len(frontier) > 0; depth++ {
			var next []string
			for _, id := range frontier {
				for _, eid := range s.engine.incident[id] {
					r := s.engine.edges[eid]
					if !allowed[r.Type] || usedEdge[eid] {
						continue
					}
					usedEdge[eid] = true
					row.Relationships = append(row.Relationships, copyRelationship(r))
					other := r.Other(id)
					if visited[other] {
						continue
					}
					visited[other] = true
					row.Connected = append(row.Connected, copyEntity(s.engine.nodes[other]))
					next = append(next, other)
				}
			}
			frontier = next
		}
		rows = append(rows, row)
	}
	return rows
}

// paths mirrors the shortestPath query: for every source and every distinct
// target, one breadth-first shortest path of at most plan.Depth hops. Each
// distinct relationship on any path becomes a row rooted at its source node.
func (s *session) paths(plan *query.Plan) []graph.Row {
	allowed := knownTypes()
	var rows []graph.Row
	seen := make(map[string]bool)
	for _, src := range plan.Anchors {
		if _, ok := s.engine.nodes[src]; !ok {
			continue
		}
		for _, dst := range plan.Targets {
			if dst == src {
				continue
			}
			if _, ok := s.engine.nodes[dst]; !ok {
				continue
			}
			for _, eid := range s.shortestPath(src, dst, plan.Depth, allowed) {
				if seen[eid] {
					continue
				}
				seen[eid] = true
				r := s.engine.edges[eid]
				rows = append(rows, graph.Row{
					Node:          copyEntity(s.engine.nodes[r.SourceID]),
					Connected:     []*graph.Entity{copyEntity(s.engine.nodes[r.TargetID])},
					Relationships: []*graph.Relationship{copyRelationship(r)},
				})
			}
		}
	}
	return rows
}

// shortestPath returns the relationship ids of one shortest undirected path
// from src to dst, or nil when none is within maxHops.
func (s *session) shortestPath(src, dst string, maxHops int, allowed map[graph.RelType]bool) []string {
	type step struct{ from, edge string }
	prev := map[string]step{src: {}}
	frontier := []string{src}
	for hops := 0; hops < maxHops && len(frontier) > 0; hops++ {
		var next []string
		for _, id := range frontier {
			for _, eid := range s.engine.incident[id] {
				r := s.engine.edges[eid]
				if !allowed[r.Type] {
					continue
				}
				other := r.Other(id)
				if _, visited := prev[other]; visited {
					continue
				}
				prev[other] = step{from: id, edge: eid}
				if other == dst {
					var path []string
					for at := dst; at != src; at = prev[at].from {
						path = append(path, prev[at].edge)
					}
					for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
						path[i], path[j] = path[j], path[i]
					}
					return path
				}
				next = append(next, other)
			}
		}
		frontier = next
	}
	return nil
}

// influence mirrors the influence subquery: every pattern is walked from the
// professional without reusing a relationship, and the last hop of each match
// is kept. Professionals with no matches still yield a row.
func (s *session) influence(plan *query.Plan) []graph.Row {
	label := graph.KindProfessional.Label()
	var rows []graph.Row
	for _, anchor := range plan.Anchors {
		n, ok := s.engine.nodes[anchor]
		if !ok || !n.HasLabel(label) {
			continue
		}
		row := graph.Row{Node: copyEntity(n)}
		seenEdge := make(map[string]bool)
		seenNode := make(map[string]bool)
		for _, pattern := range query.InfluencePatterns() {
			s.walkPattern(anchor, pattern, map[string]bool{}, func(r *graph.Relationship, end string) {
				if !seenEdge[r.ID] {
					seenEdge[r.ID] = true
					row.Relationships = append(row.Relationships, copyRelationship(r))
				}
				if !seenNode[end] {
					seenNode[end] = true
					row.Connected = append(row.Connected, copyEntity(s.engine.nodes[end]))
				}
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *session) walkPattern(at string, pattern query.InfluencePattern, used map[string]bool, emit func(*graph.Relationship, string)) {
	if len(pattern) == 0 {
		return
	}
	for _, eid := range s.engine.incident[at] {
		r := s.engine.edges[eid]
		if r.Type != pattern[0] || used[eid] {
			continue
		}
		other := r.Other(at)
		if len(pattern) == 1 {
			emit(r, other)
			continue
		}
		used[eid] = true
		s.walkPattern(other, pattern[1:], used, emit)
		delete(used, eid)
	}
}

func knownTypes() map[graph.RelType]bool {
	allowed := make(map[graph.RelType]bool)
	for _, t := range graph.RelTypes() {
		allowed[t] = true
	}
	return allowed
}

// Statistics counts the whole graph.
func (s *session) Statistics(ctx context.Context) (*engine.Statistics, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := &engine.Statistics{
		Nodes:  int64(len(s.engine.nodes)),
		Edges:  int64(len(s.engine.edges)),
		Labels: make(map[string]int64),
		Types:  make(map[string]int64),
	}
	for _, n := range s.engine.nodes {
		for _, l := range n.Labels {
			stats.Labels[l]++
		}
	}
	for _, r := range s.engine.edges {
		stats.Types[string(r.Type)]++
	}
	return stats, nil
}

// DistinctValues lists the sorted distinct non-empty values of a property.
func (s *session) DistinctValues(ctx context.Context, src engine.ValueSource) ([]string, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	set := make(map[string]struct{})
	add := func(props graph.Properties) {
		values, ok := props.Strings(src.Property)
		if !ok {
			return
		}
		for _, v := range values {
			if v != "" {
				set[v] = struct{}{}
			}
		}
	}
	if src.RelType != "" {
		for _, r := range s.engine.edges {
			if r.Type == src.RelType {
				add(r.Properties)
			}
		}
	} else {
		for _, n := range s.engine.nodes {
			if src.Label == "" || n.HasLabel(src.Label) {
				add(n.Properties)
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Entities lists named entities of kind, sorted by name.
func (s *session) Entities(ctx context.Context, kind graph.Kind) ([]graph.NamedEntity, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	label := kind.Label()
	if label == "" {
		return nil, fmt.Errorf("%w: no label for kind %q", graph.ErrEngineError, kind)
	}
	var out []graph.NamedEntity
	for _, id := range s.engine.nodeOrder {
		n := s.engine.nodes[id]
		if !n.HasLabel(label) {
			continue
		}
		name, ok := n.Properties["name"]
		if !ok || name == nil {
			continue
		}
		out = append(out, graph.NamedEntity{ID: id, Name: cast.ToString(name)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *session) Close(context.Context) error {
	s.once.Do(func() { s.engine.open.Add(-1) })
	return nil
}
