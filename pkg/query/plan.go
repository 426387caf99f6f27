package query

import (
	"fmt"
	"strings"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Shape is the traversal pattern of a plan.
type Shape int

const (
	// ShapeNodeOnly matches single nodes, optionally expanding one hop for
	// context.
	ShapeNodeOnly Shape = iota
	// ShapeRelationship matches node-relationship-node. Chosen for the whole
	// query as soon as any relationship predicate is present.
	ShapeRelationship
	// ShapeExpansion walks a bounded number of hops out from anchor nodes.
	ShapeExpansion
	// ShapePath joins source and target nodes by shortest paths.
	ShapePath
	// ShapeInfluence follows the influence patterns out from professionals.
	ShapeInfluence
)

func (s Shape) String() string {
	switch s {
	case ShapeNodeOnly:
		return "node-only"
	case ShapeRelationship:
		return "relationship"
	case ShapeExpansion:
		return "expansion"
	case ShapePath:
		return "path"
	case ShapeInfluence:
		return "influence"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Options bounds paging and expansion.
type Options struct {
	// DefaultLimit applies when the caller omits a limit.
	DefaultLimit int
	// MaxLimit caps any requested limit.
	MaxLimit int
	// ExpandNeighbors adds the one-hop neighborhood to node-only results.
	ExpandNeighbors bool
	// DefaultDepth and MaxDepth bound network expansion.
	DefaultDepth int
	MaxDepth     int
	// MaxPaths caps the paths enumerated per expansion anchor.
	MaxPaths int
	// DefaultPathDepth and MaxPathDepth bound path finding.
	DefaultPathDepth int
	MaxPathDepth     int
}

// DefaultOptions returns the stock paging and expansion settings.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:    1000,
		MaxLimit:        10000,
		ExpandNeighbors: true,
		DefaultDepth:    2,
		MaxDepth:        5,
		MaxPaths:        10000,

		DefaultPathDepth: 4,
		MaxPathDepth:     6,
	}
}

// ResolvePage applies the default limit, clamps to the maximum and rejects
// negative values.
func ResolvePage(limit, offset int, opts Options) (graph.Page, error) {
	if limit < 0 {
		return graph.Page{}, fmt.Errorf("%w: limit must not be negative (got %d)", graph.ErrInvalidFilter, limit)
	}
	if offset < 0 {
		return graph.Page{}, fmt.Errorf("%w: offset must not be negative (got %d)", graph.ErrInvalidFilter, offset)
	}
	if limit == 0 {
		limit = opts.DefaultLimit
	}
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		limit = opts.MaxLimit
	}
	return graph.Page{Limit: limit, Offset: offset}, nil
}

// Plan is a fully resolved traversal: the engine-agnostic description used by
// in-process engines, and the rendered Cypher with its parameters.
type Plan struct {
	Shape                  Shape
	NodePredicates         []*Predicate
	RelationshipPredicates []*Predicate

	// Anchors restricts the start node to these engine ids.
	Anchors []string
	// Targets are the end nodes of ShapePath.
	Targets []string
	// Optional keeps anchored nodes that have no relationships.
	Optional bool
	// Expand adds the one-hop neighborhood in the node-only shape.
	Expand bool
	// Depth is the hop bound for ShapeExpansion and ShapePath.
	Depth int
	// MaxPaths caps enumerated paths per anchor in ShapeExpansion. Zero
	// means no cap.
	MaxPaths int
	// Page is ignored when Unbounded is set.
	Page      graph.Page
	Unbounded bool

	Cypher string
	Params map[string]any
}

// MatchNode reports whether e passes every node predicate.
func (p *Plan) MatchNode(e *graph.Entity) bool {
	for _, pred := range p.NodePredicates {
		if !pred.MatchNode(e) {
			return false
		}
	}
	return true
}

// MatchRelationship reports whether r passes every relationship predicate.
func (p *Plan) MatchRelationship(r *graph.Relationship) bool {
	for _, pred := range p.RelationshipPredicates {
		if !pred.MatchRelationship(r) {
			return false
		}
	}
	return true
}

// Select picks the traversal shape for compiled predicates and renders the
// query. Any relationship predicate switches the entire query to
// ShapeRelationship and drops the one-hop expansion.
func Select(c *Compiled, page graph.Page, opts Options) *Plan {
	if c == nil {
		c = &Compiled{}
	}
	plan := &Plan{
		Shape:                  ShapeNodeOnly,
		NodePredicates:         c.Node,
		RelationshipPredicates: c.Relationship,
		Expand:                 opts.ExpandNeighbors,
		Page:                   page,
		Params:                 copyParams(c.Params),
	}
	if c.HasRelationshipPredicates() {
		plan.Shape = ShapeRelationship
		plan.Expand = false
	}
	plan.Params["limit"] = int64(page.Limit)
	plan.Params["offset"] = int64(page.Offset)
	plan.Cypher = render(plan)
	return plan
}

// DetailPlan fetches one entity and its whole neighborhood, unpaged.
func DetailPlan(id string) (*Plan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: entity id is required", graph.ErrInvalidFilter)
	}
	plan := &Plan{
		Shape:     ShapeRelationship,
		Anchors:   []string{id},
		Optional:  true,
		Unbounded: true,
		Params:    map[string]any{"node_id": id},
	}
	plan.Cypher = render(plan)
	return plan, nil
}

// ExpansionPlan walks up to depth hops out from the given ids over the known
// relationship types. depth 0 means the default.
func ExpansionPlan(ids []string, depth int, opts Options) (*Plan, error) {
	anchors := cleanValues(ids)
	if len(anchors) == 0 {
		return nil, fmt.Errorf("%w: at least one node id is required", graph.ErrInvalidFilter)
	}
	depth, err := resolveDepth(depth, opts.DefaultDepth, opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	page, err := ResolvePage(0, 0, opts)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Shape:    ShapeExpansion,
		Anchors:  anchors,
		Depth:    depth,
		MaxPaths: opts.MaxPaths,
		Page:     page,
		Params: map[string]any{
			"node_ids": anchors,
			"limit":    int64(page.Limit),
		},
	}
	if plan.MaxPaths > 0 {
		plan.Params["max_paths"] = int64(plan.MaxPaths)
	}
	plan.Cypher = render(plan)
	return plan, nil
}

// PathPlan finds a shortest path of at most depth hops between every source
// and every other target. depth 0 means the default. The page limit bounds the
// number of distinct relationships returned.
func PathPlan(sources, targets []string, depth int, opts Options) (*Plan, error) {
	from, to := cleanValues(sources), cleanValues(targets)
	if len(from) == 0 || len(to) == 0 {
		return nil, fmt.Errorf("%w: source and target ids are required", graph.ErrInvalidFilter)
	}
	depth, err := resolveDepth(depth, opts.DefaultPathDepth, opts.MaxPathDepth)
	if err != nil {
		return nil, err
	}
	page, err := ResolvePage(0, 0, opts)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Shape:   ShapePath,
		Anchors: from,
		Targets: to,
		Depth:   depth,
		Page:    page,
		Params: map[string]any{
			"source_ids": from,
			"target_ids": to,
			"limit":      int64(page.Limit),
		},
	}
	plan.Cypher = render(plan)
	return plan, nil
}

// InfluencePattern is one way a professional reaches an entity in its
// influence network: a chain of relationship types walked in either
// direction. The last hop is the relationship reported.
type InfluencePattern []graph.RelType

// influencePatterns is shared by the Cypher renderer and in-process engines.
var influencePatterns = []InfluencePattern{
	{graph.RelEmploys},
	{graph.RelEmploys, graph.RelCovers},
	{graph.RelEmploys, graph.RelOwns},
	{graph.RelEmploys, graph.RelCovers, graph.RelOwns},
	{graph.RelRates},
}

// InfluencePatterns returns the patterns ShapeInfluence follows.
func InfluencePatterns() []InfluencePattern {
	out := make([]InfluencePattern, len(influencePatterns))
	for i, p := range influencePatterns {
		out[i] = append(InfluencePattern(nil), p...)
	}
	return out
}

// InfluencePlan gathers the influence network of each professional id. Ids
// of other kinds produce no row.
func InfluencePlan(ids []string, opts Options) (*Plan, error) {
	anchors := cleanValues(ids)
	if len(anchors) == 0 {
		return nil, fmt.Errorf("%w: at least one professional id is required", graph.ErrInvalidFilter)
	}
	page, err := ResolvePage(0, 0, opts)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Shape:    ShapeInfluence,
		Anchors:  anchors,
		Optional: true,
		Page:     page,
		Params: map[string]any{
			"professional_ids": anchors,
			"limit":            int64(page.Limit),
		},
	}
	plan.Cypher = render(plan)
	return plan, nil
}

func resolveDepth(depth, def, max int) (int, error) {
	if depth == 0 {
		depth = def
	}
	if depth < 1 || depth > max {
		return 0, fmt.Errorf("%w: depth must be between 1 and %d (got %d)", graph.ErrInvalidFilter, max, depth)
	}
	return depth, nil
}

func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

const returnCollected = "RETURN n, collect(DISTINCT r) AS relationships, collect(DISTINCT m) AS connected_nodes"

func render(p *Plan) string {
	var b strings.Builder
	switch p.Shape {
	case ShapeExpansion:
		// Paths are unwound inside the subquery so each anchor returns its
		// distinct relationships once, however many paths reach them.
		b.WriteString("MATCH (n)\nWHERE elementId(n) IN $node_ids\n")
		b.WriteString("CALL {\n  WITH n\n")
		fmt.Fprintf(&b, "  OPTIONAL MATCH p = (n)-[:%s*1..%d]-()\n", relTypeAlternation(), p.Depth)
		b.WriteString("  WITH p\n")
		if p.MaxPaths > 0 {
			b.WriteString("  LIMIT $max_paths\n")
		}
		b.WriteString("  UNWIND relationships(p) AS r\n")
		b.WriteString("  WITH DISTINCT r\n")
		b.WriteString("  RETURN collect(r) AS relationships,\n")
		b.WriteString("         collect(DISTINCT startNode(r)) + collect(DISTINCT endNode(r)) AS connected_nodes\n")
		b.WriteString("}\n")
		b.WriteString("RETURN n, relationships, connected_nodes\n")
		b.WriteString("LIMIT $limit")
		return b.String()

	case ShapePath:
		b.WriteString("MATCH (s), (t)\n")
		b.WriteString("WHERE elementId(s) IN $source_ids\n")
		b.WriteString("  AND elementId(t) IN $target_ids\n")
		b.WriteString("  AND s <> t\n")
		fmt.Fprintf(&b, "MATCH p = shortestPath((s)-[:%s*1..%d]-(t))\n", relTypeAlternation(), p.Depth)
		b.WriteString("UNWIND relationships(p) AS r\n")
		b.WriteString("WITH DISTINCT r\n")
		b.WriteString("LIMIT $limit\n")
		b.WriteString("RETURN startNode(r) AS n, [r] AS relationships, [endNode(r)] AS connected_nodes")
		return b.String()

	case ShapeInfluence:
		fmt.Fprintf(&b, "MATCH (n:%s)\nWHERE elementId(n) IN $professional_ids\n", graph.KindProfessional.Label())
		b.WriteString("CALL {\n")
		for _, pattern := range influencePatterns {
			b.WriteString("  WITH n\n")
			fmt.Fprintf(&b, "  MATCH %s\n", patternCypher(pattern))
			b.WriteString("  RETURN r, m\n")
			b.WriteString("  UNION\n")
		}
		// keeps professionals with an empty network
		b.WriteString("  WITH n\n  RETURN null AS r, null AS m\n")
		b.WriteString("}\n")
		b.WriteString("WITH n, collect(DISTINCT r) AS relationships, collect(DISTINCT m) AS connected_nodes\n")
		b.WriteString("RETURN n, relationships, connected_nodes\n")
		b.WriteString("LIMIT $limit")
		return b.String()

	case ShapeRelationship:
		if len(p.Anchors) > 0 {
			b.WriteString("MATCH (n)\nWHERE elementId(n) = $node_id\n")
			b.WriteString("OPTIONAL MATCH (n)-[r]-(m)\n")
			b.WriteString(returnCollected)
			return b.String()
		}
		b.WriteString("MATCH (n)-[r]-(m)\n")
		writeWhere(&b, p.NodePredicates, p.RelationshipPredicates)
		b.WriteString(returnCollected)

	default:
		b.WriteString("MATCH (n)\n")
		writeWhere(&b, p.NodePredicates, nil)
		if p.Expand {
			b.WriteString("OPTIONAL MATCH (n)-[r]-(m)\n")
			b.WriteString(returnCollected)
		} else {
			b.WriteString("RETURN n, [] AS relationships, [] AS connected_nodes")
		}
	}
	b.WriteString("\nSKIP $offset\nLIMIT $limit")
	return b.String()
}

func writeWhere(b *strings.Builder, groups ...[]*Predicate) {
	var conds []string
	for _, g := range groups {
		for _, p := range g {
			conds = append(conds, p.Cypher)
		}
	}
	if len(conds) == 0 {
		return
	}
	b.WriteString("WHERE ")
	b.WriteString(strings.Join(conds, "\n  AND "))
	b.WriteString("\n")
}

func relTypeAlternation() string {
	types := graph.RelTypes()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, "|")
}

// patternCypher renders an influence pattern as an undirected chain from n to
// m, binding the last hop to r.
func patternCypher(pattern InfluencePattern) string {
	var b strings.Builder
	b.WriteString("(n)")
	for i, t := range pattern {
		if i == len(pattern)-1 {
			fmt.Fprintf(&b, "-[r:%s]-(m)", t)
		} else {
			fmt.Fprintf(&b, "-[:%s]-()", t)
		}
	}
	return b.String()
}
