package query

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

func TestResolvePage(t *testing.T) {
	opts := Options{DefaultLimit: 100, MaxLimit: 500}
	tests := []struct {
		name          string
		limit, offset int
		want          graph.Page
		wantErr       bool
	}{
		{"default", 0, 0, graph.Page{Limit: 100}, false},
		{"explicit", 20, 40, graph.Page{Limit: 20, Offset: 40}, false},
		{"clamped", 5000, 0, graph.Page{Limit: 500}, false},
		{"negative limit", -1, 0, graph.Page{}, true},
		{"negative offset", 10, -3, graph.Page{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePage(tt.limit, tt.offset, opts)
			if tt.wantErr {
				require.ErrorIs(t, err, graph.ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_Shapes(t *testing.T) {
	page := graph.Page{Limit: 50, Offset: 10}

	t.Run("empty filter expands neighbors", func(t *testing.T) {
		c, err := Compile(&graph.Filter{})
		require.NoError(t, err)
		plan := Select(c, page, DefaultOptions())

		assert.Equal(t, ShapeNodeOnly, plan.Shape)
		assert.True(t, plan.Expand)
		assert.Equal(t, "MATCH (n)\n"+
			"OPTIONAL MATCH (n)-[r]-(m)\n"+
			"RETURN n, collect(DISTINCT r) AS relationships, collect(DISTINCT m) AS connected_nodes\n"+
			"SKIP $offset\nLIMIT $limit", plan.Cypher)
		assert.Equal(t, map[string]any{"limit": int64(50), "offset": int64(10)}, plan.Params)
	})

	t.Run("node-only without expansion", func(t *testing.T) {
		c, err := Compile(&graph.Filter{AssetClasses: []string{"Equity"}})
		require.NoError(t, err)
		opts := DefaultOptions()
		opts.ExpandNeighbors = false
		plan := Select(c, page, opts)

		assert.Equal(t, "MATCH (n)\n"+
			"WHERE n.asset_class IN $asset_classes\n"+
			"RETURN n, [] AS relationships, [] AS connected_nodes\n"+
			"SKIP $offset\nLIMIT $limit", plan.Cypher)
	})

	t.Run("any relationship predicate forces relationship shape", func(t *testing.T) {
		c, err := Compile(&graph.Filter{
			NodeTypes:   []string{"CONSULTANT"},
			RankGroup:   []string{"Top"},
			RatingRange: graph.Bounds(1, 9),
		})
		require.NoError(t, err)
		plan := Select(c, page, DefaultOptions())

		assert.Equal(t, ShapeRelationship, plan.Shape)
		assert.False(t, plan.Expand)
		assert.True(t, strings.HasPrefix(plan.Cypher, "MATCH (n)-[r]-(m)\nWHERE any(label IN labels(n)"))
		assert.Contains(t, plan.Cypher, "\n  AND (toFloat(r.rankvalue) >= $rating_min")
		assert.Contains(t, plan.Cypher, "\n  AND r.rankgroup IN $rank_group")
		assert.NotContains(t, plan.Cypher, "OPTIONAL")
	})

	t.Run("params not shared with compiled", func(t *testing.T) {
		c, err := Compile(&graph.Filter{Regions: []string{"NAI"}})
		require.NoError(t, err)
		_ = Select(c, page, DefaultOptions())
		assert.NotContains(t, c.Params, "limit")
	})

	t.Run("every placeholder is bound", func(t *testing.T) {
		c, err := Compile(&graph.Filter{
			NodeTypes: []string{"PRODUCT"}, Regions: []string{"EMEA"}, SalesRegions: []string{"West"},
			Channels: []string{"Retail"}, AssetClasses: []string{"Equity"}, MandateStatus: []string{"Active"},
			PrivacyLevels: []string{"Public"}, LevelOfInfluence: []string{"High"}, PCA: []string{"Y"}, ACA: []string{"N"},
			Professionals: []string{"A"}, FieldProfessionals: []string{"F"}, Organizations: []string{"O"}, Offerings: []string{"P"},
			RatingRange: graph.Bounds(0, 10), RatingChange: []string{"Upgrade"}, RankGroup: []string{"Top"},
			RankValue: []string{"7"}, RankOrderRange: graph.Bounds(1, 100),
		})
		require.NoError(t, err)
		plan := Select(c, page, DefaultOptions())
		for k := range plan.Params {
			assert.Contains(t, plan.Cypher, "$"+k)
		}
	})
}

func TestSelect_RelationshipFieldsForceRelationshipShape(t *testing.T) {
	relFields := map[string]func(*graph.Filter){
		"rating_range":     func(f *graph.Filter) { f.RatingRange = graph.Bounds(2, 8) },
		"rating_change":    func(f *graph.Filter) { f.RatingChange = []string{"Upgrade"} },
		"rank_group":       func(f *graph.Filter) { f.RankGroup = []string{"Top"} },
		"rank_value":       func(f *graph.Filter) { f.RankValue = []string{"7"} },
		"rank_order_range": func(f *graph.Filter) { f.RankOrderRange = graph.MaxOnly(20) },
	}
	nodeFields := map[string]func(*graph.Filter){
		"none":          func(*graph.Filter) {},
		"node_types":    func(f *graph.Filter) { f.NodeTypes = []string{"Professional"} },
		"regions":       func(f *graph.Filter) { f.Regions = []string{"EMEA"} },
		"privacy":       func(f *graph.Filter) { f.PrivacyLevels = []string{"Public"} },
		"organizations": func(f *graph.Filter) { f.Organizations = []string{"Acme"} },
	}
	page := graph.Page{Limit: 25}

	for relName, setRel := range relFields {
		for nodeName, setNode := range nodeFields {
			t.Run(relName+"+"+nodeName, func(t *testing.T) {
				f := &graph.Filter{}
				setRel(f)
				setNode(f)
				c, err := Compile(f)
				require.NoError(t, err)
				require.Len(t, c.Relationship, 1)
				assert.Equal(t, relName, c.Relationship[0].Field)
				assert.Equal(t, TargetRelationship, c.Relationship[0].Target)
				assert.Contains(t, c.Relationship[0].Cypher, "r.")

				plan := Select(c, page, DefaultOptions())
				assert.Equal(t, ShapeRelationship, plan.Shape)
				assert.False(t, plan.Expand)
				assert.True(t, strings.HasPrefix(plan.Cypher, "MATCH (n)-[r]-(m)\n"))
				assert.NotContains(t, plan.Cypher, "OPTIONAL")
			})
		}
	}

	for nodeName, setNode := range nodeFields {
		t.Run("node only "+nodeName, func(t *testing.T) {
			f := &graph.Filter{}
			setNode(f)
			c, err := Compile(f)
			require.NoError(t, err)
			assert.Equal(t, ShapeNodeOnly, Select(c, page, DefaultOptions()).Shape)
		})
	}

	t.Run("rank_value targets the relationship", func(t *testing.T) {
		c, err := Compile(&graph.Filter{RankValue: []string{"7", "8"}})
		require.NoError(t, err)
		require.Empty(t, c.Node)
		require.Len(t, c.Relationship, 1)
		assert.Equal(t, "r.rankvalue IN $rank_value", c.Relationship[0].Cypher)
		assert.Equal(t, map[string]any{"rank_value": []string{"7", "8"}}, c.Params)
	})
}

func TestCompile_MinOnlyEqualsMinToCeiling(t *testing.T) {
	ranges := []struct {
		name    string
		ceiling float64
		set     func(*graph.Filter, *graph.Range)
	}{
		{"rating_range", RatingCeiling, func(f *graph.Filter, r *graph.Range) { f.RatingRange = r }},
		{"rank_order_range", RankOrderCeiling, func(f *graph.Filter, r *graph.Range) { f.RankOrderRange = r }},
	}
	for _, rng := range ranges {
		for _, min := range []float64{1, 2.5, 7, rng.ceiling} {
			t.Run(fmt.Sprintf("%s/%v", rng.name, min), func(t *testing.T) {
				minOnly, bounded := &graph.Filter{}, &graph.Filter{}
				rng.set(minOnly, graph.MinOnly(min))
				rng.set(bounded, graph.Bounds(min, rng.ceiling))

				a, err := Compile(minOnly)
				require.NoError(t, err)
				b, err := Compile(bounded)
				require.NoError(t, err)
				assert.Equal(t, b.Params, a.Params)
				assert.Equal(t, b.Fields(), a.Fields())
				require.Len(t, a.Relationship, 1)
				assert.Equal(t, b.Relationship[0].Cypher, a.Relationship[0].Cypher)
				for _, v := range []any{0, 1, 2.5, 7, 10, 11, 100, 101} {
					r := &graph.Relationship{ID: "r", Type: graph.RelRates, Properties: graph.Properties{"rankvalue": v, "rankorder": v}}
					assert.Equal(t, b.Relationship[0].MatchRelationship(r), a.Relationship[0].MatchRelationship(r), "value %v", v)
				}

				opts := DefaultOptions()
				page := graph.Page{Limit: 10}
				assert.Equal(t, Select(b, page, opts).Cypher, Select(a, page, opts).Cypher)
			})
		}
	}
}

func TestDetailPlan(t *testing.T) {
	plan, err := DetailPlan("4:abc:12")
	require.NoError(t, err)
	assert.Equal(t, ShapeRelationship, plan.Shape)
	assert.True(t, plan.Optional)
	assert.True(t, plan.Unbounded)
	assert.Equal(t, []string{"4:abc:12"}, plan.Anchors)
	assert.Equal(t, map[string]any{"node_id": "4:abc:12"}, plan.Params)
	assert.Contains(t, plan.Cypher, "WHERE elementId(n) = $node_id")
	assert.Contains(t, plan.Cypher, "OPTIONAL MATCH (n)-[r]-(m)")
	assert.NotContains(t, plan.Cypher, "LIMIT")

	_, err = DetailPlan("  ")
	require.ErrorIs(t, err, graph.ErrInvalidFilter)
}

func TestExpansionPlan(t *testing.T) {
	opts := DefaultOptions()

	plan, err := ExpansionPlan([]string{"a", "", "b"}, 0, opts)
	require.NoError(t, err)
	assert.Equal(t, ShapeExpansion, plan.Shape)
	assert.Equal(t, opts.DefaultDepth, plan.Depth)
	assert.Equal(t, []string{"a", "b"}, plan.Anchors)
	assert.Contains(t, plan.Cypher, "-[:EMPLOYS|COVERS|OWNS|RATES*1..2]-")
	assert.Equal(t, int64(opts.DefaultLimit), plan.Params["limit"])

	plan, err = ExpansionPlan([]string{"a"}, 4, opts)
	require.NoError(t, err)
	assert.Contains(t, plan.Cypher, "*1..4]")

	for name, tc := range map[string]struct {
		ids   []string
		depth int
	}{
		"no ids":         {nil, 1},
		"only blank ids": {[]string{" "}, 1},
		"negative depth": {[]string{"a"}, -1},
		"depth too deep": {[]string{"a"}, opts.MaxDepth + 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ExpansionPlan(tc.ids, tc.depth, opts)
			require.ErrorIs(t, err, graph.ErrInvalidFilter)
		})
	}
}

var placeholder = regexp.MustCompile(`\$([A-Za-z_]+)`)

// assertBound checks that every placeholder has a parameter and every
// parameter is used.
func assertBound(t *testing.T, plan *Plan) {
	t.Helper()
	used := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(plan.Cypher, -1) {
		used[m[1]] = true
		assert.Contains(t, plan.Params, m[1])
	}
	for k := range plan.Params {
		assert.True(t, used[k], "parameter %s unused", k)
	}
}

func TestExpansionPlan_DistinctRelationshipsPerAnchor(t *testing.T) {
	opts := DefaultOptions()
	plan, err := ExpansionPlan([]string{"a"}, 2, opts)
	require.NoError(t, err)

	assert.Equal(t, "MATCH (n)\n"+
		"WHERE elementId(n) IN $node_ids\n"+
		"CALL {\n"+
		"  WITH n\n"+
		"  OPTIONAL MATCH p = (n)-[:EMPLOYS|COVERS|OWNS|RATES*1..2]-()\n"+
		"  WITH p\n"+
		"  LIMIT $max_paths\n"+
		"  UNWIND relationships(p) AS r\n"+
		"  WITH DISTINCT r\n"+
		"  RETURN collect(r) AS relationships,\n"+
		"         collect(DISTINCT startNode(r)) + collect(DISTINCT endNode(r)) AS connected_nodes\n"+
		"}\n"+
		"RETURN n, relationships, connected_nodes\n"+
		"LIMIT $limit", plan.Cypher)
	assert.Equal(t, int64(opts.MaxPaths), plan.Params["max_paths"])
	assert.Equal(t, opts.MaxPaths, plan.MaxPaths)
	assertBound(t, plan)

	opts.MaxPaths = 0
	plan, err = ExpansionPlan([]string{"a"}, 2, opts)
	require.NoError(t, err)
	assert.NotContains(t, plan.Cypher, "max_paths")
	assertBound(t, plan)
}

func TestPathPlan(t *testing.T) {
	opts := DefaultOptions()

	plan, err := PathPlan([]string{"a", " "}, []string{"b"}, 0, opts)
	require.NoError(t, err)
	assert.Equal(t, ShapePath, plan.Shape)
	assert.Equal(t, opts.DefaultPathDepth, plan.Depth)
	assert.Equal(t, []string{"a"}, plan.Anchors)
	assert.Equal(t, []string{"b"}, plan.Targets)
	assert.Equal(t, "MATCH (s), (t)\n"+
		"WHERE elementId(s) IN $source_ids\n"+
		"  AND elementId(t) IN $target_ids\n"+
		"  AND s <> t\n"+
		"MATCH p = shortestPath((s)-[:EMPLOYS|COVERS|OWNS|RATES*1..4]-(t))\n"+
		"UNWIND relationships(p) AS r\n"+
		"WITH DISTINCT r\n"+
		"LIMIT $limit\n"+
		"RETURN startNode(r) AS n, [r] AS relationships, [endNode(r)] AS connected_nodes", plan.Cypher)
	assertBound(t, plan)

	plan, err = PathPlan([]string{"a"}, []string{"b"}, opts.MaxPathDepth, opts)
	require.NoError(t, err)
	assert.Contains(t, plan.Cypher, "*1..6]")

	for name, tc := range map[string]struct {
		from, to []string
		depth    int
	}{
		"no sources":     {nil, []string{"b"}, 1},
		"blank targets":  {[]string{"a"}, []string{""}, 1},
		"negative depth": {[]string{"a"}, []string{"b"}, -2},
		"depth too deep": {[]string{"a"}, []string{"b"}, opts.MaxPathDepth + 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PathPlan(tc.from, tc.to, tc.depth, opts)
			require.ErrorIs(t, err, graph.ErrInvalidFilter)
		})
	}
}

func TestInfluencePlan(t *testing.T) {
	plan, err := InfluencePlan([]string{"c1", "c2"}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ShapeInfluence, plan.Shape)
	assert.Equal(t, []string{"c1", "c2"}, plan.Anchors)
	assertBound(t, plan)

	assert.True(t, strings.HasPrefix(plan.Cypher, "MATCH (n:CONSULTANT)\nWHERE elementId(n) IN $professional_ids\nCALL {\n"))
	for _, want := range []string{
		"  MATCH (n)-[r:EMPLOYS]-(m)\n",
		"  MATCH (n)-[:EMPLOYS]-()-[r:COVERS]-(m)\n",
		"  MATCH (n)-[:EMPLOYS]-()-[r:OWNS]-(m)\n",
		"  MATCH (n)-[:EMPLOYS]-()-[:COVERS]-()-[r:OWNS]-(m)\n",
		"  MATCH (n)-[r:RATES]-(m)\n",
		"  WITH n\n  RETURN null AS r, null AS m\n}\n",
	} {
		assert.Contains(t, plan.Cypher, want)
	}
	assert.Equal(t, len(InfluencePatterns()), strings.Count(plan.Cypher, "UNION"))
	assert.True(t, strings.HasSuffix(plan.Cypher, "RETURN n, relationships, connected_nodes\nLIMIT $limit"))

	_, err = InfluencePlan([]string{" "}, DefaultOptions())
	require.ErrorIs(t, err, graph.ErrInvalidFilter)
}
