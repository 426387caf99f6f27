package result

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

func node(id, label string, props graph.Properties) *graph.Entity {
	return graph.NewEntity(id, []string{label}, props)
}

func rel(id string, typ graph.RelType, src, dst string, props graph.Properties) *graph.Relationship {
	return &graph.Relationship{ID: id, Type: typ, SourceID: src, TargetID: dst, Properties: props}
}

func nodeIDs(nodes []*graph.Entity) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func edgeIDs(edges []*graph.Relationship) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.ID)
	}
	return out
}

func TestAggregate_DedupFirstWins(t *testing.T) {
	org := node("o1", "COMPANY", graph.Properties{"name": "Acme"})
	orgRicher := node("o1", "COMPANY", graph.Properties{"name": "Acme", "region": "EMEA"})
	c1 := node("c1", "CONSULTANT", nil)
	c2 := node("c2", "CONSULTANT", nil)
	e1 := rel("e1", graph.RelEmploys, "o1", "c1", nil)
	e2 := rel("e2", graph.RelEmploys, "o1", "c2", nil)

	nodes, edges := Aggregate([]graph.Row{
		{Node: org, Connected: []*graph.Entity{c1}, Relationships: []*graph.Relationship{e1}},
		{Node: orgRicher, Connected: []*graph.Entity{c2, c1}, Relationships: []*graph.Relationship{e2, e1}},
		{Node: c1},
	})

	assert.Equal(t, []string{"o1", "c1", "c2"}, nodeIDs(nodes))
	assert.Equal(t, []string{"e1", "e2"}, edgeIDs(edges))
	assert.Same(t, org, nodes[0], "first snapshot kept")
	_, hasRegion := nodes[0].Properties["region"]
	assert.False(t, hasRegion)
}

func TestAggregate_NilsSkipped(t *testing.T) {
	nodes, edges := Aggregate([]graph.Row{
		{Node: nil, Connected: []*graph.Entity{nil}, Relationships: []*graph.Relationship{nil}},
	})
	assert.NotNil(t, nodes)
	assert.NotNil(t, edges)
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestAggregate_EdgeClosure(t *testing.T) {
	c1 := node("c1", "CONSULTANT", nil)
	e := rel("e9", graph.RelRates, "c1", "p-missing", nil)

	nodes, edges := Aggregate([]graph.Row{{Node: c1, Relationships: []*graph.Relationship{e}}})
	require.Len(t, edges, 1)
	require.Equal(t, []string{"c1", "p-missing"}, nodeIDs(nodes))
	assert.Equal(t, graph.KindUnknown, nodes[1].Kind)
	assert.Empty(t, nodes[1].Labels)
	assert.NotNil(t, nodes[1].Properties)

	// every edge endpoint resolves within the node list
	seen := map[string]bool{}
	for _, n := range nodes {
		seen[n.ID] = true
	}
	for _, e := range edges {
		assert.True(t, seen[e.SourceID])
		assert.True(t, seen[e.TargetID])
	}
}

// randomRows builds rows over a small id pool so ids repeat across rows and
// some relationship endpoints never appear as entities.
func randomRows(rng *rand.Rand) []graph.Row {
	labels := []string{"CONSULTANT", "FIELD_CONSULTANT", "COMPANY", "PRODUCT", "DOCUMENT"}
	types := []graph.RelType{graph.RelEmploys, graph.RelCovers, graph.RelOwns, graph.RelRates, "MENTIONS"}
	statuses := []any{"Active", "Terminated", nil}

	entity := func() *graph.Entity {
		if rng.IntN(10) == 0 {
			return nil
		}
		id := fmt.Sprintf("n%d", rng.IntN(15))
		return node(id, labels[rng.IntN(len(labels))], graph.Properties{"seq": rng.Int()})
	}
	relationship := func() *graph.Relationship {
		typ := types[rng.IntN(len(types))]
		props := graph.Properties{}
		if typ == graph.RelOwns {
			props["mandate_status"] = statuses[rng.IntN(len(statuses))]
		}
		src := fmt.Sprintf("n%d", rng.IntN(20))
		dst := fmt.Sprintf("n%d", rng.IntN(20))
		return rel(fmt.Sprintf("e%d", rng.IntN(25)), typ, src, dst, props)
	}

	rows := make([]graph.Row, rng.IntN(12))
	for i := range rows {
		rows[i].Node = entity()
		for j := rng.IntN(4); j > 0; j-- {
			rows[i].Connected = append(rows[i].Connected, entity())
		}
		for j := rng.IntN(4); j > 0; j-- {
			rows[i].Relationships = append(rows[i].Relationships, relationship())
		}
	}
	return rows
}

func TestAggregate_RandomizedInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		rows := randomRows(rng)

		firstNode := map[string]*graph.Entity{}
		firstEdge := map[string]*graph.Relationship{}
		for _, row := range rows {
			for _, n := range append([]*graph.Entity{row.Node}, row.Connected...) {
				if n != nil && firstNode[n.ID] == nil {
					firstNode[n.ID] = n
				}
			}
			for _, e := range row.Relationships {
				if e != nil && firstEdge[e.ID] == nil {
					firstEdge[e.ID] = e
				}
			}
		}

		nodes, edges := Aggregate(rows)

		ids := map[string]bool{}
		for _, n := range nodes {
			require.False(t, ids[n.ID], "seed %d: duplicate node %s", seed, n.ID)
			ids[n.ID] = true
			if first, ok := firstNode[n.ID]; ok {
				require.Same(t, first, n, "seed %d: node %s is not the first snapshot", seed, n.ID)
			} else {
				require.Equal(t, graph.KindUnknown, n.Kind, "seed %d: placeholder %s", seed, n.ID)
			}
		}
		require.Len(t, nodes, len(ids))
		for id := range firstNode {
			require.True(t, ids[id], "seed %d: node %s dropped", seed, id)
		}

		edgeSeen := map[string]bool{}
		for _, e := range edges {
			require.False(t, edgeSeen[e.ID], "seed %d: duplicate edge %s", seed, e.ID)
			edgeSeen[e.ID] = true
			require.Same(t, firstEdge[e.ID], e, "seed %d: edge %s is not the first snapshot", seed, e.ID)
			require.True(t, ids[e.SourceID], "seed %d: edge %s source missing", seed, e.ID)
			require.True(t, ids[e.TargetID], "seed %d: edge %s target missing", seed, e.ID)
		}
		require.Len(t, edges, len(firstEdge))

		md := Summarize(nodes, edges, nil, graph.Page{Limit: 10})
		require.Equal(t, len(nodes), md.TotalNodes)
		require.Equal(t, len(edges), md.TotalEdges)
		kindSum := 0
		for _, n := range md.NodeTypeCounts {
			kindSum += n
		}
		require.Equal(t, md.TotalNodes, kindSum, "seed %d", seed)
		typeSum := 0
		for _, n := range md.EdgeTypeCounts {
			typeSum += n
		}
		require.Equal(t, md.TotalEdges, typeSum, "seed %d", seed)

		withStatus := 0
		for _, e := range edges {
			if e.Type == graph.RelOwns && e.Properties["mandate_status"] != nil {
				withStatus++
			}
		}
		statusSum := 0
		for _, n := range md.Distributions["mandate_status"] {
			statusSum += n
		}
		require.Equal(t, withStatus, statusSum, "seed %d", seed)
	}
}

func TestAggregator_Incremental(t *testing.T) {
	agg := NewAggregator()
	agg.Add(graph.Row{Node: node("a", "PRODUCT", nil)})
	agg.Add(graph.Row{Node: node("b", "PRODUCT", nil)})
	agg.Add(graph.Row{Node: node("a", "PRODUCT", nil)})
	nodes, edges := agg.Result()
	assert.Equal(t, []string{"a", "b"}, nodeIDs(nodes))
	assert.Empty(t, edges)
}

func TestSummarize(t *testing.T) {
	nodes := []*graph.Entity{
		node("o1", "COMPANY", nil),
		node("c1", "CONSULTANT", nil),
		node("c2", "CONSULTANT", nil),
		node("p1", "PRODUCT", nil),
		graph.NewEntity("x", []string{}, nil),
	}
	edges := []*graph.Relationship{
		rel("e1", graph.RelOwns, "o1", "p1", graph.Properties{"mandate_status": "Active"}),
		rel("e2", graph.RelOwns, "o1", "p1", graph.Properties{"mandate_status": "Active"}),
		rel("e3", graph.RelOwns, "o1", "p1", graph.Properties{"mandate_status": "Terminated"}),
		rel("e4", graph.RelOwns, "o1", "p1", nil),
		rel("e5", graph.RelRates, "c1", "p1", graph.Properties{"mandate_status": "ignored"}),
		rel("e6", graph.RelEmploys, "o1", "c1", nil),
	}
	filter := &graph.Filter{AssetClasses: []string{"Equity"}}
	page := graph.Page{Limit: 25, Offset: 5}

	md := Summarize(nodes, edges, filter, page)

	assert.Equal(t, 5, md.TotalNodes)
	assert.Equal(t, 6, md.TotalEdges)
	assert.Equal(t, map[graph.Kind]int{
		graph.KindOrganization: 1,
		graph.KindProfessional: 2,
		graph.KindOffering:     1,
		graph.KindUnknown:      1,
	}, md.NodeTypeCounts)
	assert.Equal(t, map[graph.RelType]int{
		graph.RelOwns:    4,
		graph.RelRates:   1,
		graph.RelEmploys: 1,
	}, md.EdgeTypeCounts)
	assert.Equal(t, map[string]int{"Active": 2, "Terminated": 1}, md.Distributions["mandate_status"])
	assert.Same(t, filter, md.AppliedFilters)
	assert.Equal(t, page, md.QueryParams)

	sumNodes := 0
	for _, n := range md.NodeTypeCounts {
		sumNodes += n
	}
	assert.Equal(t, md.TotalNodes, sumNodes)
	sumEdges := 0
	for _, n := range md.EdgeTypeCounts {
		sumEdges += n
	}
	assert.Equal(t, md.TotalEdges, sumEdges)
}

func TestSummarize_Empty(t *testing.T) {
	md := Summarize(nil, nil, nil, graph.Page{Limit: 1000})

	assert.Zero(t, md.TotalNodes)
	assert.Zero(t, md.TotalEdges)
	assert.NotNil(t, md.NodeTypeCounts)
	assert.NotNil(t, md.EdgeTypeCounts)
	assert.Equal(t, map[string]int{}, md.Distributions["mandate_status"])
	require.NotNil(t, md.AppliedFilters)
	assert.Equal(t, graph.Filter{}, *md.AppliedFilters)
}

func TestSummarizeWith_CustomDistribution(t *testing.T) {
	dists := []Distribution{{Key: "rating_change", Type: graph.RelRates, Property: "rating_change"}}
	edges := []*graph.Relationship{
		rel("e1", graph.RelRates, "c1", "p1", graph.Properties{"rating_change": "Upgrade"}),
		rel("e2", graph.RelRates, "c2", "p1", graph.Properties{"rating_change": "Upgrade"}),
		rel("e3", graph.RelRates, "c3", "p1", graph.Properties{"rating_change": 1}),
	}
	md := SummarizeWith(dists, nil, edges, nil, graph.Page{})
	assert.Equal(t, map[string]int{"Upgrade": 2, "1": 1}, md.Distributions["rating_change"])
	_, hasMandate := md.Distributions["mandate_status"]
	assert.False(t, hasMandate)
}
