package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/query"
)

func loadTestGraph(t *testing.T) *Engine {
	t.Helper()
	m, err := LoadFile("testdata/graph.yaml")
	require.NoError(t, err)
	return m
}

func openSession(t *testing.T, m *Engine) engine.Session {
	t.Helper()
	s, err := m.Session(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func plan(t *testing.T, f *graph.Filter, limit, offset int) *query.Plan {
	t.Helper()
	opts := query.DefaultOptions()
	compiled, err := query.Compile(f)
	require.NoError(t, err)
	page, err := query.ResolvePage(limit, offset, opts)
	require.NoError(t, err)
	return query.Select(compiled, page, opts)
}

func rowIDs(rows []graph.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Node.ID
	}
	return ids
}

func relIDs(rows []graph.Row) []string {
	var ids []string
	for _, r := range rows {
		for _, rel := range r.Relationships {
			ids = append(ids, rel.ID)
		}
	}
	return ids
}

func TestLoad(t *testing.T) {
	m := loadTestGraph(t)
	assert.Equal(t, 8, m.NodeCount())
	assert.Equal(t, 7, m.EdgeCount())

	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
nodes:
  - {id: a, labels: [CONSULTANT]}
relationships:
  - {id: r, type: RATES, source: a, target: missing}
`))
		require.ErrorIs(t, err, ErrMissingNode)
	})

	t.Run("duplicate node", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
nodes:
  - {id: a, labels: [CONSULTANT]}
  - {id: a, labels: [COMPANY]}
`))
		require.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(strings.NewReader("vertices: []\n"))
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		m, err := Load(strings.NewReader(""))
		require.NoError(t, err)
		assert.Zero(t, m.NodeCount())
	})
}

func TestTraverse_NodeOnly(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)

	t.Run("scalar and list regions both match", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{
			NodeTypes: []string{"Professional"},
			Regions:   []string{"EMEA"},
		}, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2"}, rowIDs(rows))
	})

	t.Run("expansion attaches one-hop neighbors", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{Professionals: []string{"A"}}, 0, 0))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.ElementsMatch(t, []string{"e1", "e6"}, relIDs(rows))
		assert.Len(t, rows[0].Connected, 2)
	})

	t.Run("paging", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{NodeTypes: []string{"CONSULTANT"}}, 2, 1))
		require.NoError(t, err)
		assert.Equal(t, []string{"c2", "c3"}, rowIDs(rows))
	})

	t.Run("offset past end", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, nil, 10, 100))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestTraverse_RelationshipShape(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)

	rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{RatingChange: []string{"Upgrade"}}, 0, 0))
	require.NoError(t, err)
	// both endpoints of the matching edge produce a row
	assert.Equal(t, []string{"c1", "p1"}, rowIDs(rows))
	for _, id := range relIDs(rows) {
		assert.Equal(t, "e6", id)
	}

	t.Run("coerced rating range accepts numeric strings", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{
			NodeTypes:   []string{"Professional"},
			RatingRange: graph.MaxOnly(5),
		}, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, rowIDs(rows))
		assert.Equal(t, []string{"e7"}, relIDs(rows))
	})

	t.Run("isolated entity never matches", func(t *testing.T) {
		rows, err := s.Traverse(context.Background(), plan(t, &graph.Filter{
			Professionals: []string{"Isolated"},
			RankGroup:     []string{"Top"},
		}, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestTraverse_NumbersNeverMatchStrings(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)
	ctx := context.Background()

	// e6 stores rankvalue 7 as a number, e7 stores "3" as a string.
	rows, err := s.Traverse(ctx, plan(t, &graph.Filter{RankValue: []string{"7"}}, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.Traverse(ctx, plan(t, &graph.Filter{RankValue: []string{"3"}}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "p1"}, rowIDs(rows))

	m, err = Load(strings.NewReader(`
nodes:
  - {id: a, labels: [CONSULTANT], properties: {pca: 7}}
  - {id: b, labels: [CONSULTANT], properties: {pca: "7"}}
`))
	require.NoError(t, err)
	rows, err = openSession(t, m).Traverse(ctx, plan(t, &graph.Filter{PCA: []string{"7"}}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rowIDs(rows))
}

func TestTraverse_Detail(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)

	p, err := query.DetailPlan("o1")
	require.NoError(t, err)
	rows, err := s.Traverse(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Relationships, 5)
	assert.Len(t, rows[0].Connected, 5)

	p, err = query.DetailPlan("iso")
	require.NoError(t, err)
	rows, err = s.Traverse(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Relationships)

	p, err = query.DetailPlan("nope")
	require.NoError(t, err)
	rows, err = s.Traverse(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTraverse_Expansion(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)
	opts := query.DefaultOptions()

	p, err := query.ExpansionPlan([]string{"c1"}, 1, opts)
	require.NoError(t, err)
	rows, err := s.Traverse(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []string{"e1", "e6"}, relIDs(rows))

	p, err = query.ExpansionPlan([]string{"c1"}, 2, opts)
	require.NoError(t, err)
	rows, err = s.Traverse(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []string{"e1", "e6", "e2", "e3", "e4", "e5", "e7"}, relIDs(rows))
	for _, n := range rows[0].Connected {
		assert.NotEqual(t, "c1", n.ID)
	}
}

func TestStatistics(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8, stats.Nodes)
	assert.EqualValues(t, 7, stats.Edges)
	assert.EqualValues(t, 4, stats.Labels["CONSULTANT"])
	assert.EqualValues(t, 2, stats.Types["RATES"])
	assert.EqualValues(t, 2, stats.Types["OWNS"])
}

func TestDistinctValues(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)
	ctx := context.Background()

	regions, err := s.DistinctValues(ctx, engine.ValueSource{Property: "region"})
	require.NoError(t, err)
	assert.Equal(t, []string{"APAC", "EMEA", "NAI"}, regions)

	regions, err = s.DistinctValues(ctx, engine.ValueSource{Property: "region", Label: "COMPANY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EMEA"}, regions)

	statuses, err := s.DistinctValues(ctx, engine.ValueSource{Property: "mandate_status", RelType: graph.RelOwns})
	require.NoError(t, err)
	assert.Equal(t, []string{"Active", "Terminated"}, statuses)
}

func TestEntities(t *testing.T) {
	m := loadTestGraph(t)
	s := openSession(t, m)

	got, err := s.Entities(context.Background(), graph.KindProfessional)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, graph.NamedEntity{ID: "c1", Name: "A"}, got[0])
	assert.Equal(t, "Isolated", got[3].Name)

	_, err = s.Entities(context.Background(), graph.KindUnknown)
	require.ErrorIs(t, err, graph.ErrEngineError)
}

func TestSessionLifecycle(t *testing.T) {
	m := loadTestGraph(t)
	ctx := context.Background()

	s, err := m.Session(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.OpenSessions())
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.EqualValues(t, 0, m.OpenSessions())

	t.Run("injected failure", func(t *testing.T) {
		boom := errors.New("boom")
		m.FailWith(boom)
		defer m.FailWith(nil)
		s := openSession(t, m)
		_, err := s.Statistics(ctx)
		require.ErrorIs(t, err, boom)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := m.Session(cctx)
		require.ErrorIs(t, err, graph.ErrEngineUnavailable)
	})

	t.Run("closed engine", func(t *testing.T) {
		s := openSession(t, m)
		require.NoError(t, m.Close(ctx))
		_, err := s.Statistics(ctx)
		require.ErrorIs(t, err, graph.ErrEngineUnavailable)
		_, err = m.Session(ctx)
		require.ErrorIs(t, err, graph.ErrEngineUnavailable)
	})
}

func TestDecodeFixture(t *testing.T) {
	fx, err := DecodeFixture(strings.NewReader(`
nodes:
  - {id: f1, labels: [FIELD_CONSULTANT], properties: {name: F}}
  - {id: z, labels: [Other]}
relationships:
  - {id: e1, type: COVERS, source: f1, target: z}
`))
	require.NoError(t, err)
	require.Len(t, fx.Nodes, 2)
	assert.Equal(t, graph.KindFieldProfessional, fx.Nodes[0].Kind)
	assert.Equal(t, graph.KindUnknown, fx.Nodes[1].Kind)
	require.Len(t, fx.Relationships, 1)
	assert.Equal(t, graph.RelCovers, fx.Relationships[0].Type)

	_, err = DecodeFixture(strings.NewReader("nodes:\n  - {id: a, colour: red}\n"))
	require.Error(t, err)
}
