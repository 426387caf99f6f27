package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/query"
)

type session struct {
	engine *Engine
	inner  neo4j.SessionWithContext
	once   sync.Once
}

var _ engine.Session = (*session)(nil)

func (s *session) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	var opts []func(*neo4j.TransactionConfig)
	if s.engine.config.QueryTimeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(s.engine.config.QueryTimeout))
	}
	res, err := s.inner.Run(ctx, cypher, params, opts...)
	if err != nil {
		return nil, classify(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// Traverse runs the plan's Cypher and converts each record into a row.
func (s *session) Traverse(ctx context.Context, plan *query.Plan) ([]graph.Row, error) {
	records, err := s.run(ctx, plan.Cypher, plan.Params)
	if err != nil {
		return nil, err
	}
	rows := make([]graph.Row, 0, len(records))
	for i, rec := range records {
		row, err := recordToRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", graph.ErrEngineError, i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

const (
	countNodesCypher  = "MATCH (n) RETURN count(n) AS count"
	countEdgesCypher  = "MATCH ()-[r]->() RETURN count(r) AS count"
	labelCountsCypher = "MATCH (n) UNWIND labels(n) AS key RETURN key, count(*) AS count"
	typeCountsCypher  = "MATCH ()-[r]->() RETURN type(r) AS key, count(*) AS count"
)

// Statistics issues one query per count. Joining them in a single MATCH would
// multiply node and edge rows together.
func (s *session) Statistics(ctx context.Context) (*engine.Statistics, error) {
	stats := &engine.Statistics{}
	var err error
	if stats.Nodes, err = s.scalarCount(ctx, countNodesCypher); err != nil {
		return nil, err
	}
	if stats.Edges, err = s.scalarCount(ctx, countEdgesCypher); err != nil {
		return nil, err
	}
	if stats.Labels, err = s.keyedCounts(ctx, labelCountsCypher); err != nil {
		return nil, err
	}
	if stats.Types, err = s.keyedCounts(ctx, typeCountsCypher); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *session) scalarCount(ctx context.Context, cypher string) (int64, error) {
	records, err := s.run(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	v, _ := records[0].Get("count")
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", graph.ErrEngineError, err)
	}
	return n, nil
}

func (s *session) keyedCounts(ctx context.Context, cypher string) (map[string]int64, error) {
	records, err := s.run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(records))
	for _, rec := range records {
		k, _ := rec.Get("key")
		v, _ := rec.Get("count")
		n, err := cast.ToInt64E(v)
		if err != nil {
			return nil, fmt.Errorf("%w: count: %v", graph.ErrEngineError, err)
		}
		out[cast.ToString(k)] = n
	}
	return out, nil
}

// identifier guards names interpolated into Cypher. Labels, types and
// property keys cannot be parameters.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DistinctValues flattens list-valued properties with the [] + x.p idiom so
// scalars and lists enumerate the same way.
func (s *session) DistinctValues(ctx context.Context, src engine.ValueSource) ([]string, error) {
	if !identifier.MatchString(src.Property) {
		return nil, fmt.Errorf("%w: invalid property name %q", graph.ErrEngineError, src.Property)
	}
	var match, ref string
	switch {
	case src.RelType != "":
		if !identifier.MatchString(string(src.RelType)) {
			return nil, fmt.Errorf("%w: invalid relationship type %q", graph.ErrEngineError, src.RelType)
		}
		match, ref = fmt.Sprintf("MATCH ()-[x:%s]->()", src.RelType), "x."+src.Property
	case src.Label != "":
		if !identifier.MatchString(src.Label) {
			return nil, fmt.Errorf("%w: invalid label %q", graph.ErrEngineError, src.Label)
		}
		match, ref = fmt.Sprintf("MATCH (x:%s)", src.Label), "x."+src.Property
	default:
		match, ref = "MATCH (x)", "x."+src.Property
	}
	cypher := fmt.Sprintf(`%s
WHERE %s IS NOT NULL
UNWIND ([] + %s) AS value
WITH DISTINCT value
WHERE value IS NOT NULL AND toString(value) <> ''
RETURN toString(value) AS value
ORDER BY value`, match, ref, ref)

	records, err := s.run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, rec := range records {
		v, _ := rec.Get("value")
		str := cast.ToString(v)
		if _, dup := seen[str]; dup {
			continue
		}
		seen[str] = struct{}{}
		out = append(out, str)
	}
	sort.Strings(out)
	return out, nil
}

// Entities lists named entities of one kind.
func (s *session) Entities(ctx context.Context, kind graph.Kind) ([]graph.NamedEntity, error) {
	label := kind.Label()
	if label == "" {
		return nil, fmt.Errorf("%w: no label for kind %q", graph.ErrEngineError, kind)
	}
	cypher := fmt.Sprintf(`MATCH (x:%s)
WHERE x.name IS NOT NULL
RETURN elementId(x) AS id, toString(x.name) AS name
ORDER BY name`, label)
	records, err := s.run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make([]graph.NamedEntity, 0, len(records))
	for _, rec := range records {
		id, _ := rec.Get("id")
		name, _ := rec.Get("name")
		out = append(out, graph.NamedEntity{ID: cast.ToString(id), Name: cast.ToString(name)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *session) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.engine.open.Add(-1)
		err = s.inner.Close(ctx)
	})
	return err
}
