package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/metrics"
	"github.com/orneryd/advisorgraph/pkg/query"
	"github.com/orneryd/advisorgraph/pkg/result"
)

// Query compiles req.Filter, runs it and returns the aggregated result with
// metadata.
func (s *Service) Query(ctx context.Context, req Request) (*graph.QueryResult, error) {
	var page graph.Page
	var out *graph.QueryResult
	err := s.run(ctx, "query",
		func(tr *trace) error {
			compiled, err := query.Compile(req.Filter)
			if err != nil {
				return err
			}
			page, err = query.ResolvePage(req.Limit, req.Offset, s.config.Query)
			if err != nil {
				return err
			}
			tr.plan = query.Select(compiled, page, s.config.Query)
			metrics.QueryShapes.WithLabelValues(tr.plan.Shape.String()).Inc()
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			nodes, edges := result.Aggregate(rows)
			tr.nodes = len(nodes)
			out = &graph.QueryResult{
				Nodes:    nodes,
				Edges:    edges,
				Metadata: result.Summarize(nodes, edges, req.Filter, page),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Detail returns one entity with its full one-hop neighborhood. An entity
// with no relationships still resolves; an unknown id is graph.ErrNotFound.
func (s *Service) Detail(ctx context.Context, id string) (*graph.Detail, error) {
	var out *graph.Detail
	err := s.run(ctx, "detail",
		func(tr *trace) error {
			plan, err := query.DetailPlan(id)
			if err != nil {
				return err
			}
			tr.plan = plan
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			if len(rows) == 0 || rows[0].Node == nil {
				return fmt.Errorf("%w: entity %q", graph.ErrNotFound, id)
			}
			anchor := rows[0].Node
			nodes, edges := result.Aggregate(rows)
			neighbors := make([]*graph.Entity, 0, len(nodes))
			for _, n := range nodes {
				if n.ID != anchor.ID {
					neighbors = append(neighbors, n)
				}
			}
			tr.nodes = len(nodes)
			out = &graph.Detail{
				Node:                anchor,
				Relationships:       edges,
				Neighbors:           neighbors,
				ConnectedNodesCount: len(neighbors),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Summary reports whole-graph counts. Filters do not apply.
func (s *Service) Summary(ctx context.Context) (*graph.Summary, error) {
	var out *graph.Summary
	err := s.run(ctx, "summary", nil,
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			stats, err := sess.Statistics(ctx)
			if err != nil {
				return err
			}
			out = summaryFromStats(stats)
			tr.nodes = int(stats.Nodes)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func summaryFromStats(stats *engine.Statistics) *graph.Summary {
	out := &graph.Summary{
		TotalNodes:             stats.Nodes,
		TotalEdges:             stats.Edges,
		LabelCounts:            make(map[string]int64, len(stats.Labels)),
		KindCounts:             make(map[graph.Kind]int64),
		RelationshipTypeCounts: make(map[graph.RelType]int64, len(stats.Types)),
	}
	for label, n := range stats.Labels {
		out.LabelCounts[label] = n
		if kind := graph.KindFromLabels([]string{label}); kind != graph.KindUnknown {
			out.KindCounts[kind] += n
		}
	}
	for typ, n := range stats.Types {
		out.RelationshipTypeCounts[graph.RelType(typ)] = n
	}
	return out
}

// optionSource fills one FilterOptions list from distinct property values.
type optionSource struct {
	sources []engine.ValueSource
	set     func(*graph.FilterOptions, []string)
}

func nodeProps(props ...string) []engine.ValueSource {
	out := make([]engine.ValueSource, len(props))
	for i, p := range props {
		out[i] = engine.ValueSource{Property: p}
	}
	return out
}

var optionSources = []optionSource{
	{nodeProps("sales_region"), func(o *graph.FilterOptions, v []string) { o.SalesRegions = v }},
	{nodeProps("channel"), func(o *graph.FilterOptions, v []string) { o.Channels = v }},
	{
		[]engine.ValueSource{{Property: "asset_class", Label: graph.KindOffering.Label()}},
		func(o *graph.FilterOptions, v []string) { o.AssetClasses = v },
	},
	{
		[]engine.ValueSource{{Property: "mandate_status", RelType: graph.RelOwns}},
		func(o *graph.FilterOptions, v []string) { o.MandateStatus = v },
	},
	{nodeProps("privacy"), func(o *graph.FilterOptions, v []string) { o.PrivacyLevels = v }},
	{nodeProps(query.InfluenceProperties()...), func(o *graph.FilterOptions, v []string) { o.LevelOfInfluence = v }},
	{nodeProps("pca"), func(o *graph.FilterOptions, v []string) { o.PCA = v }},
	{nodeProps("aca"), func(o *graph.FilterOptions, v []string) { o.ACA = v }},
	{
		[]engine.ValueSource{{Property: "rating_change", RelType: graph.RelRates}},
		func(o *graph.FilterOptions, v []string) { o.RatingChanges = v },
	},
	{
		[]engine.ValueSource{{Property: "rankgroup", RelType: graph.RelRates}},
		func(o *graph.FilterOptions, v []string) { o.RankGroups = v },
	},
}

// FilterOptions lists the selectable values for each filter field.
func (s *Service) FilterOptions(ctx context.Context) (*graph.FilterOptions, error) {
	var out *graph.FilterOptions
	err := s.run(ctx, "filter_options", nil,
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			opts := &graph.FilterOptions{
				Regions: append([]string(nil), graph.StaticRegions...),
			}
			for _, src := range optionSources {
				values, err := distinct(ctx, sess, src.sources)
				if err != nil {
					return err
				}
				src.set(opts, values)
			}

			for _, e := range entityPickers(opts) {
				list, err := sess.Entities(ctx, e.kind)
				if err != nil {
					return err
				}
				if list == nil {
					list = []graph.NamedEntity{}
				}
				*e.dst = list
				tr.nodes += len(list)
			}
			out = opts
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type entityPicker struct {
	kind graph.Kind
	dst  *[]graph.NamedEntity
}

func entityPickers(opts *graph.FilterOptions) []entityPicker {
	return []entityPicker{
		{graph.KindProfessional, &opts.Professionals},
		{graph.KindOrganization, &opts.Organizations},
		{graph.KindOffering, &opts.Offerings},
		{graph.KindFieldProfessional, &opts.FieldProfessionals},
	}
}

// CascadingOptions lists the selectable values found among the entities f
// matches and their immediate neighbors, so each choice narrows the next.
// Regions stay static. A nil or empty filter covers the first page of the
// whole graph.
func (s *Service) CascadingOptions(ctx context.Context, f *graph.Filter) (*graph.FilterOptions, error) {
	var out *graph.FilterOptions
	err := s.run(ctx, "cascading_options",
		func(tr *trace) error {
			compiled, err := query.Compile(f)
			if err != nil {
				return err
			}
			page, err := query.ResolvePage(s.config.Query.MaxLimit, 0, s.config.Query)
			if err != nil {
				return err
			}
			opts := s.config.Query
			opts.ExpandNeighbors = true
			tr.plan = query.Select(compiled, page, opts)
			metrics.QueryShapes.WithLabelValues(tr.plan.Shape.String()).Inc()
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			nodes, edges := result.Aggregate(rows)
			tr.nodes = len(nodes)
			out = optionsFrom(nodes, edges)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// optionsFrom derives FilterOptions from an aggregated result using the same
// sources FilterOptions asks the engine for.
func optionsFrom(nodes []*graph.Entity, edges []*graph.Relationship) *graph.FilterOptions {
	opts := &graph.FilterOptions{
		Regions: append([]string(nil), graph.StaticRegions...),
	}
	for _, src := range optionSources {
		set := make(map[string]struct{})
		add := func(props graph.Properties, property string) {
			values, _ := props.Strings(property)
			for _, v := range values {
				if v != "" {
					set[v] = struct{}{}
				}
			}
		}
		for _, vs := range src.sources {
			if vs.RelType != "" {
				for _, e := range edges {
					if e.Type == vs.RelType {
						add(e.Properties, vs.Property)
					}
				}
				continue
			}
			for _, n := range nodes {
				if vs.Label == "" || n.HasLabel(vs.Label) {
					add(n.Properties, vs.Property)
				}
			}
		}
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		src.set(opts, values)
	}

	for _, p := range entityPickers(opts) {
		label := p.kind.Label()
		list := []graph.NamedEntity{}
		for _, n := range nodes {
			if !n.HasLabel(label) {
				continue
			}
			if name, ok := n.Properties.String("name"); ok {
				list = append(list, graph.NamedEntity{ID: n.ID, Name: name})
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		*p.dst = list
	}
	return opts
}

// distinct merges the values of several sources, keeping them sorted and
// unique.
func distinct(ctx context.Context, sess engine.Session, sources []engine.ValueSource) ([]string, error) {
	if len(sources) == 1 {
		values, err := sess.DistinctValues(ctx, sources[0])
		if values == nil && err == nil {
			values = []string{}
		}
		return values, err
	}
	seen := make(map[string]struct{})
	var merged []string
	for _, src := range sources {
		values, err := sess.DistinctValues(ctx, src)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	sort.Strings(merged)
	if merged == nil {
		merged = []string{}
	}
	return merged, nil
}

// Expand returns the neighborhood of req.NodeIDs up to req.Depth hops.
func (s *Service) Expand(ctx context.Context, req ExpandRequest) (*graph.QueryResult, error) {
	var out *graph.QueryResult
	err := s.run(ctx, "expand",
		func(tr *trace) error {
			plan, err := query.ExpansionPlan(req.NodeIDs, req.Depth, s.config.Query)
			if err != nil {
				return err
			}
			tr.plan = plan
			metrics.QueryShapes.WithLabelValues(plan.Shape.String()).Inc()
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			nodes, edges := result.Aggregate(rows)
			tr.nodes = len(nodes)
			out = &graph.QueryResult{
				Nodes:    nodes,
				Edges:    edges,
				Metadata: result.Summarize(nodes, edges, nil, tr.plan.Page),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindPaths joins req.SourceIDs to req.TargetIDs by shortest paths of at most
// req.MaxDepth hops. Pairs with no such path contribute nothing.
func (s *Service) FindPaths(ctx context.Context, req PathRequest) (*graph.QueryResult, error) {
	var out *graph.QueryResult
	err := s.run(ctx, "find_paths",
		func(tr *trace) error {
			plan, err := query.PathPlan(req.SourceIDs, req.TargetIDs, req.MaxDepth, s.config.Query)
			if err != nil {
				return err
			}
			tr.plan = plan
			metrics.QueryShapes.WithLabelValues(plan.Shape.String()).Inc()
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			nodes, edges := result.Aggregate(rows)
			tr.nodes = len(nodes)
			out = &graph.QueryResult{
				Nodes:    nodes,
				Edges:    edges,
				Metadata: result.Summarize(nodes, edges, nil, tr.plan.Page),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Influence returns the merged influence network of req.ProfessionalIDs with
// metrics for each professional found. Ids that are not professionals are
// ignored.
func (s *Service) Influence(ctx context.Context, req InfluenceRequest) (*graph.InfluenceNetwork, error) {
	var out *graph.InfluenceNetwork
	err := s.run(ctx, "influence",
		func(tr *trace) error {
			plan, err := query.InfluencePlan(req.ProfessionalIDs, s.config.Query)
			if err != nil {
				return err
			}
			tr.plan = plan
			metrics.QueryShapes.WithLabelValues(plan.Shape.String()).Inc()
			return nil
		},
		func(ctx context.Context, sess engine.Session, tr *trace) error {
			rows, err := sess.Traverse(ctx, tr.plan)
			if err != nil {
				return err
			}
			perProfessional := make(map[string]graph.InfluenceMetrics, len(rows))
			for _, row := range rows {
				if row.Node != nil {
					perProfessional[row.Node.ID] = influenceMetrics(row)
				}
			}
			nodes, edges := result.Aggregate(rows)
			tr.nodes = len(nodes)
			out = &graph.InfluenceNetwork{
				QueryResult: graph.QueryResult{
					Nodes:    nodes,
					Edges:    edges,
					Metadata: result.Summarize(nodes, edges, nil, tr.plan.Page),
				},
				Professionals: perProfessional,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// influenceMetrics counts one professional's row: reached entities by kind,
// and the relationships that touch the professional itself.
func influenceMetrics(row graph.Row) graph.InfluenceMetrics {
	var m graph.InfluenceMetrics
	for _, n := range row.Connected {
		if n == nil {
			continue
		}
		switch n.Kind {
		case graph.KindOrganization:
			m.Organizations++
		case graph.KindOffering:
			m.Offerings++
		case graph.KindFieldProfessional:
			m.FieldProfessionals++
		}
	}
	id := row.Node.ID
	for _, r := range row.Relationships {
		if r == nil || (r.SourceID != id && r.TargetID != id) {
			continue
		}
		m.TotalRelationships++
		if r.Type == graph.RelRates {
			m.Ratings++
		}
	}
	return m
}
