package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// fieldSpec binds one filter field to its compiler. compile returns nil when
// the field is empty.
type fieldSpec struct {
	name    string
	target  Target
	compile func(f *graph.Filter) (*Predicate, error)
}

// Domain bounds used to fill partial ranges.
const (
	RatingFloor      = 0
	RatingCeiling    = 10
	RankOrderFloor   = 1
	RankOrderCeiling = 100
)

// influenceProps are the property names influence has been stored under.
var influenceProps = []string{"level_of_influence", "influence_level", "levelOfInfluence", "influence"}

// InfluenceProperties returns the property names level_of_influence matches
// against.
func InfluenceProperties() []string {
	return append([]string(nil), influenceProps...)
}

// fieldTable is the single source of truth for filter compilation. Order here
// is the order fragments appear in the WHERE clause.
var fieldTable = []fieldSpec{
	kindField("node_types", func(f *graph.Filter) []string { return f.NodeTypes }),

	propertyField("regions", StrategyScalarOrList, func(f *graph.Filter) []string { return f.Regions }, "region"),
	propertyField("sales_regions", StrategyScalarOrList, func(f *graph.Filter) []string { return f.SalesRegions }, "sales_region"),
	propertyField("channels", StrategyScalarOrList, func(f *graph.Filter) []string { return f.Channels }, "channel"),

	propertyField("asset_classes", StrategyScalar, func(f *graph.Filter) []string { return f.AssetClasses }, "asset_class"),
	propertyField("mandate_status", StrategyScalar, func(f *graph.Filter) []string { return f.MandateStatus }, "mandate_status"),
	propertyField("privacy_levels", StrategyScalar, func(f *graph.Filter) []string { return f.PrivacyLevels }, "privacy"),
	propertyField("level_of_influence", StrategyScalar, func(f *graph.Filter) []string { return f.LevelOfInfluence }, influenceProps...),
	propertyField("pca", StrategyScalar, func(f *graph.Filter) []string { return f.PCA }, "pca"),
	propertyField("aca", StrategyScalar, func(f *graph.Filter) []string { return f.ACA }, "aca"),

	identityField("professionals", graph.KindProfessional, func(f *graph.Filter) []string { return f.Professionals }),
	identityField("field_professionals", graph.KindFieldProfessional, func(f *graph.Filter) []string { return f.FieldProfessionals }),
	identityField("organizations", graph.KindOrganization, func(f *graph.Filter) []string { return f.Organizations }),
	identityField("offerings", graph.KindOffering, func(f *graph.Filter) []string { return f.Offerings }),

	rangeField("rating_range", "rankvalue", "rating", RatingFloor, RatingCeiling, true, func(f *graph.Filter) *graph.Range { return f.RatingRange }),
	relationshipSetField("rating_change", "rating_change", func(f *graph.Filter) []string { return f.RatingChange }),
	relationshipSetField("rank_group", "rankgroup", func(f *graph.Filter) []string { return f.RankGroup }),
	relationshipSetField("rank_value", "rankvalue", func(f *graph.Filter) []string { return f.RankValue }),
	rangeField("rank_order_range", "rankorder", "rank_order", RankOrderFloor, RankOrderCeiling, false, func(f *graph.Filter) *graph.Range { return f.RankOrderRange }),
}

func init() {
	if err := checkFieldTable(fieldTable, graph.FilterFieldNames()); err != nil {
		panic(err)
	}
}

// checkFieldTable verifies the table covers every declared filter field
// exactly once and names nothing the filter does not declare.
func checkFieldTable(table []fieldSpec, declared []string) error {
	seen := make(map[string]int, len(table))
	for _, spec := range table {
		seen[spec.name]++
	}
	var problems []string
	for _, name := range declared {
		switch seen[name] {
		case 0:
			problems = append(problems, fmt.Sprintf("filter field %q has no compiler", name))
		case 1:
		default:
			problems = append(problems, fmt.Sprintf("filter field %q is configured %d times", name, seen[name]))
		}
		delete(seen, name)
	}
	for name := range seen {
		problems = append(problems, fmt.Sprintf("compiler %q matches no filter field", name))
	}
	if len(problems) > 0 {
		return fmt.Errorf("query: field table mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// cleanValues drops blank entries. A list of only blanks is no constraint.
func cleanValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func kindField(name string, get func(*graph.Filter) []string) fieldSpec {
	return fieldSpec{
		name:   name,
		target: TargetNode,
		compile: func(f *graph.Filter) (*Predicate, error) {
			values := cleanValues(get(f))
			if values == nil {
				return nil, nil
			}
			labels := make([]string, 0, len(values))
			for _, v := range values {
				kind, err := graph.ParseKind(v)
				if err != nil {
					return nil, err
				}
				labels = append(labels, kind.Label())
			}
			want := newStringSet(labels)
			return &Predicate{
				Field:  name,
				Target: TargetNode,
				Cypher: fmt.Sprintf("any(label IN labels(%s) WHERE label IN $%s)", nodeVar, name),
				Params: map[string]any{name: labels},
				matchNode: func(e *graph.Entity) bool {
					return want.hasAny(e.Labels)
				},
			}, nil
		},
	}
}

func propertyField(name string, strategy Strategy, get func(*graph.Filter) []string, props ...string) fieldSpec {
	return fieldSpec{
		name:   name,
		target: TargetNode,
		compile: func(f *graph.Filter) (*Predicate, error) {
			values := cleanValues(get(f))
			if values == nil {
				return nil, nil
			}
			return &Predicate{
				Field:     name,
				Target:    TargetNode,
				Cypher:    propertiesFragment(strategy, props, name),
				Params:    map[string]any{name: values},
				matchNode: propertyMatcher(strategy, props, newStringSet(values)),
			}, nil
		},
	}
}

// identityField matches entities of one kind by name or engine id, since
// callers may hold either.
func identityField(name string, kind graph.Kind, get func(*graph.Filter) []string) fieldSpec {
	label := kind.Label()
	return fieldSpec{
		name:   name,
		target: TargetNode,
		compile: func(f *graph.Filter) (*Predicate, error) {
			values := cleanValues(get(f))
			if values == nil {
				return nil, nil
			}
			want := newStringSet(values)
			return &Predicate{
				Field:  name,
				Target: TargetNode,
				Cypher: fmt.Sprintf("(%[1]s:%[2]s AND (%[1]s.name IN $%[3]s OR elementId(%[1]s) IN $%[3]s))", nodeVar, label, name),
				Params: map[string]any{name: values},
				matchNode: func(e *graph.Entity) bool {
					if !e.HasLabel(label) {
						return false
					}
					if want.has(e.ID) {
						return true
					}
					name, ok := storedString(e.Properties["name"])
					return ok && want.has(name)
				},
			}, nil
		},
	}
}

func relationshipSetField(name, prop string, get func(*graph.Filter) []string) fieldSpec {
	return fieldSpec{
		name:   name,
		target: TargetRelationship,
		compile: func(f *graph.Filter) (*Predicate, error) {
			values := cleanValues(get(f))
			if values == nil {
				return nil, nil
			}
			want := newStringSet(values)
			return &Predicate{
				Field:  name,
				Target: TargetRelationship,
				Cypher: fmt.Sprintf("%s.%s IN $%s", relVar, prop, name),
				Params: map[string]any{name: values},
				matchRel: func(r *graph.Relationship) bool {
					v, ok := storedString(r.Properties[prop])
					return ok && want.has(v)
				},
			}, nil
		},
	}
}

// rangeField compiles a closed interval on a relationship property. When
// coerce is set the stored value goes through toFloat, so numeric strings
// count; otherwise only stored numbers can match.
func rangeField(name, prop, paramPrefix string, floor, ceiling float64, coerce bool, get func(*graph.Filter) *graph.Range) fieldSpec {
	minParam, maxParam := paramPrefix+"_min", paramPrefix+"_max"
	return fieldSpec{
		name:   name,
		target: TargetRelationship,
		compile: func(f *graph.Filter) (*Predicate, error) {
			rng := get(f)
			if rng == nil || (rng.Min == nil && rng.Max == nil) {
				return nil, nil
			}
			lo, hi := floor, ceiling
			if rng.Min != nil {
				lo = *rng.Min
			}
			if rng.Max != nil {
				hi = *rng.Max
			}
			if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
				return nil, fmt.Errorf("%w: %s bounds must be finite", graph.ErrInvalidFilter, name)
			}
			if lo > hi {
				return nil, fmt.Errorf("%w: %s min %v exceeds max %v", graph.ErrInvalidFilter, name, lo, hi)
			}

			ref := relVar + "." + prop
			if coerce {
				ref = "toFloat(" + ref + ")"
			}
			return &Predicate{
				Field:  name,
				Target: TargetRelationship,
				Cypher: fmt.Sprintf("(%s >= $%s AND %s <= $%s)", ref, minParam, ref, maxParam),
				Params: map[string]any{minParam: lo, maxParam: hi},
				matchRel: func(r *graph.Relationship) bool {
					v, ok := numericValue(r.Properties[prop], coerce)
					return ok && v >= lo && v <= hi
				},
			}, nil
		},
	}
}

// numericValue mirrors Cypher comparison: numbers compare, strings only after
// toFloat, everything else is null.
func numericValue(v any, coerce bool) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(v), true
	case string:
		if !coerce {
			return 0, false
		}
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	default:
		return 0, false
	}
}
