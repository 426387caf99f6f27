package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// Range is a closed numeric interval. Either bound may be omitted; the
// compiler fills the missing side with the domain floor or ceiling.
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Bounds builds a Range from plain values. Handy in tests and the CLI.
func Bounds(min, max float64) *Range {
	return &Range{Min: &min, Max: &max}
}

// MinOnly builds a Range with only a lower bound.
func MinOnly(min float64) *Range {
	return &Range{Min: &min}
}

// MaxOnly builds a Range with only an upper bound.
func MaxOnly(max float64) *Range {
	return &Range{Max: &max}
}

// Filter is the caller-supplied filter. All populated fields
// are combined by conjunction; an empty field places no constraint.
type Filter struct {
	// Node kinds, by kind name or engine label.
	NodeTypes []string `json:"node_types,omitempty" yaml:"node_types,omitempty"`

	// Stored as a bare value on some entities and a list on others.
	Regions      []string `json:"regions,omitempty" yaml:"regions,omitempty"`
	SalesRegions []string `json:"sales_regions,omitempty" yaml:"sales_regions,omitempty"`
	Channels     []string `json:"channels,omitempty" yaml:"channels,omitempty"`

	// Always stored as a bare value.
	AssetClasses     []string `json:"asset_classes,omitempty" yaml:"asset_classes,omitempty"`
	MandateStatus    []string `json:"mandate_status,omitempty" yaml:"mandate_status,omitempty"`
	PrivacyLevels    []string `json:"privacy_levels,omitempty" yaml:"privacy_levels,omitempty"`
	LevelOfInfluence []string `json:"level_of_influence,omitempty" yaml:"level_of_influence,omitempty"`
	PCA              []string `json:"pca,omitempty" yaml:"pca,omitempty"`
	ACA              []string `json:"aca,omitempty" yaml:"aca,omitempty"`

	// Specific entities by name or engine id.
	Professionals      []string `json:"professionals,omitempty" yaml:"professionals,omitempty"`
	FieldProfessionals []string `json:"field_professionals,omitempty" yaml:"field_professionals,omitempty"`
	Organizations      []string `json:"organizations,omitempty" yaml:"organizations,omitempty"`
	Offerings          []string `json:"offerings,omitempty" yaml:"offerings,omitempty"`

	// Evaluated on the traversed RATES relationship.
	RatingRange    *Range   `json:"rating_range,omitempty" yaml:"rating_range,omitempty"`
	RatingChange   []string `json:"rating_change,omitempty" yaml:"rating_change,omitempty"`
	RankGroup      []string `json:"rank_group,omitempty" yaml:"rank_group,omitempty"`
	RankValue      []string `json:"rank_value,omitempty" yaml:"rank_value,omitempty"`
	RankOrderRange *Range   `json:"rank_order_range,omitempty" yaml:"rank_order_range,omitempty"`
}

// DecodeFilter reads a JSON filter and rejects fields the filter does not
// declare.
func DecodeFilter(r io.Reader) (*Filter, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &f, nil
}

// ParseFilter decodes a filter from raw JSON bytes. Empty input is an empty
// filter.
func ParseFilter(data []byte) (*Filter, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return &Filter{}, nil
	}
	return DecodeFilter(bytes.NewReader(data))
}

// FilterFieldNames lists the JSON names of every declared filter field, in
// declaration order.
func FilterFieldNames() []string {
	t := reflect.TypeOf(Filter{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	return names
}
