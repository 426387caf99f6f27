// Package graph defines the entity/relationship model exposed by advisorgraph.
//
// Entities and relationships are immutable snapshots produced fresh for every
// query. The only identity that survives between requests is the engine id
// string, which is opaque to callers.
package graph

import (
	"fmt"
	"strings"
)

// Kind is the entity type derived from engine labels.
type Kind string

const (
	KindProfessional      Kind = "Professional"
	KindFieldProfessional Kind = "FieldProfessional"
	KindOrganization      Kind = "Organization"
	KindOffering          Kind = "Offering"
	KindUnknown           Kind = "Unknown"
)

// kindLabels maps each known kind to the label it is stored under.
var kindLabels = []struct {
	kind  Kind
	label string
}{
	{KindProfessional, "CONSULTANT"},
	{KindFieldProfessional, "FIELD_CONSULTANT"},
	{KindOrganization, "COMPANY"},
	{KindOffering, "PRODUCT"},
}

// Kinds returns the known kinds in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindLabels))
	for i, kl := range kindLabels {
		out[i] = kl.kind
	}
	return out
}

// Label returns the engine label for k, or "" for KindUnknown.
func (k Kind) Label() string {
	for _, kl := range kindLabels {
		if kl.kind == k {
			return kl.label
		}
	}
	return ""
}

// ParseKind accepts a kind name ("Professional") or its engine label
// ("CONSULTANT"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, kl := range kindLabels {
		if strings.EqualFold(s, string(kl.kind)) || strings.EqualFold(s, kl.label) {
			return kl.kind, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: unknown node type %q", ErrInvalidFilter, s)
}

// KindFromLabels returns the kind of the first label that maps to a known kind.
func KindFromLabels(labels []string) Kind {
	for _, label := range labels {
		for _, kl := range kindLabels {
			if label == kl.label {
				return kl.kind
			}
		}
	}
	return KindUnknown
}

// RelType is a relationship type as reported by the engine.
type RelType string

const (
	RelEmploys RelType = "EMPLOYS"
	RelCovers  RelType = "COVERS"
	RelOwns    RelType = "OWNS"
	RelRates   RelType = "RATES"
)

// RelTypes returns the relationship types the service traverses.
func RelTypes() []RelType {
	return []RelType{RelEmploys, RelCovers, RelOwns, RelRates}
}

// Entity is a typed node snapshot.
type Entity struct {
	ID         string     `json:"id" yaml:"id"`
	Kind       Kind       `json:"kind" yaml:"-"`
	Labels     []string   `json:"labels" yaml:"labels"`
	Properties Properties `json:"properties" yaml:"properties"`
}

// NewEntity builds an entity and derives its kind from labels.
func NewEntity(id string, labels []string, props Properties) *Entity {
	if props == nil {
		props = Properties{}
	}
	return &Entity{
		ID:         id,
		Kind:       KindFromLabels(labels),
		Labels:     labels,
		Properties: props,
	}
}

// HasLabel reports whether the entity carries label.
func (e *Entity) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Name returns the "name" property, or "".
func (e *Entity) Name() string {
	name, _ := e.Properties.String("name")
	return name
}

// Relationship is a directed, typed edge snapshot.
type Relationship struct {
	ID         string     `json:"id" yaml:"id"`
	Type       RelType    `json:"type" yaml:"type"`
	SourceID   string     `json:"source" yaml:"source"`
	TargetID   string     `json:"target" yaml:"target"`
	Properties Properties `json:"properties" yaml:"properties"`
}

// Other returns the endpoint of r opposite to id.
func (r *Relationship) Other(id string) string {
	if r.SourceID == id {
		return r.TargetID
	}
	return r.SourceID
}

// Row is one raw traversal row: a matched entity, the entities reached from it
// and the relationships that reached them. Connected and Relationships may be
// empty.
type Row struct {
	Node          *Entity
	Connected     []*Entity
	Relationships []*Relationship
}
