package memory

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Fixture is the YAML layout accepted by Load:
//
//	nodes:
//	  - id: c1
//	    labels: [CONSULTANT]
//	    properties: {name: Alice, region: [EMEA, APAC]}
//	relationships:
//	  - id: e1
//	    type: EMPLOYS
//	    source: o1
//	    target: c1
type Fixture struct {
	Nodes         []*graph.Entity       `yaml:"nodes"`
	Relationships []*graph.Relationship `yaml:"relationships"`
}

// DecodeFixture reads a fixture without loading it anywhere. Kinds are
// derived from labels; unknown keys are rejected.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	for _, n := range fx.Nodes {
		if n != nil {
			n.Kind = graph.KindFromLabels(n.Labels)
		}
	}
	return &fx, nil
}

// Load decodes a fixture and returns an engine holding it.
func Load(r io.Reader) (*Engine, error) {
	fx, err := DecodeFixture(r)
	if err != nil {
		return nil, err
	}
	m := New()
	if err := m.Apply(fx); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFile reads a fixture from disk.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	m, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Apply inserts every node, then every relationship.
func (m *Engine) Apply(fx *Fixture) error {
	for i, n := range fx.Nodes {
		if err := m.AddNode(n); err != nil {
			return fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	for i, r := range fx.Relationships {
		if err := m.AddRelationship(r); err != nil {
			return fmt.Errorf("relationships[%d]: %w", i, err)
		}
	}
	return nil
}
