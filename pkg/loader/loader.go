// Package loader reads machine definitions from YAML or JSON files.
//
// States may be plain names or mappings with on_enter/on_exit callbacks.
// A transition's source, conditions, unless, before and after fields accept
// a single string or a list; a list of sources declares one transition per
// source. A transition without dest is internal.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// Document is a parsed definition file
type Document struct {
	Definition *model.Definition
	// Final is the final state named by the file, if any
	Final string
	// ExpectedLoops is nil when the file does not set it
	ExpectedLoops *int
	// Dialect is the dialect named by the file, if any
	Dialect string
}

type fileFormat struct {
	Name          string            `yaml:"name,omitempty"`
	Initial       string            `yaml:"initial"`
	Final         string            `yaml:"final,omitempty"`
	ExpectedLoops *int              `yaml:"expected_loops,omitempty"`
	Dialect       string            `yaml:"dialect,omitempty"`
	States        []stateEntry      `yaml:"states"`
	Transitions   []transitionEntry `yaml:"transitions"`
}

type stateEntry struct {
	Name    string     `yaml:"name"`
	OnEnter stringList `yaml:"on_enter,omitempty"`
	OnExit  stringList `yaml:"on_exit,omitempty"`
}

type transitionEntry struct {
	Trigger    string     `yaml:"trigger"`
	Source     stringList `yaml:"source"`
	Dest       string     `yaml:"dest,omitempty"`
	Conditions stringList `yaml:"conditions,omitempty"`
	Unless     stringList `yaml:"unless,omitempty"`
	Before     stringList `yaml:"before,omitempty"`
	After      stringList `yaml:"after,omitempty"`
}

// stringList decodes from a scalar or a sequence of scalars
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}
		*l = values
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

func (l stringList) MarshalYAML() (any, error) {
	if len(l) == 1 {
		return l[0], nil
	}
	return []string(l), nil
}

func (s *stateEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Name = node.Value
		return nil
	}

	type plain stateEntry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = stateEntry(p)
	return nil
}

func (s stateEntry) MarshalYAML() (any, error) {
	if len(s.OnEnter) == 0 && len(s.OnExit) == 0 {
		return s.Name, nil
	}
	type plain stateEntry
	return plain(s), nil
}

// Parse decodes a definition document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, utils.NewConfigurationError("definition is empty")
		}
		return nil, utils.NewConfigurationError("cannot parse definition").WithCause(err)
	}

	if f.States == nil {
		return nil, utils.NewConfigurationError("definition has no states key")
	}
	if f.Transitions == nil {
		return nil, utils.NewConfigurationError("definition has no transitions key")
	}

	def := &model.Definition{Name: f.Name, Initial: f.Initial}
	for _, s := range f.States {
		def.States = append(def.States, model.State{
			Name:    s.Name,
			OnEnter: s.OnEnter,
			OnExit:  s.OnExit,
		})
	}

	for i, t := range f.Transitions {
		if len(t.Source) == 0 {
			return nil, utils.NewInvalidTransitionError(
				fmt.Sprintf("transition %d has no source", i), t.Trigger)
		}
		dest := t.Dest
		if dest == "" {
			dest = model.WildcardSame
		}
		for _, src := range t.Source {
			def.Transitions = append(def.Transitions, model.Transition{
				Trigger:     t.Trigger,
				Source:      src,
				Destination: dest,
				Conditions:  slices.Clone(t.Conditions),
				Unless:      slices.Clone(t.Unless),
				Before:      slices.Clone(t.Before),
				After:       slices.Clone(t.After),
			})
		}
	}

	return &Document{
		Definition:    def,
		Final:         f.Final,
		ExpectedLoops: f.ExpectedLoops,
		Dialect:       f.Dialect,
	}, nil
}

// Load reads and parses the definition file at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewConfigurationErrorf("cannot read definition %s", path).WithCause(err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Encode writes doc in the canonical YAML layout: one transition per
// source, plain names for states without callbacks.
func Encode(doc *Document) ([]byte, error) {
	def := doc.Definition
	f := fileFormat{
		Name:          def.Name,
		Initial:       def.Initial,
		Final:         doc.Final,
		ExpectedLoops: doc.ExpectedLoops,
		Dialect:       doc.Dialect,
		States:        make([]stateEntry, 0, len(def.States)),
		Transitions:   make([]transitionEntry, 0, len(def.Transitions)),
	}

	for _, s := range def.States {
		f.States = append(f.States, stateEntry{Name: s.Name, OnEnter: s.OnEnter, OnExit: s.OnExit})
	}
	for _, t := range def.Transitions {
		f.Transitions = append(f.Transitions, transitionEntry{
			Trigger:    t.Trigger,
			Source:     stringList{t.Source},
			Dest:       t.Destination,
			Conditions: t.Conditions,
			Unless:     t.Unless,
			Before:     t.Before,
			After:      t.After,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
