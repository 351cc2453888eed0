package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// DOTGenerator generates Graphviz DOT format representations of state machines
type DOTGenerator struct {
	definition *model.Definition
	options    DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowGuardConditions bool
	ShowActions         bool
	CompactMode         bool
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	TransitionStyle     string
	// FinalState is drawn as a double circle
	FinalState string
	// Highlighted states are filled with HighlightColor
	Highlighted    []string
	HighlightColor string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowGuardConditions: true,
		ShowActions:         true,
		CompactMode:         false,
		RankDirection:       "TB",
		NodeShape:           "box",
		TransitionStyle:     "solid",
		HighlightColor:      "tomato",
	}
}

// NewDOTGenerator creates a new DOT generator for the given definition
func NewDOTGenerator(def *model.Definition, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		definition: def,
		options:    opts,
	}
}

// Generate creates a DOT representation of the state machine. States and
// transitions appear in declaration order.
func (g *DOTGenerator) Generate() (string, error) {
	if g.definition == nil {
		return "", fmt.Errorf("no definition to render")
	}

	var dot strings.Builder

	dot.WriteString("digraph StateMachine {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generateStates(&dot)
	dot.WriteString("\n")
	g.generateTransitions(&dot)

	dot.WriteString("}\n")

	return dot.String(), nil
}

func (g *DOTGenerator) generateStates(dot *strings.Builder) {
	dot.WriteString("  // States\n")
	for _, state := range g.definition.States {
		g.generateStateNode(dot, state)
	}
}

// generateStateNode generates a DOT node for a single state
func (g *DOTGenerator) generateStateNode(dot *strings.Builder, state model.State) {
	shape := g.options.NodeShape
	fillColor := "lightblue"
	label := state.Name

	if state.Name == g.definition.Initial {
		fillColor = "lightgreen"
		label += "\\n(initial)"
	}
	if state.Name == g.options.FinalState {
		shape = "doublecircle"
		fillColor = "lightcoral"
	}
	if slices.Contains(g.options.Highlighted, state.Name) {
		fillColor = g.options.HighlightColor
	}

	if g.options.ShowActions && !g.options.CompactMode {
		if len(state.OnEnter) > 0 {
			label += "\\nenter: " + strings.Join(state.OnEnter, ", ")
		}
		if len(state.OnExit) > 0 {
			label += "\\nexit: " + strings.Join(state.OnExit, ", ")
		}
	}

	dot.WriteString(fmt.Sprintf("  %s [shape=%s style=\"filled\" fillcolor=%s label=%s];\n",
		quote(state.Name), shape, fillColor, quote(label)))
}

// generateTransitions generates DOT edges for all transitions. A "*" source
// is drawn from every state and a "=" destination as a self-loop.
func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")

	for _, t := range g.definition.ExpandWildcards().Transitions {
		attrs := []string{fmt.Sprintf("style=%s", g.options.TransitionStyle)}
		if !g.options.CompactMode {
			attrs = append(attrs, "label="+quote(g.edgeLabel(t)))
		}
		dot.WriteString(fmt.Sprintf("  %s -> %s [%s];\n",
			quote(t.Source), quote(t.Destination), strings.Join(attrs, " ")))
	}
}

func (g *DOTGenerator) edgeLabel(t model.Transition) string {
	label := t.Trigger
	if g.options.ShowGuardConditions {
		var guards []string
		guards = append(guards, t.Conditions...)
		for _, u := range t.Unless {
			guards = append(guards, "!"+u)
		}
		if len(guards) > 0 {
			label += " [" + strings.Join(guards, " && ") + "]"
		}
	}
	if g.options.ShowActions {
		actions := append(slices.Clone(t.Before), t.After...)
		if len(actions) > 0 {
			label += " / " + strings.Join(actions, ", ")
		}
	}
	return label
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}

// StatesFromReports returns the states named by the failing cases of
// reports, in first-seen order. Deadlock cases contribute every state of
// their loop.
func StatesFromReports(reports ...*suite.Report) []string {
	var states []string
	add := func(s string) {
		if s != "" && !slices.Contains(states, s) {
			states = append(states, s)
		}
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, res := range r.Failures() {
			_, subject, ok := strings.Cut(res.Case, "/")
			if !ok {
				continue
			}
			subject, _, _ = strings.Cut(subject, "#")
			for _, s := range strings.Split(subject, "->") {
				add(s)
			}
		}
	}
	return states
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(def *model.Definition, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(def, options...),
	}
}

// Generate creates an SVG representation of the state machine
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}

// GenerateSVG creates an SVG representation of the state machine
func (g *DOTGenerator) GenerateSVG() (string, error) {
	svgGen := &SVGGenerator{dotGenerator: g}
	return svgGen.Generate()
}
