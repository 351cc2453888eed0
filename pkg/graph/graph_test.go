package graph_test

import (
	"errors"
	"testing"

	"github.com/anggasct/fsmtester/pkg/fixtures"
	"github.com/anggasct/fsmtester/pkg/graph"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, def *model.Definition) *graph.Graph {
	t.Helper()
	g, err := graph.Build(def)
	require.NoError(t, err)
	return g
}

func TestBuild_Counts(t *testing.T) {
	for _, def := range []*model.Definition{
		fixtures.Simple(),
		fixtures.Sink(),
		fixtures.Deadlock(),
		fixtures.Nondeterministic(),
		fixtures.AssemblyLine(),
	} {
		t.Run(def.Name, func(t *testing.T) {
			g := build(t, def)
			assert.Equal(t, len(def.States), g.NodeCount())
			assert.Equal(t, len(def.Transitions), g.EdgeCount())
			assert.Equal(t, def.StateNames(), g.Nodes())
		})
	}
}

func TestBuild_ParallelEdges(t *testing.T) {
	def := model.NewDefinition("parallel", "A", []string{"A", "B"},
		model.NewTransition("first", "A", "B"),
		model.NewTransition("second", "A", "B"),
		model.NewTransition("loop", "B", "B"),
	)
	g := build(t, def)

	assert.Equal(t, 3, g.EdgeCount())
	between := g.EdgesBetween("A", "B")
	require.Len(t, between, 2)
	assert.Equal(t, "first", between[0].Trigger)
	assert.Equal(t, "second", between[1].Trigger)
	assert.Equal(t, []string{"B"}, g.Successors("A"))
	assert.Len(t, g.AllSimplePaths("A", "B"), 1)
}

func TestBuild_UndeclaredEndpoint(t *testing.T) {
	def := model.NewDefinition("broken", "A", []string{"A"},
		model.NewTransition("go", "A", "Ghost"),
	)
	_, err := graph.Build(def)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrStateNotFound))
	assert.True(t, utils.IsModelError(err))
}

func TestGraph_HasPath(t *testing.T) {
	g := build(t, fixtures.AssemblyLine())

	assert.True(t, g.HasPath("Initial", "Finish"))
	assert.True(t, g.HasPath("Initial", "Initial"))
	assert.False(t, g.HasPath("Initial", "NotUsed"))
	assert.False(t, g.HasPath("Finish", "Initial"))
	assert.False(t, g.HasPath("Initial", "Ghost"))
}

func TestGraph_ShortestPath(t *testing.T) {
	g := build(t, fixtures.Deadlock())

	assert.Equal(t, graph.Path{"C", "D", "E", "F", "Finish"}, g.ShortestPath("C", "Finish"))
	assert.Equal(t, graph.Path{"A"}, g.ShortestPath("A", "A"))
	assert.Nil(t, g.ShortestPath("Finish", "A"))

	paths := g.ShortestPathsFrom("E")
	assert.Equal(t, graph.Path{"E", "F"}, paths["F"])
	assert.Equal(t, graph.Path{"E", "C"}, paths["C"])
	assert.Equal(t, graph.Path{"E", "C", "D"}, paths["D"])
	assert.NotContains(t, paths, "A")
}

func TestGraph_ShortestPathTieBreak(t *testing.T) {
	// B and C both reach D in two hops; B is declared first.
	def := model.NewDefinition("diamond", "A", []string{"A", "C", "B", "D"},
		model.NewTransition("left", "A", "B"),
		model.NewTransition("right", "A", "C"),
		model.NewTransition("from_c", "C", "D"),
		model.NewTransition("from_b", "B", "D"),
	)
	g := build(t, def)

	for i := 0; i < 10; i++ {
		assert.Equal(t, graph.Path{"A", "B", "D"}, g.ShortestPath("A", "D"))
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, g.DiscoveryOrder("A"))
}

func TestGraph_AllSimplePaths(t *testing.T) {
	g := build(t, fixtures.AssemblyLine())

	paths := g.AllSimplePaths("Initial", "Finish")
	assert.ElementsMatch(t, []graph.Path{
		{"Initial", "WaitOp", "PickComponent", "InspectComponent", "PlaceComponent",
			"AssembleProduct", "VerifyAssembly", "PackageProduct", "Finish"},
		{"Initial", "WaitOp", "PickComponent", "InspectComponent", "DiscardComponent",
			"ReturnToHome", "PerformCalibration", "Finish"},
	}, paths)

	assert.Equal(t, []graph.Path{{"Initial"}}, g.AllSimplePaths("Initial", "Initial"))
	assert.Empty(t, g.AllSimplePaths("Initial", "NotUsed"))

	for _, p := range g.AllSimplePaths("Initial", "WaitOp") {
		seen := map[string]bool{}
		for _, n := range p {
			assert.False(t, seen[n], "path %v repeats %s", p, n)
			seen[n] = true
		}
	}
}

func TestGraph_SimpleCycles(t *testing.T) {
	t.Run("sink", func(t *testing.T) {
		g := build(t, fixtures.Sink())
		assert.Equal(t, []graph.Path{
			{"C", "Sink", "C"},
			{"Sink", "Sink"},
		}, g.SimpleCycles())
	})

	t.Run("deadlock", func(t *testing.T) {
		g := build(t, fixtures.Deadlock())
		assert.Equal(t, []graph.Path{{"C", "D", "E", "C"}}, g.SimpleCycles())
	})

	t.Run("acyclic", func(t *testing.T) {
		g := build(t, fixtures.Simple())
		assert.Empty(t, g.SimpleCycles())
	})

	t.Run("assembly line", func(t *testing.T) {
		g := build(t, fixtures.AssemblyLine())
		assert.Equal(t, []graph.Path{
			{"WaitOp", "PickComponent", "InspectComponent", "DiscardComponent", "ReturnToHome", "WaitOp"},
		}, g.SimpleCycles())
	})
}

func TestGraph_Successors(t *testing.T) {
	g := build(t, fixtures.Sink())

	assert.Equal(t, []string{"C", "Finish"}, g.Successors("B"))
	assert.Equal(t, []string{"Sink", "C"}, g.Successors("Sink"))
	assert.Empty(t, g.Successors("Finish"))
	assert.Nil(t, g.Successors("Ghost"))
}
