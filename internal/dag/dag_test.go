package dag

import (
	"errors"
	"testing"

	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	_, ok = g.nodes["b"]
	assert.True(t, ok)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a")) // Cycle
		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		require.NoError(t, g.AddEdge("d", "a")) // Cycle back to the start
		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		// Component 1 (valid)
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))

		// Component 2 (has a cycle)
		g.AddNode("x")
		g.AddNode("y")
		g.AddNode("z")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y")) // Cycle

		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func steps(defs map[string][]string, order ...string) []*step.Step {
	out := make([]*step.Step, 0, len(order))
	for _, id := range order {
		out = append(out, &step.Step{ID: id, Name: id, DependsOn: defs[id]})
	}
	return out
}

func TestBuild(t *testing.T) {
	t.Run("diamond", func(t *testing.T) {
		g, err := Build(steps(map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		}, "a", "b", "c", "d"))
		require.NoError(t, err)

		assert.Equal(t, []string{"a"}, g.Leaves())
		assert.Equal(t, []string{"a", "b", "c", "d"}, g.TopologicalOrder())

		deps, err := g.DependenciesOf("d")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, deps, "dependenciesOf is transitive")

		direct, err := g.DirectDependencies("d")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, direct)

		dependents, err := g.DependentsOf("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, dependents, "dependentsOf is direct only")

		s, ok := g.Step("c")
		require.True(t, ok)
		assert.Equal(t, "c", s.ID)
	})

	t.Run("two node cycle", func(t *testing.T) {
		_, err := Build(steps(map[string][]string{
			"a": {"b"},
			"b": {"a"},
		}, "a", "b"))
		var cycleErr *DependencyCycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
		assert.Len(t, cycleErr.Path, 3)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := Build(steps(map[string][]string{"a": {"a"}}, "a"))
		var cycleErr *DependencyCycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, []string{"a", "a"}, cycleErr.Path)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := Build(steps(map[string][]string{"a": {"ghost"}}, "a"))
		var unknown *UnknownDependencyError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "a", unknown.StepID)
		assert.Equal(t, "ghost", unknown.Dependency)
	})

	t.Run("duplicate step id", func(t *testing.T) {
		_, err := Build(steps(nil, "a", "a"))
		var dup *DuplicateStepError
		assert.True(t, errors.As(err, &dup))
	})

	t.Run("independent leaves keep definition order", func(t *testing.T) {
		g, err := Build(steps(map[string][]string{"z": {"y"}}, "y", "x", "z"))
		require.NoError(t, err)
		assert.Equal(t, []string{"y", "x"}, g.Leaves())
		assert.Equal(t, []string{"y", "x", "z"}, g.TopologicalOrder())
	})
}

func TestQueriesOnUnknownNode(t *testing.T) {
	g := New()
	_, err := g.DependenciesOf("nope")
	assert.Error(t, err)
	_, err = g.DependentsOf("nope")
	assert.Error(t, err)
	_, err = g.DirectDependencies("nope")
	assert.Error(t, err)
}
