package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/document"
	"github.com/orirocks/orirocks/core/value"
	"github.com/orirocks/orirocks/runtime/cache"
	"github.com/orirocks/orirocks/runtime/parser"
)

func parseProject(t *testing.T, src string) *document.Project {
	t.Helper()
	project, err := parser.ParseProject([]parser.File{{Name: "project.yaml", Reader: strings.NewReader(src)}})
	require.NoError(t, err)
	require.NoError(t, parser.Validate(project))
	return project
}

const chainProject = `
import:
  - require: qemu
    version: "7.2"
---
function:
  name: install_docker
  parameter_spec:
    version:
      type: string
  steps:
    - action: run
      command: apk add docker
---
build:
  name: A
  envs:
    - name: qemu/vm
      steps:
        - action: run
          command: echo A
---
build:
  name: B
  depends: [A]
  envs:
    - name: qemu/vm
      steps:
        - invoke_fn: install_docker
          version: "20.10.23"
---
build:
  name: C
  from: B
  envs:
    - name: qemu/vm
      steps: []
---
deploy:
  name: ship_c
  deploy_to: qemu/copy
  artifact: C
`

func TestFreshProjectIsFullyDirty(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	graph, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, graph.Layers)
	assert.Equal(t, []string{"ship_c"}, graph.Deploys)
	assert.Equal(t, []string{"A", "B"}, graph.ArtifactDeps["C"])
	assert.Empty(t, graph.ArtifactDeps["A"])
}

func TestSecondPlanIsEmpty(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	graph, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)
	assert.True(t, graph.Empty(), "replanning an unchanged project must be a no-op, got %+v", graph)
}

func TestMutatingRootDirtiesDescendants(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	mutated := parseProject(t, strings.Replace(chainProject, "echo A", "echo A2", 1))
	graph, err := Plan(mutated, bc, Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, graph.Layers)
	assert.Equal(t, []string{"ship_c"}, graph.Deploys)
}

func TestMutatingLeafDirtiesOnlyLeaf(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	// C is the only build with an empty step list; give it a real step.
	mutated := parseProject(t, strings.Replace(chainProject, "steps: []",
		"steps:\n        - action: run\n          command: echo C", 1))
	graph, err := Plan(mutated, bc, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"C"}}, graph.Layers)
}

func TestMutatingFunctionDirtiesItsCallers(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	mutated := parseProject(t, strings.Replace(chainProject, "apk add docker", "apk add docker-cli", 1))
	graph, err := Plan(mutated, bc, Options{}, nil)
	require.NoError(t, err)

	// B invokes the function; C builds from B. A is untouched.
	assert.Equal(t, [][]string{{"B"}, {"C"}}, graph.Layers)
}

func TestMutatingImportDirtiesItsUsers(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	mutated := parseProject(t, strings.Replace(chainProject, `version: "7.2"`, `version: "7.3"`, 1))
	graph, err := Plan(mutated, bc, Options{}, nil)
	require.NoError(t, err)

	// Every build uses a qemu/ env-block.
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, graph.Layers)
}

func TestRebuildFlagIgnoresCache(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	graph, err := Plan(project, bc, Options{Rebuild: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, graph.Layers)
	assert.Equal(t, []string{"ship_c"}, graph.Deploys)
}

func TestDeployDirtyWhenOnlyDeployChanges(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)

	mutated := parseProject(t, strings.Replace(chainProject, "deploy_to: qemu/copy", "deploy_to: qemu/upload", 1))
	graph, err := Plan(mutated, bc, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, graph.Layers)
	assert.Equal(t, []string{"ship_c"}, graph.Deploys)
}

func TestDiamondDependencyLayers(t *testing.T) {
	project := parseProject(t, `
import:
  - require: qemu
    version: "7.2"
---
build:
  name: base
  envs:
    - name: qemu/vm
      steps: []
---
build:
  name: left
  from: base
  envs: []
---
build:
  name: right
  from: base
  envs: []
---
build:
  name: top
  depends: [left, right]
  envs: []
`)
	graph, err := Plan(project, cache.New(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"base"}, {"left", "right"}, {"top"}}, graph.Layers)
	assert.Equal(t, []string{"base", "left", "right"}, graph.ArtifactDeps["top"])
}

func TestLayersRespectDependencyDirection(t *testing.T) {
	project := parseProject(t, chainProject)
	graph, err := Plan(project, cache.New(), Options{}, nil)
	require.NoError(t, err)

	layerOf := map[string]int{}
	for i, layer := range graph.Layers {
		for _, name := range layer {
			layerOf[name] = i
		}
	}
	for name, deps := range graph.ArtifactDeps {
		for _, dep := range deps {
			assert.Less(t, layerOf[dep], layerOf[name],
				"dependency %s must land in an earlier layer than %s", dep, name)
		}
	}
}

func TestCircularDependency(t *testing.T) {
	// The validator only checks that from/depends names exist, so it accepts
	// A -> B -> A; build the project directly to test the planner on its own.
	project := document.NewProject()
	loc := diag.NewLocation("project.yaml", 0)
	project.Builds["A"] = diag.At(loc, document.Build{Name: "A", From: "B"})
	project.Builds["B"] = diag.At(loc, document.Build{Name: "B", From: "A"})

	_, err := Plan(project, cache.New(), Options{}, nil)
	var circular *diag.CircularDependencyError
	require.ErrorAs(t, err, &circular)
	joined := strings.Join(circular.Cycle, " → ")
	assert.Contains(t, joined, "A")
	assert.Contains(t, joined, "B")
	assert.Equal(t, circular.Cycle[0], circular.Cycle[len(circular.Cycle)-1],
		"cycle must close on its first node")
}

func TestMissingDependencyIsImportNotFound(t *testing.T) {
	project := document.NewProject()
	loc := diag.NewLocation("project.yaml", 0)
	project.Builds["A"] = diag.At(loc, document.Build{Name: "A", From: "ghost"})

	_, err := Plan(project, cache.New(), Options{}, nil)
	var notFound *diag.ImportNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Name)
}

func TestEmptyProjectPlansNothing(t *testing.T) {
	graph, err := Plan(document.NewProject(), cache.New(), Options{}, nil)
	require.NoError(t, err)
	assert.True(t, graph.Empty())
}

func TestCacheIsRefreshedEvenWhenDirty(t *testing.T) {
	project := parseProject(t, chainProject)
	bc := cache.New()
	bc.BuildHashes["A"] = 12345 // stale digest

	_, err := Plan(project, bc, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, project.Builds["A"].Value.Digest(), bc.BuildHashes["A"])
	assert.Equal(t, project.Deploys["ship_c"].Value.Digest(), bc.DeployHashes["ship_c"])
	assert.Contains(t, bc.ImportHashes, "qemu")
}

func TestParseHashReparseYieldsIdenticalDigests(t *testing.T) {
	a := parseProject(t, chainProject)
	b := parseProject(t, chainProject)
	for name := range a.Builds {
		assert.Equal(t, a.Builds[name].Value.Digest(), b.Builds[name].Value.Digest())
	}
	for name := range a.Functions {
		assert.Equal(t, a.Functions[name].Value.Digest(), b.Functions[name].Value.Digest())
	}
}

func TestEnvParameterValueChangesDigest(t *testing.T) {
	env := document.Env{Name: "qemu/vm", Parameters: map[string]value.Value{"mem": value.Int(1)}}
	a := document.Build{Name: "x", Envs: []document.Env{env}}
	env2 := document.Env{Name: "qemu/vm", Parameters: map[string]value.Value{"mem": value.Int(2)}}
	b := document.Build{Name: "x", Envs: []document.Env{env2}}
	assert.NotEqual(t, a.Digest(), b.Digest())
}
