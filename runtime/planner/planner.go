// Package planner reconciles a parsed project against the build cache and
// produces the ordered, layered build plan.
//
// Dirtiness flows in two stages. First every document is hashed and compared
// against the cache (the cache is refreshed to the current digests as a side
// effect). Then dirtiness propagates across the artifact graph: a build is
// clean only if it, the imports and functions it uses, and every artifact in
// its from/depends set are clean, transitively. The dirty artifacts are
// layered with Kahn's algorithm so the executor can run each layer's
// artifacts in parallel.
package planner

import (
	"sort"

	"go.uber.org/zap"

	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/document"
	"github.com/orirocks/orirocks/runtime/cache"
)

// Options controls planning.
type Options struct {
	// Rebuild treats every document as dirty regardless of the cache.
	Rebuild bool
	// BuildDir is where the cache and intermediate artifacts live.
	BuildDir string
}

// Graph is the ordered dependency graph the executor consumes.
type Graph struct {
	// Layers holds dirty artifact names in execution order: artifacts within
	// a layer may build in parallel; a layer starts only after the previous
	// one completes. Each layer is sorted lexicographically.
	Layers [][]string
	// ArtifactDeps maps each dirty artifact to its transitive dirty
	// dependencies, sorted.
	ArtifactDeps map[string][]string
	// Deploys lists the dirty deploys, sorted; they run after all layers.
	Deploys []string
}

// Empty reports whether the plan contains no work.
func (g *Graph) Empty() bool {
	return len(g.Layers) == 0 && len(g.Deploys) == 0
}

// Plan hashes the project, updates bc in place, and returns the layered plan
// of dirty artifacts and deploys. bc must be saved by the caller afterwards.
func Plan(project *document.Project, bc *cache.BuildCache, opts Options, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &planner{
		project: project,
		cache:   bc,
		opts:    opts,
		logger:  logger,

		importClean: make(map[string]bool),
		fnClean:     make(map[string]bool),
		selfClean:   make(map[string]bool),
		deployClean: make(map[string]bool),

		cleanSet: make(map[string]bool),
		dirtySet: make(map[string]bool),
		grey:     make(map[string]bool),
	}
	p.refreshHashes()

	for _, name := range sortedKeys(project.Builds) {
		if _, err := p.visit(name, nil); err != nil {
			return nil, err
		}
	}
	return p.assemble()
}

type planner struct {
	project *document.Project
	cache   *cache.BuildCache
	opts    Options
	logger  *zap.Logger

	// Per-document self-cleanliness, computed up front while refreshing the
	// cache to current digests.
	importClean map[string]bool
	fnClean     map[string]bool
	selfClean   map[string]bool
	deployClean map[string]bool

	// Transitive memoization and DFS coloring.
	cleanSet map[string]bool
	dirtySet map[string]bool
	grey     map[string]bool
}

// refreshHashes computes current digests for every document, records
// self-cleanliness, and updates the cache in place. With Rebuild set,
// everything is marked dirty but the cache still advances.
func (p *planner) refreshHashes() {
	reconcile := func(table map[string]uint64, name string, digest uint64) bool {
		prev, ok := table[name]
		table[name] = digest
		return ok && prev == digest && !p.opts.Rebuild
	}
	for _, im := range p.project.Imports {
		p.importClean[im.Value.Namespace()] = reconcile(p.cache.ImportHashes, im.Value.Require, im.Value.Digest())
	}
	for name, fn := range p.project.Functions {
		p.fnClean[name] = reconcile(p.cache.FnHashes, name, fn.Value.Digest())
	}
	for name, build := range p.project.Builds {
		p.selfClean[name] = reconcile(p.cache.BuildHashes, name, build.Value.Digest())
	}
	for name, deploy := range p.project.Deploys {
		p.deployClean[name] = reconcile(p.cache.DeployHashes, name, deploy.Value.Digest())
	}
}

// localClean reports whether a build is clean in isolation: its own digest
// matches, and so do those of every import and function its env-blocks use.
func (p *planner) localClean(name string) bool {
	if !p.selfClean[name] {
		return false
	}
	build := p.project.Builds[name].Value
	for _, env := range build.Envs {
		plugin, _, ok := splitOnce(env.Name)
		if !ok || !p.importClean[plugin] {
			return false
		}
		for _, step := range env.Steps {
			if step.Kind == document.StepInvoke && !p.fnClean[step.InvokeFn] {
				return false
			}
		}
	}
	return true
}

// visit computes transitive cleanliness by DFS with grey/black coloring.
// stack is the current DFS path, used to report cycles.
func (p *planner) visit(name string, stack []string) (bool, error) {
	if p.cleanSet[name] {
		return true, nil
	}
	if p.dirtySet[name] {
		return false, nil
	}
	if p.grey[name] {
		return false, &diag.CircularDependencyError{Cycle: cyclePath(stack, name)}
	}
	p.grey[name] = true
	defer delete(p.grey, name)

	clean := p.localClean(name)
	build := p.project.Builds[name].Value
	deps := build.Dependencies()
	sort.Strings(deps)
	for _, dep := range deps {
		if _, ok := p.project.Builds[dep]; !ok {
			loc := p.project.Builds[name].Location
			return false, &diag.ImportNotFoundError{Location: loc, Name: dep}
		}
		depClean, err := p.visit(dep, append(stack, name))
		if err != nil {
			return false, err
		}
		clean = clean && depClean
	}
	if clean {
		p.cleanSet[name] = true
	} else {
		p.dirtySet[name] = true
		p.logger.Debug("artifact dirty", zap.String("artifact", name))
	}
	return clean, nil
}

// assemble layers the dirty subgraph and appends dirty deploys.
func (p *planner) assemble() (*Graph, error) {
	graph := &Graph{ArtifactDeps: make(map[string][]string)}

	dirty := make([]string, 0, len(p.dirtySet))
	for name := range p.dirtySet {
		dirty = append(dirty, name)
	}
	sort.Strings(dirty)

	// Direct dirty prerequisites per dirty artifact. Clean dependencies are
	// already on disk and impose no ordering.
	direct := make(map[string][]string, len(dirty))
	for _, name := range dirty {
		var deps []string
		for _, dep := range p.project.Builds[name].Value.Dependencies() {
			if p.dirtySet[dep] {
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)
		direct[name] = deps
	}
	for _, name := range dirty {
		graph.ArtifactDeps[name] = transitiveDeps(name, direct)
	}

	// Kahn's algorithm over the induced subgraph, lexicographic within a
	// layer for determinism.
	built := make(map[string]bool, len(dirty))
	remaining := append([]string(nil), dirty...)
	for len(remaining) > 0 {
		var layer, next []string
		for _, name := range remaining {
			ready := true
			for _, dep := range direct[name] {
				if !built[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, name)
			} else {
				next = append(next, name)
			}
		}
		if len(layer) == 0 {
			// Only a cycle among dirty artifacts can stall the layering; the
			// DFS reports cycles first in practice, but guard anyway.
			return nil, &diag.CircularDependencyError{Cycle: remaining}
		}
		for _, name := range layer {
			built[name] = true
		}
		graph.Layers = append(graph.Layers, layer)
		remaining = next
	}

	for _, name := range sortedKeys(p.project.Deploys) {
		deploy := p.project.Deploys[name].Value
		if !p.deployClean[name] || p.dirtySet[deploy.Artifact] {
			graph.Deploys = append(graph.Deploys, name)
		}
	}

	p.logger.Info("plan assembled",
		zap.Int("dirty_artifacts", len(dirty)),
		zap.Int("layers", len(graph.Layers)),
		zap.Int("deploys", len(graph.Deploys)))
	return graph, nil
}

// transitiveDeps walks the dirty subgraph from name and returns every dirty
// artifact reachable through direct edges, sorted.
func transitiveDeps(name string, direct map[string][]string) []string {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, dep := range direct[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)
	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// cyclePath trims the DFS stack to the cycle and closes it: A → B → A.
func cyclePath(stack []string, name string) []string {
	start := 0
	for i, n := range stack {
		if n == name {
			start = i
			break
		}
	}
	cycle := append([]string(nil), stack[start:]...)
	return append(cycle, name)
}

func splitOnce(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func sortedKeys[T any](m map[string]diag.Located[T]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
