// Package executor drives an ordered dependency graph against the plugin
// hive: layers run in order, artifacts within a layer in parallel, deploys
// after every layer completes.
//
// The executor owns the call discipline the provider wrapper expects:
// each environment handle is driven by exactly one goroutine, and every
// created environment is finished exactly once even on failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/orirocks/orirocks/core/document"
	"github.com/orirocks/orirocks/core/value"
	"github.com/orirocks/orirocks/runtime/planner"
	"github.com/orirocks/orirocks/runtime/plugin"
)

// Options configures execution.
type Options struct {
	// BuildDir holds intermediate state; artifacts land in
	// BuildDir/artifacts/<name>.img.
	BuildDir string
	// Parallelism caps concurrent artifact builds within a layer.
	// Zero means no cap beyond the layer width.
	Parallelism int
}

// Result reports what happened to each planned artifact and deploy.
type Result struct {
	Built    []string
	Failed   map[string]error
	Skipped  map[string]string // artifact -> failed ancestor it waited on
	Deployed []string
}

// Ok reports whether everything planned was built and deployed.
func (r *Result) Ok() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}

// ArtifactPath returns where an artifact image is saved under buildDir.
func ArtifactPath(buildDir, artifact string) string {
	return filepath.Join(buildDir, "artifacts", artifact+".img")
}

// Execute runs the plan. A failed artifact, including one whose plugin or
// provider is missing, is recorded in Result.Failed and its dirty descendants
// are skipped; independent subgraphs still build. A cancelled context fails
// the artifacts still to build in the same way; Execute returns an error only
// when a deploy finds the context cancelled.
func Execute(ctx context.Context, project *document.Project, graph *planner.Graph, hive *plugin.Hive, opts Options, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ex := &executor{
		project: project,
		graph:   graph,
		hive:    hive,
		opts:    opts,
		logger:  logger,
		result: &Result{
			Failed:  make(map[string]error),
			Skipped: make(map[string]string),
		},
	}
	for i, layer := range graph.Layers {
		if err := ex.runLayer(ctx, i, layer); err != nil {
			return ex.result, err
		}
	}
	if err := ex.runDeploys(ctx); err != nil {
		return ex.result, err
	}
	return ex.result, nil
}

type executor struct {
	project *document.Project
	graph   *planner.Graph
	hive    *plugin.Hive
	opts    Options
	logger  *zap.Logger

	mu     sync.Mutex
	result *Result
}

func (ex *executor) runLayer(ctx context.Context, index int, layer []string) error {
	g, ctx := errgroup.WithContext(ctx)
	if ex.opts.Parallelism > 0 {
		g.SetLimit(ex.opts.Parallelism)
	}
	ex.logger.Info("layer start", zap.Int("layer", index), zap.Strings("artifacts", layer))
	for _, name := range layer {
		g.Go(func() error {
			if ancestor, blocked := ex.failedAncestor(name); blocked {
				ex.mu.Lock()
				ex.result.Skipped[name] = ancestor
				ex.mu.Unlock()
				ex.logger.Warn("artifact skipped",
					zap.String("artifact", name), zap.String("failed_ancestor", ancestor))
				return nil
			}
			if err := ex.buildArtifact(ctx, name); err != nil {
				ex.mu.Lock()
				ex.result.Failed[name] = err
				ex.mu.Unlock()
				ex.logger.Error("artifact failed", zap.String("artifact", name), zap.Error(err))
				return nil
			}
			ex.mu.Lock()
			ex.result.Built = append(ex.result.Built, name)
			ex.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// failedAncestor reports whether any transitive dirty dependency of name
// failed or was skipped in an earlier layer.
func (ex *executor) failedAncestor(name string) (string, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, dep := range ex.graph.ArtifactDeps[name] {
		if _, failed := ex.result.Failed[dep]; failed {
			return dep, true
		}
		if _, skipped := ex.result.Skipped[dep]; skipped {
			return dep, true
		}
	}
	return "", false
}

// buildArtifact runs each env-block of a build in order, finishing every
// environment it creates exactly once.
func (ex *executor) buildArtifact(ctx context.Context, name string) error {
	build := ex.project.Builds[name].Value
	outPath := ArtifactPath(ex.opts.BuildDir, name)
	for _, envBlock := range build.Envs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ex.runEnvBlock(ctx, name, envBlock, outPath); err != nil {
			return err
		}
	}
	ex.logger.Info("artifact built", zap.String("artifact", name), zap.String("path", outPath))
	return nil
}

func (ex *executor) runEnvBlock(ctx context.Context, artifact string, envBlock document.Env, outPath string) error {
	pluginName, kind, _ := strings.Cut(envBlock.Name, "/")
	plug, ok := ex.hive.Plugin(pluginName)
	if !ok {
		return fmt.Errorf("plugin `%s` is not loaded", pluginName)
	}
	provider, ok := plug.Environment(kind)
	if !ok {
		return fmt.Errorf("plugin `%s` has no environment `%s`", pluginName, kind)
	}

	env, err := provider.Create(stringParams(envBlock.Parameters))
	if err != nil {
		return err
	}
	if err := ex.runSteps(ctx, env, envBlock.Steps, nil); err != nil {
		// The handle must still be consumed; salvage to a scrap path so the
		// single-finish discipline holds even on a failed block.
		scrap := filepath.Join(ex.opts.BuildDir, "scratch", artifact+".failed.img")
		if ferr := env.Finish(scrap); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}
	return env.Finish(outPath)
}

// runSteps executes a step list inside env. Function invocations validate
// their arguments against the parameter spec, fill defaults, and splice the
// function's steps in place; visiting tracks the invocation chain so
// mutually recursive functions fail instead of looping.
func (ex *executor) runSteps(ctx context.Context, env plugin.Environment, steps []document.Step, visiting []string) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch step.Kind {
		case document.StepAction:
			if err := env.Action(step.Action, stringParams(step.Parameters)); err != nil {
				return err
			}
		case document.StepInvoke:
			for _, seen := range visiting {
				if seen == step.InvokeFn {
					return fmt.Errorf("recursive function invocation `%s`", step.InvokeFn)
				}
			}
			fn, ok := ex.project.Functions[step.InvokeFn]
			if !ok {
				return fmt.Errorf("function `%s` not found", step.InvokeFn)
			}
			if err := checkArguments(fn.Value, step.Parameters); err != nil {
				return fmt.Errorf("invoking `%s`: %w", step.InvokeFn, err)
			}
			if err := ex.runSteps(ctx, env, fn.Value.Steps, append(visiting, step.InvokeFn)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("null step reached the executor")
		}
	}
	return nil
}

// checkArguments validates invocation parameters against the function's
// spec: unknown names are rejected, missing ones must carry a default, and
// values must admit their declared type.
func checkArguments(fn document.Function, args map[string]value.Value) error {
	for name := range args {
		if _, ok := fn.ParameterSpec[name]; !ok {
			return fmt.Errorf("unknown parameter `%s`", name)
		}
	}
	for name, spec := range fn.ParameterSpec {
		arg, passed := args[name]
		if !passed {
			if spec.Default == nil {
				return fmt.Errorf("missing parameter `%s`", name)
			}
			continue
		}
		if !spec.Type.Admits(arg) {
			return fmt.Errorf("parameter `%s` expects %s", name, spec.Type.Kind)
		}
	}
	return nil
}

func (ex *executor) runDeploys(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range ex.graph.Deploys {
		g.Go(func() error {
			deploy := ex.project.Deploys[name].Value
			ex.mu.Lock()
			_, artifactFailed := ex.result.Failed[deploy.Artifact]
			_, artifactSkipped := ex.result.Skipped[deploy.Artifact]
			ex.mu.Unlock()
			if artifactFailed || artifactSkipped {
				ex.mu.Lock()
				ex.result.Skipped[name] = deploy.Artifact
				ex.mu.Unlock()
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := ex.runDeploy(deploy); err != nil {
				ex.mu.Lock()
				ex.result.Failed[name] = err
				ex.mu.Unlock()
				ex.logger.Error("deploy failed", zap.String("deploy", name), zap.Error(err))
				return nil
			}
			ex.mu.Lock()
			ex.result.Deployed = append(ex.result.Deployed, name)
			ex.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (ex *executor) runDeploy(deploy document.Deploy) error {
	pluginName, kind, _ := strings.Cut(deploy.DeployTo, "/")
	plug, ok := ex.hive.Plugin(pluginName)
	if !ok {
		return fmt.Errorf("plugin `%s` is not loaded", pluginName)
	}
	provider, ok := plug.Deployment(kind)
	if !ok {
		return fmt.Errorf("plugin `%s` has no deployment `%s`", pluginName, kind)
	}
	path := ArtifactPath(ex.opts.BuildDir, deploy.Artifact)
	return provider.Deploy(path, stringParams(deploy.Parameters))
}

// stringParams renders Values for the ABI param block: scalars in their
// literal form, composites as single-document YAML.
func stringParams(params map[string]value.Value) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = paramString(v)
	}
	return out
}

func paramString(v value.Value) string {
	switch v.Kind {
	case value.KindBool:
		return strconv.FormatBool(v.Bool)
	case value.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case value.KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 64)
	case value.KindString:
		return v.Str
	default:
		data, err := yaml.Marshal(v.EncodeYAML())
		if err != nil {
			return ""
		}
		return strings.TrimSuffix(string(data), "\n")
	}
}
