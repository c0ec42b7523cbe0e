// Package cli wires the orirocks front-end: flag parsing, logger setup,
// plugin discovery, and the parse → plan → execute pipeline.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orirocks/orirocks/core/document"
	"github.com/orirocks/orirocks/runtime/cache"
	"github.com/orirocks/orirocks/runtime/executor"
	"github.com/orirocks/orirocks/runtime/parser"
	"github.com/orirocks/orirocks/runtime/planner"
	"github.com/orirocks/orirocks/runtime/plugin"
	"github.com/orirocks/orirocks/runtime/plugin/builtin"
	"github.com/orirocks/orirocks/runtime/plugin/native"
)

type options struct {
	rebuild   bool
	buildDir  string
	pluginDir string
	dryRun    bool
	debug     bool
}

// NewRootCommand builds the orirocks command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "orirocks <project-file>...",
		Short:         "Incremental build-and-deploy orchestrator for machine images",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runBuild(args, opts, logger)
		},
	}
	root.PersistentFlags().BoolVar(&opts.rebuild, "rebuild", false, "treat everything as dirty regardless of the cache")
	root.PersistentFlags().StringVar(&opts.buildDir, "build-dir", "build", "directory for the build cache and intermediate artifacts")
	root.PersistentFlags().StringVar(&opts.pluginDir, "plugin-dir", "", "directory scanned for plugin shared objects")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "verbose logging")
	root.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without executing it")

	root.AddCommand(newWatchCommand(opts))
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
	}
	return config.Build()
}

// runBuild runs one parse → plan → execute cycle and persists the cache.
func runBuild(files []string, opts *options, logger *zap.Logger) error {
	project, err := parseFiles(files)
	if err != nil {
		return err
	}

	bc, err := cache.Load(opts.buildDir)
	if err != nil {
		return err
	}
	graph, err := planner.Plan(project, bc, planner.Options{
		Rebuild:  opts.rebuild,
		BuildDir: opts.buildDir,
	}, logger)
	if err != nil {
		return err
	}

	if opts.dryRun {
		printPlan(graph)
		return nil
	}
	if graph.Empty() {
		fmt.Println("nothing to do")
		return bc.Save(opts.buildDir)
	}

	installLocationResolver(files, opts.buildDir)
	hive, err := plugin.Discover(
		[]plugin.Plugin{builtin.Qemu(filepath.Join(opts.buildDir, "scratch"))},
		opts.pluginDir, native.Open, logger)
	if err != nil {
		return err
	}
	defer func() { _ = hive.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := executor.Execute(ctx, project, graph, hive, executor.Options{
		BuildDir: opts.buildDir,
	}, logger)
	if err != nil {
		return err
	}
	// Failed and skipped work keeps no digest, so the next run plans it again.
	for name := range result.Failed {
		delete(bc.BuildHashes, name)
		delete(bc.DeployHashes, name)
	}
	for name := range result.Skipped {
		delete(bc.BuildHashes, name)
		delete(bc.DeployHashes, name)
	}
	if saveErr := bc.Save(opts.buildDir); saveErr != nil {
		return saveErr
	}
	return reportResult(result)
}

func parseFiles(paths []string) (*document.Project, error) {
	var inputs []parser.File
	var closers []*os.File
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, f)
		inputs = append(inputs, parser.File{Name: path, Reader: f})
	}
	project, err := parser.ParseProject(inputs)
	if err != nil {
		return nil, err
	}
	if err := parser.Validate(project); err != nil {
		return nil, err
	}
	return project, nil
}

// installLocationResolver backs the resolve_location host callback:
// src:<path> resolves inside the project directory, artifact:<name> to the
// built image under the build directory.
func installLocationResolver(files []string, buildDir string) {
	projectDir := "."
	if len(files) > 0 {
		projectDir = filepath.Dir(files[0])
	}
	native.SetLocationResolver(func(prefix, path string) (string, bool) {
		switch prefix {
		case "src":
			abs, err := filepath.Abs(filepath.Join(projectDir, path))
			return abs, err == nil
		case "artifact":
			abs, err := filepath.Abs(executor.ArtifactPath(buildDir, path))
			return abs, err == nil
		default:
			return "", false
		}
	})
}

func printPlan(graph *planner.Graph) {
	if graph.Empty() {
		fmt.Println("nothing to do")
		return
	}
	for i, layer := range graph.Layers {
		fmt.Printf("layer %d: %s\n", i, strings.Join(layer, ", "))
	}
	if len(graph.Deploys) > 0 {
		fmt.Printf("deploys: %s\n", strings.Join(graph.Deploys, ", "))
	}
}

func reportResult(result *executor.Result) error {
	for _, name := range result.Built {
		fmt.Printf("built %s\n", name)
	}
	for _, name := range result.Deployed {
		fmt.Printf("deployed %s\n", name)
	}
	if result.Ok() {
		return nil
	}
	for name, err := range result.Failed {
		fmt.Fprintf(os.Stderr, "failed %s: %v\n", name, err)
	}
	for name, ancestor := range result.Skipped {
		fmt.Fprintf(os.Stderr, "skipped %s (depends on failed %s)\n", name, ancestor)
	}
	return fmt.Errorf("build finished with failures")
}
