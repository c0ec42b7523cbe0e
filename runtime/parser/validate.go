package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/mod/semver"

	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/document"
)

// Validate walks an assembled project and enforces the structural invariants:
// identifier character classes, env-block name shape, and that every
// reference (env plugin, invoke_fn, from/depends, deploy artifact) resolves.
// The first violation is returned with its location.
func Validate(project *document.Project) error {
	for _, im := range project.Imports {
		if err := validateImport(im); err != nil {
			return err
		}
	}
	for _, name := range sortedFunctionNames(project) {
		if err := validateFunction(project, project.Functions[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedBuildNames(project) {
		if err := validateBuild(project, project.Builds[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedDeployNames(project) {
		if err := validateDeploy(project, project.Deploys[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateImport(im diag.Located[document.Import]) error {
	loc := im.Location
	parts := strings.Split(im.Value.Require, "/")
	if len(parts) > 2 {
		return &diag.InvalidCharacterError{Location: loc.Clone()}
	}
	for _, part := range parts {
		if err := diag.ValidateIdentifier(part, loc); err != nil {
			return err
		}
	}
	if v := im.Value.Version; v != "" && !isSemverish(v) {
		return &diag.GenericInvalidError{Location: loc.Clone()}
	}
	return nil
}

// isSemverish accepts semver with or without the leading v.
func isSemverish(v string) bool {
	if strings.HasPrefix(v, "v") {
		return semver.IsValid(v)
	}
	return semver.IsValid("v" + v)
}

func validateFunction(project *document.Project, fn diag.Located[document.Function]) error {
	loc := fn.Location.Clone()
	if err := diag.ValidateIdentifier(fn.Value.Name, loc); err != nil {
		return err
	}
	return validateSteps(project, fn.Value.Steps, &loc)
}

func validateBuild(project *document.Project, build diag.Located[document.Build]) error {
	loc := build.Location.Clone()
	if err := diag.ValidateIdentifier(build.Value.Name, loc); err != nil {
		return err
	}
	for _, dep := range build.Value.Dependencies() {
		if _, ok := project.Builds[dep]; !ok {
			return &diag.ImportNotFoundError{
				Location:   loc.Clone(),
				Name:       dep,
				Suggestion: suggest(dep, sortedBuildNames(project)),
			}
		}
	}
	for _, env := range build.Value.Envs {
		loc.Push(env.Name)
		plugin, envKind, ok := splitEnvName(env.Name)
		if !ok {
			return &diag.InvalidEnvironmentNameError{Location: loc.Clone()}
		}
		if err := diag.ValidateIdentifier(plugin, loc); err != nil {
			return err
		}
		if err := diag.ValidateIdentifier(envKind, loc); err != nil {
			return err
		}
		if _, ok := project.FindImport(plugin); !ok {
			return &diag.ImportNotFoundError{
				Location:   loc.Clone(),
				Name:       plugin,
				Suggestion: suggest(plugin, importNamespaces(project)),
			}
		}
		if err := validateSteps(project, env.Steps, &loc); err != nil {
			return err
		}
		loc.Pop()
	}
	return nil
}

func validateDeploy(project *document.Project, deploy diag.Located[document.Deploy]) error {
	loc := deploy.Location.Clone()
	if err := diag.ValidateIdentifier(deploy.Value.Name, loc); err != nil {
		return err
	}
	plugin, target, ok := splitEnvName(deploy.Value.DeployTo)
	if !ok {
		return &diag.InvalidEnvironmentNameError{Location: loc.Clone()}
	}
	if err := diag.ValidateIdentifier(plugin, loc); err != nil {
		return err
	}
	if err := diag.ValidateIdentifier(target, loc); err != nil {
		return err
	}
	if _, ok := project.FindImport(plugin); !ok {
		return &diag.ImportNotFoundError{
			Location:   loc.Clone(),
			Name:       plugin,
			Suggestion: suggest(plugin, importNamespaces(project)),
		}
	}
	if _, ok := project.Builds[deploy.Value.Artifact]; !ok {
		return &diag.ImportNotFoundError{
			Location:   loc.Clone(),
			Name:       deploy.Value.Artifact,
			Suggestion: suggest(deploy.Value.Artifact, sortedBuildNames(project)),
		}
	}
	return nil
}

func validateSteps(project *document.Project, steps []document.Step, loc *diag.YamlLocation) error {
	for i, step := range steps {
		loc.Push(stepCrumb(i))
		switch step.Kind {
		case document.StepAction:
			if err := diag.ValidateIdentifier(step.Action, *loc); err != nil {
				return err
			}
		case document.StepInvoke:
			if err := diag.ValidateIdentifier(step.InvokeFn, *loc); err != nil {
				return err
			}
			if _, ok := project.Functions[step.InvokeFn]; !ok {
				return &diag.ImportNotFoundError{
					Location:   loc.Clone(),
					Name:       step.InvokeFn,
					Suggestion: suggest(step.InvokeFn, sortedFunctionNames(project)),
				}
			}
		default:
			return &diag.GenericInvalidError{Location: loc.Clone()}
		}
		loc.Pop()
	}
	return nil
}

func stepCrumb(i int) string {
	return fmt.Sprintf("step #%d", i)
}

// splitEnvName splits a `plugin/kind` name at exactly one slash.
func splitEnvName(name string) (plugin, kind string, ok bool) {
	if strings.Count(name, "/") != 1 {
		return "", "", false
	}
	idx := strings.IndexByte(name, '/')
	return name[:idx], name[idx+1:], true
}

// suggest returns the closest candidate within a small edit distance, or
// empty when nothing is close enough to be a plausible typo.
func suggest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sortedFunctionNames(project *document.Project) []string {
	names := make([]string, 0, len(project.Functions))
	for name := range project.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedBuildNames(project *document.Project) []string {
	names := make([]string, 0, len(project.Builds))
	for name := range project.Builds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedDeployNames(project *document.Project) []string {
	names := make([]string, 0, len(project.Deploys))
	for name := range project.Deploys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func importNamespaces(project *document.Project) []string {
	names := make([]string, 0, len(project.Imports))
	for _, im := range project.Imports {
		names = append(names, im.Value.Namespace())
	}
	return names
}
