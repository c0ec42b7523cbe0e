// Package document defines the typed representation of the four project
// document kinds (import, function, build, deploy), the Project aggregate,
// and their canonical content digests.
package document

import (
	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/value"
)

// Import declares a dependency on a plugin, optionally namespaced with a
// single `/` (e.g. "example/plugin").
type Import struct {
	Require string
	Version string
}

// Namespace returns the final path element of Require — the name env-block
// prefixes resolve against.
func (im Import) Namespace() string {
	for i := len(im.Require) - 1; i >= 0; i-- {
		if im.Require[i] == '/' {
			return im.Require[i+1:]
		}
	}
	return im.Require
}

// Parameter is one entry of a function's parameter spec.
type Parameter struct {
	Type    value.Type
	Default *value.Value
}

// Function is a reusable sequence of steps with a typed parameter spec.
type Function struct {
	Name          string
	ParameterSpec map[string]Parameter
	Steps         []Step
}

// Build describes how to produce one artifact: an optional base artifact,
// explicit artifact dependencies, and a sequence of env-blocks.
type Build struct {
	Name    string
	From    string
	Depends []string
	Envs    []Env
}

// Dependencies returns from ∪ depends — every artifact this build requires.
func (b Build) Dependencies() []string {
	deps := make([]string, 0, len(b.Depends)+1)
	deps = append(deps, b.Depends...)
	if b.From != "" {
		deps = append(deps, b.From)
	}
	return deps
}

// Env is one use of an environment inside a build: `plugin/env_kind` name,
// creation-time parameters, and the steps to run inside it.
type Env struct {
	Name       string
	Parameters map[string]value.Value
	Steps      []Step
}

// Deploy publishes a built artifact through a deployment provider.
type Deploy struct {
	Name       string
	DeployTo   string
	Artifact   string
	Parameters map[string]value.Value
}

// StepKind discriminates the step variants. StepNull marks a document that
// matched neither variant; validation rejects it.
type StepKind uint8

const (
	StepNull StepKind = iota
	StepAction
	StepInvoke
)

// Step is either an environment action or a function invocation.
type Step struct {
	Kind       StepKind
	Action     string // action name when Kind == StepAction
	InvokeFn   string // function name when Kind == StepInvoke
	Parameters map[string]value.Value
}

// Project is the validated aggregate of all parsed documents. Imports keep
// their declaration order; the three symbol namespaces are keyed by name.
type Project struct {
	Imports   []diag.Located[Import]
	Functions map[string]diag.Located[Function]
	Builds    map[string]diag.Located[Build]
	Deploys   map[string]diag.Located[Deploy]
}

// NewProject returns an empty project.
func NewProject() *Project {
	return &Project{
		Functions: make(map[string]diag.Located[Function]),
		Builds:    make(map[string]diag.Located[Build]),
		Deploys:   make(map[string]diag.Located[Deploy]),
	}
}

// FindImport returns the import whose namespace matches name, or false.
func (p *Project) FindImport(name string) (diag.Located[Import], bool) {
	for _, im := range p.Imports {
		if im.Value.Namespace() == name {
			return im, true
		}
	}
	return diag.Located[Import]{}, false
}
