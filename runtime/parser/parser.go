// Package parser reads multi-document YAML project streams into the typed
// document model and validates the assembled project.
//
// Each file may hold any number of documents. A document is classified by its
// single top-level key (import | function | build | deploy), decoded into the
// corresponding record, and inserted into the project under namespace
// uniqueness rules. Parsing short-circuits on the first error; every error
// carries the location it was found at.
package parser

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/document"
	"github.com/orirocks/orirocks/core/value"
)

// File names a readable project stream.
type File struct {
	Name   string
	Reader io.Reader
}

// ParseProject parses every document of every file into a Project. The result
// is structurally sound but not yet validated; call Validate next.
func ParseProject(files []File) (*document.Project, error) {
	project := document.NewProject()
	for _, f := range files {
		dec := yaml.NewDecoder(f.Reader)
		for docID := 0; ; docID++ {
			var node yaml.Node
			err := dec.Decode(&node)
			if errors.Is(err, io.EOF) {
				break
			}
			loc := diag.NewLocation(f.Name, docID)
			if err != nil {
				return nil, &diag.SyntaxError{Location: loc, Cause: err}
			}
			if err := parseDocument(&node, loc, project); err != nil {
				return nil, err
			}
		}
	}
	return project, nil
}

func parseDocument(node *yaml.Node, loc diag.YamlLocation, project *document.Project) error {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) != 1 {
			return &diag.SyntaxError{Location: loc, Cause: fmt.Errorf("expected a single document node")}
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return &diag.SyntaxError{Location: loc, Cause: fmt.Errorf("document must be a mapping with a single kind key")}
	}
	kind := node.Content[0].Value
	payload := node.Content[1]

	switch kind {
	case "import":
		imports, err := decodeImportDoc(payload, &loc)
		if err != nil {
			return err
		}
		for _, im := range imports {
			project.Imports = append(project.Imports, diag.At(loc.Clone(), im))
		}
	case "function":
		fn, err := decodeFunctionDoc(payload, &loc)
		if err != nil {
			return err
		}
		if _, exists := project.Functions[fn.Name]; exists {
			return &diag.DuplicateSymbolError{Location: loc, Kind: "function", Name: fn.Name}
		}
		project.Functions[fn.Name] = diag.At(loc.Clone(), fn)
	case "build":
		build, err := decodeBuildDoc(payload, &loc)
		if err != nil {
			return err
		}
		if _, exists := project.Builds[build.Name]; exists {
			return &diag.DuplicateSymbolError{Location: loc, Kind: "artifact", Name: build.Name}
		}
		project.Builds[build.Name] = diag.At(loc.Clone(), build)
	case "deploy":
		deploy, err := decodeDeployDoc(payload, &loc)
		if err != nil {
			return err
		}
		if _, exists := project.Deploys[deploy.Name]; exists {
			return &diag.DuplicateSymbolError{Location: loc, Kind: "deploy", Name: deploy.Name}
		}
		project.Deploys[deploy.Name] = diag.At(loc.Clone(), deploy)
	default:
		return &diag.SyntaxError{Location: loc, Cause: fmt.Errorf("unknown document kind `%s`", kind)}
	}
	return nil
}

// mapPairs iterates a mapping node's (key, value) pairs.
func mapPairs(node *yaml.Node, loc *diag.YamlLocation, fn func(key string, val *yaml.Node) error) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("expected a mapping")}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return &diag.SyntaxError{Location: loc.Clone(), Cause: err}
		}
		if err := fn(key, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func sequenceItems(node *yaml.Node, loc *diag.YamlLocation) ([]*yaml.Node, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("expected a sequence")}
	}
	return node.Content, nil
}

func scalarString(node *yaml.Node, loc *diag.YamlLocation) (string, error) {
	var s string
	if err := node.Decode(&s); err != nil {
		return "", &diag.SyntaxError{Location: loc.Clone(), Cause: err}
	}
	return s, nil
}

func decodeImportDoc(node *yaml.Node, loc *diag.YamlLocation) ([]document.Import, error) {
	items, err := sequenceItems(node, loc)
	if err != nil {
		return nil, err
	}
	imports := make([]document.Import, 0, len(items))
	for i, item := range items {
		loc.Push(fmt.Sprintf("[%d]", i))
		var im document.Import
		err := mapPairs(item, loc, func(key string, val *yaml.Node) error {
			var err error
			switch key {
			case "require":
				im.Require, err = scalarString(val, loc)
				return err
			case "version":
				im.Version, err = scalarString(val, loc)
				return err
			default:
				return &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("unknown key `%s`", key)}
			}
		})
		if err != nil {
			return nil, err
		}
		loc.Pop()
		imports = append(imports, im)
	}
	return imports, nil
}

func decodeFunctionDoc(node *yaml.Node, loc *diag.YamlLocation) (document.Function, error) {
	fn := document.Function{ParameterSpec: map[string]document.Parameter{}}
	err := mapPairs(node, loc, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			var err error
			fn.Name, err = scalarString(val, loc)
			return err
		case "parameter_spec":
			loc.Push("parameter_spec")
			defer loc.Pop()
			return mapPairs(val, loc, func(pname string, pval *yaml.Node) error {
				loc.Push(pname)
				defer loc.Pop()
				param, err := decodeParameter(pval, loc)
				if err != nil {
					return err
				}
				fn.ParameterSpec[pname] = param
				return nil
			})
		case "steps":
			steps, err := decodeSteps(val, loc)
			if err != nil {
				return err
			}
			fn.Steps = steps
			return nil
		default:
			return &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("unknown key `%s`", key)}
		}
	})
	return fn, err
}

func decodeParameter(node *yaml.Node, loc *diag.YamlLocation) (document.Parameter, error) {
	var param document.Parameter
	err := mapPairs(node, loc, func(key string, val *yaml.Node) error {
		switch key {
		case "type":
			t, err := value.DecodeYAMLType(val, loc)
			if err != nil {
				return err
			}
			param.Type = t
			return nil
		case "default":
			v, err := value.DecodeYAML(val, loc)
			if err != nil {
				return err
			}
			param.Default = &v
			return nil
		default:
			return &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("unknown key `%s`", key)}
		}
	})
	return param, err
}

func decodeBuildDoc(node *yaml.Node, loc *diag.YamlLocation) (document.Build, error) {
	var build document.Build
	err := mapPairs(node, loc, func(key string, val *yaml.Node) error {
		var err error
		switch key {
		case "name":
			build.Name, err = scalarString(val, loc)
			return err
		case "from":
			build.From, err = scalarString(val, loc)
			return err
		case "depends":
			items, err := sequenceItems(val, loc)
			if err != nil {
				return err
			}
			for _, item := range items {
				dep, err := scalarString(item, loc)
				if err != nil {
					return err
				}
				build.Depends = append(build.Depends, dep)
			}
			return nil
		case "envs":
			items, err := sequenceItems(val, loc)
			if err != nil {
				return err
			}
			for _, item := range items {
				env, err := decodeEnv(item, loc)
				if err != nil {
					return err
				}
				build.Envs = append(build.Envs, env)
			}
			return nil
		default:
			return &diag.SyntaxError{Location: loc.Clone(), Cause: fmt.Errorf("unknown key `%s`", key)}
		}
	})
	return build, err
}

// decodeEnv decodes an env-block. Keys other than name and steps are the
// env-block's creation parameters.
func decodeEnv(node *yaml.Node, loc *diag.YamlLocation) (document.Env, error) {
	env := document.Env{Parameters: map[string]value.Value{}}
	err := mapPairs(node, loc, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			var err error
			env.Name, err = scalarString(val, loc)
			return err
		case "steps":
			steps, err := decodeSteps(val, loc)
			if err != nil {
				return err
			}
			env.Steps = steps
			return nil
		default:
			loc.Push(key)
			defer loc.Pop()
			v, err := value.DecodeYAML(val, loc)
			if err != nil {
				return err
			}
			env.Parameters[key] = v
			return nil
		}
	})
	return env, err
}

func decodeDeployDoc(node *yaml.Node, loc *diag.YamlLocation) (document.Deploy, error) {
	deploy := document.Deploy{Parameters: map[string]value.Value{}}
	err := mapPairs(node, loc, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			var err error
			deploy.Name, err = scalarString(val, loc)
			return err
		case "deploy_to":
			var err error
			deploy.DeployTo, err = scalarString(val, loc)
			return err
		case "artifact":
			var err error
			deploy.Artifact, err = scalarString(val, loc)
			return err
		default:
			loc.Push(key)
			defer loc.Pop()
			v, err := value.DecodeYAML(val, loc)
			if err != nil {
				return err
			}
			deploy.Parameters[key] = v
			return nil
		}
	})
	return deploy, err
}

// decodeSteps decodes a step sequence. A step mapping with an `action` key is
// an environment step and one with `invoke_fn` is a function invocation; all
// other keys are the step's parameters. A step matching neither shape is kept
// as a null step for validation to reject with its exact location.
func decodeSteps(node *yaml.Node, loc *diag.YamlLocation) ([]document.Step, error) {
	items, err := sequenceItems(node, loc)
	if err != nil {
		return nil, err
	}
	steps := make([]document.Step, 0, len(items))
	for i, item := range items {
		loc.Push(fmt.Sprintf("step #%d", i))
		step := document.Step{Parameters: map[string]value.Value{}}
		err := mapPairs(item, loc, func(key string, val *yaml.Node) error {
			switch key {
			case "action":
				var err error
				step.Kind = document.StepAction
				step.Action, err = scalarString(val, loc)
				return err
			case "invoke_fn":
				var err error
				step.Kind = document.StepInvoke
				step.InvokeFn, err = scalarString(val, loc)
				return err
			default:
				loc.Push(key)
				defer loc.Pop()
				v, err := value.DecodeYAML(val, loc)
				if err != nil {
					return err
				}
				step.Parameters[key] = v
				return nil
			}
		})
		if err != nil {
			return nil, err
		}
		loc.Pop()
		steps = append(steps, step)
	}
	return steps, nil
}
