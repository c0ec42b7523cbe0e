package document

import (
	"testing"

	"github.com/orirocks/orirocks/core/value"
)

func sampleBuild() Build {
	return Build{
		Name: "my_image",
		From: "alpine_317_virt",
		Envs: []Env{
			{
				Name: "qemu/vm",
				Parameters: map[string]value.Value{
					"base_image": value.String("artifact:alpine_317_virt"),
					"memory_mb":  value.Int(2048),
				},
				Steps: []Step{
					{Kind: StepAction, Action: "copy_file", Parameters: map[string]value.Value{
						"source": value.String("src:assets/script.js"),
						"dest":   value.String("vm:/root/script.js"),
					}},
					{Kind: StepInvoke, InvokeFn: "install_docker", Parameters: map[string]value.Value{
						"version": value.String("20.10.23"),
					}},
				},
			},
		},
	}
}

func TestDigestIsStable(t *testing.T) {
	if sampleBuild().Digest() != sampleBuild().Digest() {
		t.Error("equal builds must digest equally")
	}
}

func TestDigestSeesEveryField(t *testing.T) {
	base := sampleBuild().Digest()

	mutations := map[string]func(*Build){
		"name":         func(b *Build) { b.Name = "other_image" },
		"from":         func(b *Build) { b.From = "" },
		"depends":      func(b *Build) { b.Depends = []string{"base"} },
		"env name":     func(b *Build) { b.Envs[0].Name = "qemu/kvm" },
		"env param":    func(b *Build) { b.Envs[0].Parameters["memory_mb"] = value.Int(4096) },
		"step action":  func(b *Build) { b.Envs[0].Steps[0].Action = "move_file" },
		"step param":   func(b *Build) { b.Envs[0].Steps[0].Parameters["dest"] = value.String("vm:/tmp") },
		"step removed": func(b *Build) { b.Envs[0].Steps = b.Envs[0].Steps[:1] },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := sampleBuild()
			mutate(&b)
			if b.Digest() == base {
				t.Errorf("mutating %s did not change the digest", name)
			}
		})
	}
}

func TestDigestIgnoresParameterInsertionOrder(t *testing.T) {
	a := sampleBuild()
	b := sampleBuild()
	// Rebuild b's parameter map in reverse insertion order.
	params := make(map[string]value.Value)
	params["memory_mb"] = value.Int(2048)
	params["base_image"] = value.String("artifact:alpine_317_virt")
	b.Envs[0].Parameters = params
	if a.Digest() != b.Digest() {
		t.Error("digest must not depend on map insertion order")
	}
}

func TestDocumentKindsDigestDistinctly(t *testing.T) {
	// Same payload strings under different document tags must not collide.
	im := Import{Require: "x", Version: "1.0"}
	dep := Deploy{Name: "x", DeployTo: "1.0", Artifact: ""}
	if im.Digest() == dep.Digest() {
		t.Error("import and deploy with similar payloads share a digest")
	}
}

func TestStepKindsDigestDistinctly(t *testing.T) {
	action := Function{Name: "f", Steps: []Step{{Kind: StepAction, Action: "x"}}}
	invoke := Function{Name: "f", Steps: []Step{{Kind: StepInvoke, InvokeFn: "x"}}}
	if action.Digest() == invoke.Digest() {
		t.Error("action and invoke steps with the same name share a digest")
	}
}

func TestFunctionDigestSeesParameterSpec(t *testing.T) {
	withDefault := Function{
		Name: "f",
		ParameterSpec: map[string]Parameter{
			"version": {Type: value.Type{Kind: value.TypeString}, Default: ptr(value.String("1"))},
		},
	}
	withoutDefault := Function{
		Name: "f",
		ParameterSpec: map[string]Parameter{
			"version": {Type: value.Type{Kind: value.TypeString}},
		},
	}
	if withDefault.Digest() == withoutDefault.Digest() {
		t.Error("defaults must participate in the digest")
	}
}

func TestImportNamespace(t *testing.T) {
	tests := []struct {
		require string
		want    string
	}{
		{"example/plugin", "plugin"},
		{"qemu", "qemu"},
	}
	for _, tt := range tests {
		if got := (Import{Require: tt.require}).Namespace(); got != tt.want {
			t.Errorf("Namespace(%q) = %q, want %q", tt.require, got, tt.want)
		}
	}
}

func ptr(v value.Value) *value.Value { return &v }
