// Package builtin holds the in-process plugins registered ahead of the
// plugin-directory scan. They satisfy the same provider interfaces as
// natively loaded libraries but never cross the C boundary.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/orirocks/orirocks/runtime/plugin"
)

// Qemu returns the built-in qemu plugin. The current provider stages actions
// into a scratch directory and materializes the image on finish; driving a
// real VM behind the same actions is plugin-internal and does not change the
// provider surface.
func Qemu(scratchDir string) plugin.Plugin {
	return &qemuPlugin{scratch: scratchDir}
}

type qemuPlugin struct {
	scratch string
}

func (q *qemuPlugin) Name() string { return "qemu" }

func (q *qemuPlugin) Environment(kind string) (plugin.EnvironmentProvider, bool) {
	if kind != "vm" {
		return nil, false
	}
	return &vmProvider{plugin: q}, true
}

func (q *qemuPlugin) Deployment(kind string) (plugin.DeploymentProvider, bool) {
	return nil, false
}

func (q *qemuPlugin) Close() error { return nil }

type vmProvider struct {
	plugin *qemuPlugin
	seq    atomic.Uint64
}

func (p *vmProvider) Name() string { return "vm" }

func (p *vmProvider) Create(params map[string]string) (plugin.Environment, error) {
	dir := filepath.Join(p.plugin.scratch, fmt.Sprintf("qemu-vm-%d", p.seq.Add(1)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	env := &vmEnvironment{dir: dir, image: params["base_image"]}
	return env, nil
}

type vmEnvironment struct {
	dir   string
	image string
	steps []string
}

func (e *vmEnvironment) Action(name string, params map[string]string) error {
	switch name {
	case "copy_file":
		src, dst := params["source"], params["dest"]
		if src == "" || dst == "" {
			return fmt.Errorf("copy_file requires source and dest")
		}
		e.steps = append(e.steps, fmt.Sprintf("copy_file %s -> %s", src, dst))
		return nil
	case "run":
		cmd := params["command"]
		if cmd == "" {
			return fmt.Errorf("run requires command")
		}
		e.steps = append(e.steps, "run "+cmd)
		return nil
	default:
		return fmt.Errorf("unknown action `%s`", name)
	}
}

// Finish writes the staged image description to path and removes the
// scratch directory.
func (e *vmEnvironment) Finish(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var out []byte
	out = append(out, "base: "+e.image+"\n"...)
	for _, s := range e.steps {
		out = append(out, s+"\n"...)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	return os.RemoveAll(e.dir)
}
