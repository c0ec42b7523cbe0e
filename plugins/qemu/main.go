// The qemu plugin built as a shared object:
//
//	go build -buildmode=c-shared -o orirocks-qemu.so ./plugins/qemu
//
// The vm environment has the same actions as the in-process built-in
// (copy_file, run); unlike the built-in, this plugin also provides a `copy`
// deployment. The point of the out-of-process build is exercising the ABI
// end to end.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	sdk "github.com/orirocks/orirocks/sdk/plugin"

	"github.com/orirocks/orirocks/runtime/plugin"
)

func init() {
	b := sdk.NewPlugin("qemu")
	b.AddEnvironment(&vmProvider{})
	b.AddDeployment(&copyDeployer{})
	sdk.Register(b)
}

func main() {}

type vmProvider struct {
	seq atomic.Uint64
}

func (p *vmProvider) Name() string { return "vm" }

func (p *vmProvider) Create(params map[string]string) (plugin.Environment, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("orirocks-qemu-%d-%d", os.Getpid(), p.seq.Add(1)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &vmEnvironment{dir: dir, base: params["base_image"]}, nil
}

type vmEnvironment struct {
	dir   string
	base  string
	steps []string
}

func (e *vmEnvironment) Action(name string, params map[string]string) error {
	switch name {
	case "copy_file":
		src := params["source"]
		if resolved, ok := sdk.ResolveLocation(src); ok {
			src = resolved
		}
		e.steps = append(e.steps, fmt.Sprintf("copy_file %s -> %s", src, params["dest"]))
		return nil
	case "run":
		e.steps = append(e.steps, "run "+params["command"])
		return nil
	default:
		return fmt.Errorf("unknown action `%s`", name)
	}
}

func (e *vmEnvironment) Finish(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var out []byte
	out = append(out, "base: "+e.base+"\n"...)
	for _, s := range e.steps {
		out = append(out, s+"\n"...)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	return os.RemoveAll(e.dir)
}

type copyDeployer struct{}

func (d *copyDeployer) Name() string { return "copy" }

func (d *copyDeployer) Deploy(path string, params map[string]string) error {
	dest := params["dest"]
	if dest == "" {
		return fmt.Errorf("copy deployment requires dest")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
