package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQemuProvidesOnlyVM(t *testing.T) {
	p := Qemu(t.TempDir())
	assert.Equal(t, "qemu", p.Name())

	_, ok := p.Environment("vm")
	assert.True(t, ok)
	_, ok = p.Environment("container")
	assert.False(t, ok)
	_, ok = p.Deployment("anything")
	assert.False(t, ok)
	assert.NoError(t, p.Close())
}

func TestVMLifecycle(t *testing.T) {
	scratch := t.TempDir()
	p := Qemu(scratch)
	provider, ok := p.Environment("vm")
	require.True(t, ok)

	env, err := provider.Create(map[string]string{"base_image": "alpine-3.17.qcow2"})
	require.NoError(t, err)

	require.NoError(t, env.Action("copy_file", map[string]string{
		"source": "src:assets/script.js",
		"dest":   "vm:/root/script.js",
	}))
	require.NoError(t, env.Action("run", map[string]string{"command": "apk add docker"}))

	out := filepath.Join(t.TempDir(), "artifacts", "img.img")
	require.NoError(t, env.Finish(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base: alpine-3.17.qcow2")
	assert.Contains(t, string(data), "copy_file src:assets/script.js -> vm:/root/script.js")
	assert.Contains(t, string(data), "run apk add docker")

	// The scratch area is cleaned up on finish.
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVMRejectsUnknownAction(t *testing.T) {
	provider, _ := Qemu(t.TempDir()).Environment("vm")
	env, err := provider.Create(nil)
	require.NoError(t, err)
	assert.ErrorContains(t, env.Action("teleport", nil), "unknown action")
	require.NoError(t, env.Finish(filepath.Join(t.TempDir(), "x.img")))
}

func TestVMActionParameterValidation(t *testing.T) {
	provider, _ := Qemu(t.TempDir()).Environment("vm")
	env, err := provider.Create(nil)
	require.NoError(t, err)
	assert.Error(t, env.Action("copy_file", map[string]string{"source": "only"}))
	assert.Error(t, env.Action("run", nil))
	require.NoError(t, env.Finish(filepath.Join(t.TempDir(), "x.img")))
}
