package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlugin struct {
	name   string
	closed bool
}

func (p *stubPlugin) Name() string                                   { return p.name }
func (p *stubPlugin) Environment(string) (EnvironmentProvider, bool) { return nil, false }
func (p *stubPlugin) Deployment(string) (DeploymentProvider, bool)   { return nil, false }
func (p *stubPlugin) Close() error {
	if p.closed {
		return fmt.Errorf("double close")
	}
	p.closed = true
	return nil
}

func TestHiveIndexesByName(t *testing.T) {
	a, b := &stubPlugin{name: "qemu"}, &stubPlugin{name: "ssh"}
	hive, err := NewHive([]Plugin{a, b}, nil)
	require.NoError(t, err)

	got, ok := hive.Plugin("qemu")
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = hive.Plugin("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"qemu", "ssh"}, hive.Names())
}

func TestHiveRejectsDuplicateNames(t *testing.T) {
	_, err := NewHive([]Plugin{&stubPlugin{name: "qemu"}, &stubPlugin{name: "qemu"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate plugin")
}

func TestHiveCloseClosesAll(t *testing.T) {
	a, b := &stubPlugin{name: "qemu"}, &stubPlugin{name: "ssh"}
	hive, err := NewHive([]Plugin{a, b}, nil)
	require.NoError(t, err)
	require.NoError(t, hive.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestDiscoverWithoutPluginDir(t *testing.T) {
	builtin := &stubPlugin{name: "qemu"}
	hive, err := Discover([]Plugin{builtin}, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"qemu"}, hive.Names())
}

func TestDiscoverScansDirectoryInOrder(t *testing.T) {
	dir := t.TempDir()
	// No real shared objects in a unit test: the loader is stubbed and only
	// the scan order and wiring are under test.
	for _, name := range []string{"b.so", "a.so", "ignored.txt"} {
		writeFile(t, dir, name)
	}
	var loaded []string
	load := func(path string) (Plugin, error) {
		loaded = append(loaded, path)
		return &stubPlugin{name: path}, nil
	}
	hive, err := Discover(nil, dir, load, nil)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Contains(t, loaded[0], "a.so")
	assert.Contains(t, loaded[1], "b.so")
	assert.Len(t, hive.Names(), 2)
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}
}
