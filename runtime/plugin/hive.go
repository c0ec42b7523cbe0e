package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Loader opens one shared library as a Plugin. Wired to native.Open by the
// CLI; kept as a function type so the hive itself stays free of cgo.
type Loader func(path string) (Plugin, error)

// Hive holds every plugin available to one invocation, indexed by name.
// There is no process-wide registry: a hive is built at startup from the
// built-in list plus a plugin directory scan, and closed when the run ends.
type Hive struct {
	plugins map[string]Plugin
	order   []string
	logger  *zap.Logger
}

// NewHive indexes the given plugins. Later plugins with a duplicate name are
// rejected so a directory scan cannot silently shadow a built-in.
func NewHive(plugins []Plugin, logger *zap.Logger) (*Hive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hive{plugins: make(map[string]Plugin, len(plugins)), logger: logger}
	for _, p := range plugins {
		if _, dup := h.plugins[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate plugin `%s`", p.Name())
		}
		h.plugins[p.Name()] = p
		h.order = append(h.order, p.Name())
	}
	return h, nil
}

// Discover builds a hive from in-process built-ins plus every shared object
// in pluginDir (sorted by filename; empty dir name skips the scan).
func Discover(builtins []Plugin, pluginDir string, load Loader, logger *zap.Logger) (*Hive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	plugins := append([]Plugin(nil), builtins...)
	if pluginDir != "" {
		entries, err := os.ReadDir(pluginDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		var paths []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
				continue
			}
			paths = append(paths, filepath.Join(pluginDir, entry.Name()))
		}
		sort.Strings(paths)
		for _, path := range paths {
			p, err := load(path)
			if err != nil {
				return nil, err
			}
			logger.Info("loaded plugin", zap.String("name", p.Name()), zap.String("path", path))
			plugins = append(plugins, p)
		}
	}
	return NewHive(plugins, logger)
}

// Plugin returns the named plugin.
func (h *Hive) Plugin(name string) (Plugin, bool) {
	p, ok := h.plugins[name]
	return p, ok
}

// Names returns plugin names in registration order.
func (h *Hive) Names() []string {
	return append([]string(nil), h.order...)
}

// Close closes every plugin; the first error wins but all are closed.
func (h *Hive) Close() error {
	var first error
	for _, name := range h.order {
		if err := h.plugins[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
