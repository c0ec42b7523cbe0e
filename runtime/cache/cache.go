// Package cache persists per-document content digests between invocations.
//
// The cache file is advisory: a missing file or a missing entry only forces a
// rebuild. A file that exists but cannot be read or decoded is an IoError.
// It is read once at startup,
// mutated in place while the planner hashes the project, and written back
// atomically at the end.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/orirocks/orirocks/core/diag"
)

// FileName is the cache file name inside the build directory.
const FileName = "cache.cbor"

// BuildCache maps document names to their last-built 64-bit content digests,
// one table per namespace.
type BuildCache struct {
	ImportHashes map[string]uint64 `cbor:"import_hashes"`
	FnHashes     map[string]uint64 `cbor:"fn_hashes"`
	BuildHashes  map[string]uint64 `cbor:"build_hashes"`
	DeployHashes map[string]uint64 `cbor:"deploy_hashes"`
}

// New returns an empty cache.
func New() *BuildCache {
	return &BuildCache{
		ImportHashes: make(map[string]uint64),
		FnHashes:     make(map[string]uint64),
		BuildHashes:  make(map[string]uint64),
		DeployHashes: make(map[string]uint64),
	}
}

// Load reads the cache from buildDir. A missing file yields an empty cache;
// a present but undecodable file is an IoError.
func Load(buildDir string) (*BuildCache, error) {
	data, err := os.ReadFile(filepath.Join(buildDir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, &diag.IoError{Cause: err}
	}
	c := New()
	if err := cbor.Unmarshal(data, c); err != nil {
		return nil, &diag.IoError{Cause: fmt.Errorf("decoding %s: %w", FileName, err)}
	}
	// Tolerate hand-edited or truncated files with nil tables.
	if c.ImportHashes == nil {
		c.ImportHashes = make(map[string]uint64)
	}
	if c.FnHashes == nil {
		c.FnHashes = make(map[string]uint64)
	}
	if c.BuildHashes == nil {
		c.BuildHashes = make(map[string]uint64)
	}
	if c.DeployHashes == nil {
		c.DeployHashes = make(map[string]uint64)
	}
	return c, nil
}

// Save writes the cache atomically: encode to a temp file in the same
// directory, sync, then rename over the destination.
func (c *BuildCache) Save(buildDir string) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return &diag.IoError{Cause: err}
	}
	data, err := cbor.Marshal(c)
	if err != nil {
		return &diag.IoError{Cause: err}
	}
	tmp, err := os.CreateTemp(buildDir, FileName+".tmp-*")
	if err != nil {
		return &diag.IoError{Cause: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &diag.IoError{Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &diag.IoError{Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &diag.IoError{Cause: err}
	}
	if err := os.Rename(tmp.Name(), filepath.Join(buildDir, FileName)); err != nil {
		return &diag.IoError{Cause: err}
	}
	return nil
}
