package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pthm/flowscope/pkg/flow"
)

// Dir reads workflow definitions from files in a directory.
//
// A workflow named N is looked up as N plus each suffix in Extensions, in
// order; the first existing file wins. A name that is itself a path to an
// existing file is read directly, which lets the CLI accept either form.
type Dir struct {
	Path string
}

// NewDir returns a Dir rooted at path.
func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

// Fetch implements Source.
func (d *Dir) Fetch(ctx context.Context, name string) (RawMetadata, error) {
	if err := ctx.Err(); err != nil {
		return RawMetadata{}, err
	}

	path, err := d.locate(name)
	if err != nil {
		return RawMetadata{}, err
	}

	content, err := os.ReadFile(path) //nolint:gosec // path is resolved inside the flows directory or given by the user
	if err != nil {
		return RawMetadata{}, fmt.Errorf("reading flow file %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return RawMetadata{}, fmt.Errorf("stat flow file %s: %w", path, err)
	}

	return RawMetadata{
		Name:    NameFromPath(path),
		Format:  FormatFromPath(path),
		Content: content,
		Version: flow.Version{
			Version:      1,
			LastModified: info.ModTime().UTC(),
		},
		Origin: path,
	}, nil
}

func (d *Dir) locate(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty flow name", flow.ErrNotFound)
	}

	// Explicit file path.
	if FormatFromPath(name) != "" {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name, nil
		}
	}

	for _, ext := range Extensions {
		candidate := filepath.Join(d.Path, name+ext)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", flow.ErrNotFound, name, d.Path)
}

// List implements Lister. Names are de-duplicated and sorted.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("reading flows directory: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() || FormatFromPath(e.Name()) == "" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n := NameFromPath(e.Name())
		if seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Strings(names)
	return names, ctx.Err()
}
