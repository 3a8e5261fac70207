// Package source retrieves raw workflow definitions by name.
//
// A Source is the fetch_workflow collaborator of the analysis engine: given a
// workflow name it returns the undecoded document plus its flow_version
// record, or an error wrapping flow.ErrNotFound. Decoding is left to
// pkg/parser so that every source shares one normalizer.
//
// Three implementations are provided:
//
//   - Dir reads definition files from a directory.
//   - SQL reads definitions from the flowscope_flow_definitions table.
//   - Memory serves definitions registered in process, for tests and for
//     analyzing a posted document.
package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pthm/flowscope/pkg/flow"
)

// Format identifies the encoding of a raw definition.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatXML || f == FormatJSON || f == FormatYAML
}

// ParseFormat maps a user-supplied format name to a Format.
// It accepts "yml" as an alias for YAML and is case-insensitive.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xml":
		return FormatXML, true
	case "json":
		return FormatJSON, true
	case "yaml", "yml":
		return FormatYAML, true
	}
	return "", false
}

// Extensions lists the file suffixes Dir probes, in lookup order.
var Extensions = []string{".flow-meta.xml", ".flow", ".xml", ".json", ".yaml", ".yml"}

// FormatFromPath returns the format implied by a file name's extension.
// It returns "" for unknown extensions.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".flow":
		return FormatXML
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return ""
}

// NameFromPath strips the directory and any known definition suffix.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// RawMetadata is an undecoded workflow definition.
type RawMetadata struct {
	Name    string
	Format  Format
	Content []byte
	Version flow.Version
	// Origin describes where the definition came from (a path or table row)
	// for diagnostics.
	Origin string
}

// Source fetches raw workflow definitions.
//
// Implementations must be safe for concurrent use: the resolver prefetches
// sibling sub-workflows in parallel.
type Source interface {
	// Fetch returns the definition for name, or an error wrapping
	// flow.ErrNotFound if none exists.
	Fetch(ctx context.Context, name string) (RawMetadata, error)
}

// Lister is implemented by sources that can enumerate their workflows.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}
