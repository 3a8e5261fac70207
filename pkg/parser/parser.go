// Package parser normalizes raw workflow definitions into flow.Metadata.
//
// Three encodings are accepted:
//
//   - XML: Salesforce Flow metadata (.flow-meta.xml) with a <Flow> root.
//   - JSON: the Tooling API shape, optionally wrapped in {"Metadata": {...}}.
//   - YAML: the JSON shape written as YAML.
//
// Source documents disagree about cardinality: a category with one step may
// be a bare object in JSON, and XML never distinguishes one from many. The
// parser resolves this once. Every step category and every repeated
// sub-record in the returned Metadata is an ordered slice, and downstream
// packages never re-check it.
//
// # Basic Usage
//
//	raw, err := src.Fetch(ctx, "Account_After_Save")
//	if err != nil {
//	    return err
//	}
//	md, err := parser.Parse(raw)
//
// A document whose root is missing or unparsable yields an error wrapping
// flow.ErrMalformedInput.
package parser

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
)

// ParseFile reads and parses a definition file. The workflow name is taken
// from the file name unless the document carries a fullName.
func ParseFile(path string) (*flow.Metadata, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path is from trusted source
	if err != nil {
		return nil, fmt.Errorf("reading flow file: %w", err)
	}
	return ParseBytes(source.NameFromPath(path), DetectFormat(path, content), content)
}

// Parse normalizes a fetched definition.
func Parse(raw source.RawMetadata) (*flow.Metadata, error) {
	format := raw.Format
	if format == "" {
		format = DetectFormat(raw.Origin, raw.Content)
	}
	return ParseBytes(raw.Name, format, raw.Content)
}

// ParseBytes parses content in the given format. name is used when the
// document does not name itself.
func ParseBytes(name string, format source.Format, content []byte) (*flow.Metadata, error) {
	var (
		rf  *rawFlow
		err error
	)
	switch format {
	case source.FormatXML:
		rf, err = decodeXML(content)
	case source.FormatJSON:
		rf, err = decodeJSON(content)
	case source.FormatYAML:
		rf, err = decodeYAML(content)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", flow.ErrMalformedInput, format)
	}
	if err != nil {
		return nil, err
	}

	md := convertFlow(rf)
	if md.Name == "" {
		md.Name = name
	}
	return md, nil
}

// DetectFormat picks a format from the path extension, falling back to the
// first significant byte of content.
func DetectFormat(path string, content []byte) source.Format {
	if f := source.FormatFromPath(path); f != "" {
		return f
	}
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return source.FormatXML
	}
	switch trimmed[0] {
	case '<':
		return source.FormatXML
	case '{', '[':
		return source.FormatJSON
	}
	return source.FormatYAML
}

func decodeXML(content []byte) (*rawFlow, error) {
	var rf rawFlow
	if err := xml.Unmarshal(content, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", flow.ErrMalformedInput, err)
	}
	return &rf, nil
}

func decodeJSON(content []byte) (*rawFlow, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: root must be a JSON object", flow.ErrMalformedInput)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", flow.ErrMalformedInput, err)
	}

	body := trimmed
	var fullName scalar
	if inner, ok := envelope["Metadata"]; ok {
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || inner[0] != '{' {
			return nil, fmt.Errorf("%w: Metadata must be a JSON object", flow.ErrMalformedInput)
		}
		body = inner
		if fn, ok := envelope["FullName"]; ok {
			_ = json.Unmarshal(fn, &fullName)
		}
	}

	var rf rawFlow
	if err := json.Unmarshal(body, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", flow.ErrMalformedInput, err)
	}
	if rf.FullName == "" {
		rf.FullName = fullName
	}
	return &rf, nil
}

func decodeYAML(content []byte) (*rawFlow, error) {
	js, err := yaml.YAMLToJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flow.ErrMalformedInput, err)
	}
	return decodeJSON(js)
}
