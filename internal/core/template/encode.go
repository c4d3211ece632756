package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Formats
// =============================================================================

// Format is a serialization format for templates and fragments.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses "json", "yaml" or "yml". An empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// =============================================================================
// Encoding
// =============================================================================

// Encode writes v in the given format. Mapping keys are emitted in sorted
// order, so equal values always encode to identical bytes.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// =============================================================================
// Decoding
// =============================================================================

// DecodeTemplate parses a host template in JSON or YAML. YAML templates must
// use the long form of intrinsic functions ("Fn::GetAtt:"); short-form tags
// such as !Ref cannot be carried through a merge and are rejected. Empty
// input yields an empty template. JSON numbers are kept as json.Number so
// their text survives re-encoding unchanged.
func DecodeTemplate(data []byte) (*Template, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Template{}, nil
	}

	var t Template
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
		return &t, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if tag, line := findShortFormTag(&root); tag != "" {
		return nil, fmt.Errorf("%w: line %d: short-form intrinsic %s is not supported", ErrInvalidTemplate, line, tag)
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &t, nil
}

// findShortFormTag returns the first local tag (e.g. "!Ref") in the tree.
func findShortFormTag(n *yaml.Node) (string, int) {
	if strings.HasPrefix(n.Tag, "!") && !strings.HasPrefix(n.Tag, "!!") {
		return n.Tag, n.Line
	}
	for _, c := range n.Content {
		if tag, line := findShortFormTag(c); tag != "" {
			return tag, line
		}
	}
	return "", 0
}
