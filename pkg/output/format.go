package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how results are rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatJSONL Format = "jsonl"
)

// Formats lists every accepted format.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatJSONL}

// ParseFormat resolves a format name, case-insensitively. Empty means table.
func ParseFormat(s string) (Format, error) {
	v := Format(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if f == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want table, json, yaml or jsonl)", s)
}

// WriteDocument renders v as a single indented JSON or YAML document.
func WriteDocument(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return &WriteError{Op: "encode_json", Err: err}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return &WriteError{Op: "encode_yaml", Err: err}
		}
		if err := enc.Close(); err != nil {
			return &WriteError{Op: "encode_yaml", Err: err}
		}
		return nil
	default:
		return fmt.Errorf("format %q is not a document format", format)
	}
}
