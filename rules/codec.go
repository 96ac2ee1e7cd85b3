package rules

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Format is a serialization format for rule lists.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json"; empty means YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errors.Newf("unsupported rule format %q (use yaml or json)", s)
}

// FormatFromPath picks the format from a file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// EncodeRules serializes a rule list.
func EncodeRules(list []*Rule, format Format) ([]byte, error) {
	if list == nil {
		list = []*Rule{}
	}
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "encode rules")
		}
		return data, nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return nil, errors.Wrap(err, "encode rules")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "encode rules")
		}
		return buf.Bytes(), nil
	}
	return nil, errors.Newf("unsupported rule format %q", format)
}

// DecodeRules parses a rule list. Conditions are decoded strictly: unknown
// operators and misplaced fields or children are errors.
func DecodeRules(data []byte, format Format) ([]*Rule, error) {
	var list []*Rule
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, errors.Wrap(err, "decode rules")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, errors.Wrap(err, "decode rules")
		}
	default:
		return nil, errors.Newf("unsupported rule format %q", format)
	}
	for i, r := range list {
		if r == nil {
			return nil, errors.Newf("rule %d is empty", i)
		}
	}
	return list, nil
}
