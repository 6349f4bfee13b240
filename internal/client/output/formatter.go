package output

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Formatter renders domain views for the CLI. The text formatter
// dispatches on the concrete view type; the machine formats marshal
// whatever they are handed, so every view stays scriptable with the
// same --format switch.
type Formatter interface {
	Format(data interface{}) (string, error)
	FormatList(data interface{}) (string, error)
}

// NewFormatter maps a --format value onto a formatter.
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "text":
		return NewTextFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	case "yaml":
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}

// JSONFormatter emits indented JSON. A list is just another value to
// marshal, so both entry points share one path.
type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(data interface{}) (string, error) {
	return f.marshal(data)
}

func (f *JSONFormatter) FormatList(data interface{}) (string, error) {
	return f.marshal(data)
}

func (f *JSONFormatter) marshal(data interface{}) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(out), nil
}

// YAMLFormatter emits YAML, keyed by the views' yaml tags.
type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) Format(data interface{}) (string, error) {
	return f.marshal(data)
}

func (f *YAMLFormatter) FormatList(data interface{}) (string, error) {
	return f.marshal(data)
}

func (f *YAMLFormatter) marshal(data interface{}) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(out), nil
}
