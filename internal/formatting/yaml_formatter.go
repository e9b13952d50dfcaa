package formatting

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"shopauth/pkg/auth"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatStatus writes st as YAML using its JSON field names.
func (f *YAMLFormatter) FormatStatus(w io.Writer, st auth.Status) error {
	// Round-trip through JSON so keys match the JSON output.
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	return f.encode(w, generic)
}

// FormatData writes data as YAML.
func (f *YAMLFormatter) FormatData(w io.Writer, data interface{}) error {
	if b, ok := data.([]byte); ok {
		data = string(b)
	}
	return f.encode(w, data)
}

// SetOptions updates the formatter options
func (f *YAMLFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}

func (f *YAMLFormatter) encode(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	return enc.Close()
}
