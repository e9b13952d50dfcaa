package formatting

import (
	"encoding/json"
	"io"

	"shopauth/pkg/auth"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatStatus writes st as a JSON document.
func (f *JSONFormatter) FormatStatus(w io.Writer, st auth.Status) error {
	return f.encode(w, st)
}

// FormatData writes data as a JSON document.
func (f *JSONFormatter) FormatData(w io.Writer, data interface{}) error {
	if b, ok := data.([]byte); ok {
		data = string(b)
	}
	return f.encode(w, data)
}

// SetOptions updates the formatter options
func (f *JSONFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}

func (f *JSONFormatter) encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
