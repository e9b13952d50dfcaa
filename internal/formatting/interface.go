// Package formatting renders session status and API response data for the
// CLI in console, JSON, YAML or table form.
package formatting

import (
	"io"
	"time"

	"shopauth/pkg/auth"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatConsole OutputFormat = "console" // Simple console output
	FormatJSON    OutputFormat = "json"    // JSON output
	FormatYAML    OutputFormat = "yaml"    // YAML output
	FormatTable   OutputFormat = "table"   // Rich table output
)

// ParseFormat maps a flag value to an OutputFormat, defaulting to console.
func ParseFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatJSON, FormatYAML, FormatTable:
		return OutputFormat(s)
	default:
		return FormatConsole
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements

	// Now is the clock used for relative expiry times. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Formatter writes CLI output.
type Formatter interface {
	// FormatStatus writes the session summary.
	FormatStatus(w io.Writer, st auth.Status) error

	// FormatData writes a decoded API response body.
	FormatData(w io.Writer, data interface{}) error

	// Configuration
	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

// factory implements the Factory interface
type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		return NewTableFormatter(options)
	case FormatConsole:
		fallthrough
	default:
		return NewConsoleFormatter(options)
	}
}
