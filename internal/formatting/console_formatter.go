package formatting

import (
	"fmt"
	"io"

	"shopauth/pkg/auth"
)

// ConsoleFormatter provides simple console output formatting
type ConsoleFormatter struct {
	options Options
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(options Options) Formatter {
	return &ConsoleFormatter{
		options: options,
	}
}

// FormatStatus writes one aligned line per field.
func (f *ConsoleFormatter) FormatStatus(w io.Writer, st auth.Status) error {
	if !f.options.Quiet {
		fmt.Fprintln(w, "Storefront session")
	}
	for _, row := range statusRows(st, f.options.now()) {
		if _, err := fmt.Fprintf(w, "  %-10s %s\n", row[0]+":", row[1]); err != nil {
			return err
		}
	}
	return nil
}

// FormatData prints strings as is and everything else as indented JSON.
func (f *ConsoleFormatter) FormatData(w io.Writer, data interface{}) error {
	switch d := data.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, d)
		return err
	case []byte:
		_, err := w.Write(d)
		return err
	default:
		_, err := fmt.Fprintln(w, PrettyJSON(d))
		return err
	}
}

// SetOptions updates the formatter options
func (f *ConsoleFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *ConsoleFormatter) GetOptions() Options {
	return f.options
}
