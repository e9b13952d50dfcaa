package formatting

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"shopauth/pkg/auth"
	pkgstrings "shopauth/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatStatus renders the session summary as a two column table.
func (f *TableFormatter) FormatStatus(w io.Writer, st auth.Status) error {
	t := f.createTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})
	for _, row := range statusRows(st, f.options.now()) {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	t.Render()
	return nil
}

// FormatData renders objects as key/value tables and arrays as numbered lists.
func (f *TableFormatter) FormatData(w io.Writer, data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(w, d)
	case []interface{}:
		return f.formatArrayData(w, d)
	case []byte:
		_, err := w.Write(d)
		return err
	case string:
		_, err := fmt.Fprintln(w, d)
		return err
	case nil:
		return nil
	default:
		_, err := fmt.Fprintf(w, "%v\n", d)
		return err
	}
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(w io.Writer, data map[string]interface{}) error {
	t := f.createTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("KEY"), text.FgHiCyan.Sprint("VALUE")})

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), cell(data[key])})
	}
	t.Render()
	return nil
}

// formatArrayData formats array data as a simple numbered list
func (f *TableFormatter) formatArrayData(w io.Writer, data []interface{}) error {
	if len(data) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No items found"))
		return nil
	}

	for i, item := range data {
		fmt.Fprintf(w, "  %d. %s\n", i+1, cell(item))
	}

	if !f.options.Quiet {
		fmt.Fprintf(w, "\n%s %s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(data)),
			text.FgHiBlue.Sprint("items"))
	}
	return nil
}

// cell renders one value on a single line.
func cell(v interface{}) string {
	var s string
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		s = PrettyJSONCompact(v)
	default:
		s = fmt.Sprintf("%v", v)
	}
	return pkgstrings.Truncate(s, pkgstrings.DefaultCellMaxLen)
}
