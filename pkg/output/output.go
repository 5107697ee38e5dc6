// Package output renders CLI results: colored status lines, indented JSON,
// aligned tables and backend field errors.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
	fieldColor   = color.New(color.FgYellow, color.Bold)
)

func Success(format string, a ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ "+format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", a...)
}

func Warn(format string, a ...interface{}) {
	warnColor.Fprintf(os.Stdout, "⚠ "+format+"\n", a...)
}

func JSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RawJSON pretty-prints an already encoded body. Bodies that are not valid
// JSON are written unchanged.
func RawJSON(body []byte) error {
	if len(body) == 0 {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := fmt.Fprintln(os.Stdout, strings.TrimSpace(string(body)))
		return err
	}
	return JSON(v)
}

// FieldErrors prints one "field: message" line per key to stderr, in the
// order given.
func FieldErrors(keys []string, messages map[string]string) {
	for _, k := range keys {
		errorColor.Fprint(os.Stderr, "✗ ")
		fieldColor.Fprint(os.Stderr, k)
		fmt.Fprintf(os.Stderr, ": %s\n", messages[k])
	}
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers []string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() {
	t.RenderTo(os.Stdout)
}

func (t *Table) RenderTo(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, header := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", widths[i], header)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			fmt.Fprintf(w, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}
