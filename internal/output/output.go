// Package output formats the one-off messages refvec commands print
// around a run: results, confirmations and failure lists.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✅", fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠️ ", fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status("❌", fmt.Sprintf(format, args...))
}

// Itemf prints an indented list entry.
func (w *Writer) Itemf(marker, format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", marker, fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Confirm asks question and reads one line from in. Only y or yes
// (any case) confirm; anything else, including end of input, declines.
func (w *Writer) Confirm(in io.Reader, question string) bool {
	_, _ = fmt.Fprintf(w.out, "%s [y/N] ", question)

	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	w.Newline()
	return false
}
