package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antibyte/espresso/pkg/espresso"
)

// FormatError renders err for a human reader:
//
//	Line 3: b = a / 0
//	ArithmeticError: division by zero
//
// Syntax errors get a "Syntax error: " prefix on the second line.
func FormatError(err error) string {
	var se *espresso.ScriptError
	if !errors.As(err, &se) {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	if se.Line > 0 {
		fmt.Fprintf(&b, "Line %d: %s\n", se.Line, se.Source)
	}
	if se.Kind == espresso.KindInvalidSyntax {
		b.WriteString("Syntax error: ")
	}
	fmt.Fprintf(&b, "%s: %s", se.Kind, se.Message)
	return b.String()
}

// Reporter writes formatted error reports.
type Reporter struct {
	out io.Writer
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Report writes the report for err followed by a newline.
func (r *Reporter) Report(err error) {
	fmt.Fprintln(r.out, FormatError(err))
}
