// Package errors collects and renders the source-language diagnostics
// of the external interface: thirteen lettered kinds (a..m), each carrying a line
// number, emitted sorted by line.
package errors

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Diagnostic is a single reported source error.
type Diagnostic struct {
	Kind    Kind
	Line    int
	Message string // extra context, e.g. the offending identifier
}

// Reporter accumulates diagnostics for one compilation unit.
type Reporter struct {
	filename string
	diags    []Diagnostic
}

// NewReporter returns a reporter for the named source file (used only
// in rendered output; pass "" when reading from standard input).
func NewReporter(filename string) *Reporter {
	return &Reporter{filename: filename}
}

// Report records a diagnostic. It does not stop compilation; the caller
// checks HasErrors before proceeding to IR construction / emission.
func (r *Reporter) Report(kind Kind, line int, message string) {
	r.diags = append(r.diags, Diagnostic{Kind: kind, Line: line, Message: message})
}

// HasErrors reports whether any diagnostic has been recorded.
func (r *Reporter) HasErrors() bool {
	return len(r.diags) > 0
}

// Diagnostics returns the recorded diagnostics sorted by line number,
// ties broken by report order.
func (r *Reporter) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Flush renders every diagnostic to w, sorted by line, in the donor's
// Rust-style format: a bold lettered header, a dim `-->` location line.
func (r *Reporter) Flush(w io.Writer) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	errColor := color.New(color.FgRed, color.Bold)

	for _, d := range r.Diagnostics() {
		var b strings.Builder
		errColor.Fprintf(&b, "error[%c]", d.Kind.Letter())
		bold.Fprintf(&b, ": %s", d.Kind.String())
		if d.Message != "" {
			fmt.Fprintf(&b, " (%s)", d.Message)
		}
		b.WriteByte('\n')
		loc := fmt.Sprintf("%s:%d", r.filenameOrStdin(), d.Line)
		dim.Fprintf(&b, "  --> %s\n", loc)
		fmt.Fprint(w, b.String())
	}
}

func (r *Reporter) filenameOrStdin() string {
	if r.filename == "" {
		return "<stdin>"
	}
	return r.filename
}
