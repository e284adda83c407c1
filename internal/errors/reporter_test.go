package errors

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReporterSortsByLine(t *testing.T) {
	r := NewReporter("prog.c")
	r.Report(Redefinition, 10, "x")
	r.Report(UndeclaredIdent, 3, "y")
	r.Report(MissingSemicolon, 3, "")

	require.True(t, r.HasErrors())
	diags := r.Diagnostics()
	require.Len(t, diags, 3)
	require.Equal(t, 3, diags[0].Line)
	require.Equal(t, 3, diags[1].Line)
	require.Equal(t, 10, diags[2].Line)
	// ties broken by report order
	require.Equal(t, UndeclaredIdent, diags[0].Kind)
	require.Equal(t, MissingSemicolon, diags[1].Kind)
}

func TestReporterNoErrors(t *testing.T) {
	r := NewReporter("prog.c")
	require.False(t, r.HasErrors())
}

func TestKindLetters(t *testing.T) {
	require.Equal(t, byte('a'), IllegalFormatChar.Letter())
	require.Equal(t, byte('m'), BreakContinueOutsideLoop.Letter())
}

func TestFlushRenders(t *testing.T) {
	r := NewReporter("prog.c")
	r.Report(AssignToConst, 7, "n")
	var buf bytes.Buffer
	r.Flush(&buf)
	out := buf.String()
	require.Contains(t, out, "prog.c:7")
	require.Contains(t, out, "assignment to const")
}
