// Package diag is the compiler's internal-invariant-failure logger: a
// thin wrapper around commonlog for the handful of "this should never
// happen" conditions the optimizer and register allocator can detect
// but not usefully recover from (a block left without a terminator, a
// spill candidate with no home slot, and the like). User-facing source
// diagnostics go through internal/errors instead; this package is for
// the compiler's own assumptions.
package diag

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("sysyc")

// Configure sets the global log verbosity (0 quiet, higher noisier,
// matching the donor LSP server's single commonlog.Configure call) and
// an optional log file path.
func Configure(verbosity int, path *string) {
	commonlog.Configure(verbosity, path)
}

// Warnf records a recoverable anomaly: something the compiler worked
// around, but that a well-formed program or a correct pass should
// never have produced.
func Warnf(format string, args ...any) {
	logger.Warning(fmt.Sprintf(format, args...))
}

// Errorf records an internal invariant failure that the caller is
// about to turn into a hard compiler error.
func Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...))
}

// Fatalf logs an internal invariant failure and panics; used for
// conditions that leave the compiler with no sound way to continue
// (a spill slot that cannot be assigned, a block with two
// terminators). Recovered at the top of internal/driver so a bug here
// is reported as an internal compiler error rather than a raw panic
// trace.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Critical(msg)
	panic(internalError(msg))
}

// internalError marks a panic value as an internal-compiler-error
// report rather than an unexpected Go panic, so the driver's recover
// can tell the two apart.
type internalError string

func (e internalError) Error() string { return "internal compiler error: " + string(e) }

// AsInternalError reports whether a recovered panic value came from
// Fatalf, returning its error.
func AsInternalError(r any) (error, bool) {
	if e, ok := r.(internalError); ok {
		return e, true
	}
	return nil, false
}
