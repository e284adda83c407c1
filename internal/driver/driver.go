// Package driver orchestrates one compilation end to end (§2.8): parse
// -> build_ir -> run_passes -> build_mr -> run_mips_passes -> emit. It
// is the only package that wires every other stage together and the
// only one that ever recovers a diag.Fatalf panic, turning it into a
// plain error for cmd/sysyc-cli to report.
package driver

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"sysyc/internal/diag"
	"sysyc/internal/emit"
	"sysyc/internal/errors"
	"sysyc/internal/ir"
	"sysyc/internal/mips"
	"sysyc/internal/mipspasses"
	"sysyc/internal/parser"
	"sysyc/internal/passes"
)

// Options configures one compilation run.
type Options struct {
	// Filename names the source for diagnostic positions; "" means
	// standard input, rendered as "<stdin>" by internal/errors.
	Filename string

	// Optimize selects passes.Optimize over passes.OptimizeDisabled.
	Optimize bool

	// DumpDir, when non-empty, receives the four debug dump files
	// (§6): ir.txt and ir2.txt (SSA IR before/after the optimization
	// pipeline), mr.asm and mr2.asm (MIPS IR before/after mipspasses).
	// The directory is created if it does not exist. cmd/sysyc-cli
	// sets this from its `-debug-dir` flag (or the SYSYC_DUMP_DIR
	// environment variable, as a fallback the flag overrides).
	DumpDir string

	// Progress, when non-nil, receives the pass-pipeline's per-pass
	// progress banner (internal/passes.Pipeline.Run). Left nil for a
	// quiet compile.
	Progress io.Writer
}

// Result is one completed compilation. Exactly one of Asm and
// Reporter.HasErrors() is meaningful: a clean compile has a non-empty
// Asm and an empty Reporter; a source-rejected one has an empty Asm
// and a Reporter carrying the reported diagnostics, per §7's two-tier
// error model (source errors are reported, not turned into a Go error).
type Result struct {
	Asm      string
	Reporter *errors.Reporter
}

// Compile runs the full pipeline over source. A non-nil error means
// either the input was too malformed to parse at all (no lettered
// diagnostic kind applies) or an internal invariant failure
// (diag.Fatalf) was caught partway through lowering; a genuine Go
// panic that is not one of diag's own is re-raised rather than
// swallowed here, since that indicates a bug this layer has no basis
// for diagnosing.
func Compile(source string, opts Options) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := diag.AsInternalError(r); ok {
				err = ie
				return
			}
			panic(r)
		}
	}()

	prog, rep, perr := parser.ParseProgram(opts.Filename, source)
	if perr != nil {
		return Result{}, perr
	}
	if rep.HasErrors() {
		return Result{Reporter: rep}, nil
	}

	irProg, err := ir.Build(prog)
	if err != nil {
		return Result{}, err
	}
	writeDump(opts.DumpDir, "ir.txt", irProg.String())

	quiet := opts.Progress == nil
	if opts.Optimize {
		passes.Optimize(irProg, opts.Progress, quiet)
	} else {
		passes.OptimizeDisabled(irProg, opts.Progress, quiet)
	}
	writeDump(opts.DumpDir, "ir2.txt", irProg.String())

	mp := mips.Lower(irProg)
	writeDump(opts.DumpDir, "mr.asm", mp.String())

	runMipsPasses(mp)
	writeDump(opts.DumpDir, "mr2.asm", mp.String())

	var b strings.Builder
	emit.Write(&b, irProg, mp)
	return Result{Asm: b.String(), Reporter: rep}, nil
}

// runMipsPasses applies §4.5's fixed order to every lowered function --
// bb_normalize, move_coalesce, DCE, then the iterated register
// allocator, which re-runs its own DCE internally after each spill
// round -- then restores stack frames program-wide once every
// function's virtuals are colored.
func runMipsPasses(mp *mips.MProgram) {
	for _, fn := range mp.Funcs {
		mipspasses.Normalize(fn)
		mipspasses.CoalesceMoves(fn)
		mipspasses.EliminateDeadCode(fn)
		mipspasses.Allocate(fn)
	}
	mipspasses.RestoreFrames(mp)
}

// writeDump renders one debug dump file under dir, doing nothing when
// dir is empty. A failure to create the directory or write the file is
// logged as a warning, not a fatal error -- the dumps are a debugging
// aid, never load-bearing for producing correct assembly.
func writeDump(dir, name, content string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		diag.Warnf("driver: could not create dump dir %s: %v", dir, err)
		return
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		diag.Warnf("driver: could not write dump %s: %v", path, err)
	}
}
