// Package main is the sysyc command-line entry point (§6): an input
// path (or stdin), an optional `-o` output path, and an optional
// `-debug-dir` directory for the four pass-dump files, plus a colored
// success/failure banner in the donor CLI's style and a process exit
// status that reflects whether compilation produced assembly.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"sysyc/internal/driver"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inPath, outPath, debugDir, ok := parseArgs(args)
	if !ok {
		fmt.Fprintln(stderr, "usage: sysyc-cli [input.c [-o output.asm] [-debug-dir dir]]")
		return 1
	}

	source, err := readSource(inPath, stdin)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "failed to read input: %s\n", err)
		return 1
	}

	opts := driver.Options{Filename: displayName(inPath), Optimize: true}
	if dir := os.Getenv("SYSYC_DUMP_DIR"); dir != "" {
		opts.DumpDir = dir
	}
	if debugDir != "" {
		opts.DumpDir = debugDir
	}

	res, err := driver.Compile(source, opts)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(stderr, "internal compiler error: %s\n", err)
		return 1
	}
	if res.Reporter.HasErrors() {
		res.Reporter.Flush(stderr)
		return 1
	}

	if err := writeOutput(outPath, res.Asm, stdout); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "failed to write output: %s\n", err)
		return 1
	}

	if outPath != "" {
		color.New(color.FgGreen).Fprintf(stderr, "wrote %s\n", outPath)
	}
	return 0
}

// parseArgs recognizes an optional leading input path (any argument not
// itself starting with "-"), followed by "-o <path>" and/or
// "-debug-dir <dir>" in either order. Anything else -- a flag missing
// its value, an unrecognized flag, or a second positional argument --
// is a usage error.
func parseArgs(args []string) (inPath, outPath, debugDir string, ok bool) {
	i := 0
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		inPath = args[0]
		i = 1
	}
	for i < len(args) {
		switch args[i] {
		case "-o":
			if i+1 >= len(args) {
				return "", "", "", false
			}
			outPath = args[i+1]
			i += 2
		case "-debug-dir":
			if i+1 >= len(args) {
				return "", "", "", false
			}
			debugDir = args[i+1]
			i += 2
		default:
			return "", "", "", false
		}
	}
	return inPath, outPath, debugDir, true
}

func readSource(path string, stdin io.Reader) (string, error) {
	if path == "" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func displayName(path string) string {
	if path == "" {
		return "<stdin>"
	}
	return path
}

func writeOutput(path, asm string, stdout io.Writer) error {
	if path == "" {
		_, err := io.WriteString(stdout, asm)
		return err
	}
	return os.WriteFile(path, []byte(asm), 0o644)
}
