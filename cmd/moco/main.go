// Command moco runs a cons-cell VM program: it sizes a heap, loads a
// program (raw wire format or Intel HEX), and drives the interpreter to
// completion, reporting faults as distinct process exit codes.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/raviqqe/moco/internal/bytecode"
	"github.com/raviqqe/moco/internal/config"
	"github.com/raviqqe/moco/vm"
)

// Exit codes, one per ErrorKind plus the loader/config tiers, so a calling
// script can distinguish a VM fault from a bad program file.
const (
	exitOK = iota
	exitConfigError
	exitLoadError
	exitInvalidMemoryAccess
	exitOutOfMemory
	exitNumberExpected
	exitBytecodeEnd
	exitUnknownFault
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	stderr := colorable.NewColorableStderr()

	opts, err := config.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "moco: %v\n", err)
		return exitConfigError
	}

	f, err := os.Open(opts.Program)
	if err != nil {
		fmt.Fprintf(stderr, "moco: %v\n", err)
		return exitLoadError
	}
	defer f.Close()

	format := bytecode.Raw
	if opts.Hex {
		format = bytecode.IntelHex
	}
	program, err := bytecode.Load(f, format, opts.VerifyChecksum)
	if err != nil {
		fmt.Fprintf(stderr, "moco: %v\n", err)
		return exitLoadError
	}

	ctx := context.Background()
	if opts.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	switch opts.Width {
	case "16":
		return runWidth[uint16](ctx, opts, program, stderr)
	case "32":
		return runWidth[uint32](ctx, opts, program, stderr)
	case "64":
		return runWidth[uint64](ctx, opts, program, stderr)
	default:
		fmt.Fprintf(stderr, "moco: unsupported width %q\n", opts.Width)
		return exitConfigError
	}
}

func runWidth[W vm.Word](ctx context.Context, opts *config.Options, program []byte, stderr io.Writer) int {
	heap := vm.NewHeap[W](int(opts.HeapWords()))
	mem, err := vm.New[W](heap)
	if err != nil {
		fmt.Fprintf(stderr, "moco: building memory: %v\n", err)
		return exitConfigError
	}

	// A freshly built memory has root = null, under which nothing is
	// reachable, so a collection during loading or execution would
	// reclaim the program itself. Anchor root at a cell with integer
	// (not pointer) fields: its fields give path(C) a reachable home for
	// the program's first-instruction pointer, and being integers rather
	// than null pointers, an empty program still halts immediately
	// instead of looping on a self-referential null.
	root, err := mem.Allocate(vm.FromInteger[W](0), vm.FromInteger[W](0))
	if err != nil {
		fmt.Fprintf(stderr, "moco: building memory: %v\n", err)
		return exitConfigError
	}
	mem.SetRoot(root)

	ip := vm.New[W](mem, opts.Code)
	runErr := ip.Run(ctx, program)

	if opts.Dump != "" {
		if err := dumpHeap[W](mem, opts.Dump); err != nil {
			fmt.Fprintf(stderr, "moco: dump: %v\n", err)
		}
	}

	if runErr == nil {
		if opts.Repl {
			runRepl(ip, mem)
		}
		return exitOK
	}

	code := reportFault(stderr, runErr, opts.Color && isatty.IsTerminal(os.Stderr.Fd()))
	if opts.Repl {
		runRepl(ip, mem)
	}
	return code
}

func reportFault(stderr io.Writer, err error, color bool) int {
	kind := vm.InvalidMemoryAccess
	code := exitUnknownFault
	if v, ok := err.(*vm.VMError); ok {
		kind = v.Kind
	}

	msg := err.Error()
	if color {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprintln(stderr, msg)

	switch kind {
	case vm.InvalidMemoryAccess:
		return exitInvalidMemoryAccess
	case vm.OutOfMemory:
		return exitOutOfMemory
	case vm.NumberExpected:
		return exitNumberExpected
	case vm.BytecodeEnd:
		return exitBytecodeEnd
	default:
		return code
	}
}
