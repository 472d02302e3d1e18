package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/mattn/go-tty"

	"github.com/raviqqe/moco/vm"
)

// runRepl drops into a line-oriented debug shell after a run halts or
// faults (or to step through a program from the start). It never runs
// concurrently with Run and never introduces a new opcode: step, peek,
// root and collect are the only ways it touches the interpreter and
// memory.
func runRepl[W vm.Word](ip *vm.Interpreter[W], mem *vm.Memory[W]) {
	t, err := tty.Open()
	if err != nil {
		fmt.Printf("repl: opening tty: %v\n", err)
		return
	}
	defer t.Close()

	fmt.Println("moco debug shell — step, peek <bitpath>, root, collect, quit")
	for {
		line, err := readLine(t)
		if err != nil {
			return
		}
		args, err := shlex.Split(strings.TrimSpace(line))
		if err != nil || len(args) == 0 {
			continue
		}

		switch args[0] {
		case "step":
			more, err := ip.Step()
			if err != nil {
				fmt.Printf("fault: %v\n", err)
				continue
			}
			if !more {
				fmt.Printf("state: %v\n", ip.State())
			}
		case "peek":
			if len(args) != 2 {
				fmt.Println("usage: peek <bitpath>")
				continue
			}
			a, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				fmt.Printf("bad bitpath: %v\n", err)
				continue
			}
			idx, err := vm.Path(mem.Root(), a)
			if err != nil {
				fmt.Printf("fault: %v\n", err)
				continue
			}
			v, err := mem.Get(idx)
			if err != nil {
				fmt.Printf("fault: %v\n", err)
				continue
			}
			printValue(v)
		case "root":
			printValue(mem.Root())
		case "collect":
			if err := mem.Collect(); err != nil {
				fmt.Printf("fault: %v\n", err)
			}
		case "quit":
			return
		default:
			fmt.Printf("unknown command %q\n", args[0])
		}
	}
}

func printValue[W vm.Word](v vm.Value[W]) {
	if vm.IsPointer(v) {
		fmt.Printf("pointer %d (marked=%v)\n", vm.ToPointer(v), vm.IsMarked(v))
		return
	}
	fmt.Printf("integer %d\n", vm.ToInteger(v))
}

// readLine reads one line of input from a raw-mode tty, since the REPL
// works the same with or without a shell line discipline attached.
func readLine(t *tty.TTY) (string, error) {
	var sb strings.Builder
	for {
		r, err := t.ReadRune()
		if err != nil {
			return "", err
		}
		if r == '\n' || r == '\r' {
			return sb.String(), nil
		}
		sb.WriteRune(r)
	}
}
