// Command minicc reads one C-like source file, compiles it in one pass to
// bytecode, and runs that bytecode on the embedded stack machine. See §6 of
// SPEC_FULL.md for the invocation contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kesselrun/minicc/internal/compiler"
	"github.com/kesselrun/minicc/internal/lexer"
	"github.com/kesselrun/minicc/internal/pool"
	"github.com/kesselrun/minicc/internal/segment"
	"github.com/kesselrun/minicc/internal/symtab"
	"github.com/kesselrun/minicc/internal/vm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run is the pure entry point main wraps: given argv and an output writer,
// it returns the process exit status described in §6 ("-1 on compilation or
// setup failure, otherwise the status passed to EXIT").
func run(args []string, out io.Writer) int {
	logger := log.New(out, "", 0)

	fs := flag.NewFlagSet("minicc", flag.ContinueOnError)
	fs.SetOutput(out)
	src := fs.Bool("s", false, "print source and emitted bytecode, then exit without running")
	debug := fs.Bool("d", false, "print a per-instruction execution trace")
	if err := fs.Parse(args); err != nil {
		return -1
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(out, "usage: minicc [-s] [-d] file ...")
		return -1
	}
	path := rest[0]
	argv := rest

	f, err := os.Open(path)
	if err != nil {
		logger.Printf("could not open %s: %v", path, err)
		return -1
	}
	defer f.Close()

	buf, err := pool.ReadSource(f, pool.DefaultSize)
	if err != nil {
		logger.Printf("%v", err)
		return -1
	}

	syms := symtab.New()
	code := segment.NewCode(pool.DefaultSize)
	mem := segment.NewMemory(pool.DefaultSize, pool.DefaultSize)

	compiler.Seed(syms)
	lex := lexer.New(buf, syms, mem)
	c := compiler.New(lex, syms, code, mem)
	if *src {
		c.Trace = out
	}

	entry, err := c.Compile()
	if err != nil {
		logger.Printf("%v", err)
		return -1
	}
	if *src {
		return 0
	}

	argvAddr, err := vm.CopyArgv(mem, argv)
	if err != nil {
		logger.Printf("%v", err)
		return -1
	}

	m := vm.New(code, mem, nil, out, *debug)
	m.Setup(entry, len(argv), argvAddr)
	status, err := m.Run(context.Background())
	if err != nil {
		logger.Printf("%v", err)
		return -1
	}
	return status
}
