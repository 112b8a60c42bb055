// Command calculator runs the arithmetic tool server over stdio, reading
// requests from stdin and writing replies to stdout. A toolhost manager
// can launch it as a child process:
//
//	servers:
//	  - name: calc
//	    command: calculator
//
// Diagnostics go to stderr so they never mix with the wire protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/copperline/toolhost"
	"github.com/copperline/toolhost/servers/calculator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	transport := toolhost.NewStdIO(os.Stdin, os.Stdout, toolhost.WithStdIOLogger(logger))

	if err := calculator.NewServer().Serve(ctx, transport); err != nil {
		fmt.Fprintf(os.Stderr, "calculator: %v\n", err)
		return 1
	}
	return 0
}
