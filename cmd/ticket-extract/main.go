// Command ticket-extract unwraps a BDRI ticket/title database image
// (behind its TICK preheader) and extracts its Title-DB tree.
//
// Usage: ticket-extract INPUT [OUTPUT]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/s0up4200/go-3dssave/pkg/threedssave"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ticket-extract INPUT [OUTPUT]")
		return errors.New("ticket-extract: no input file given")
	}
	input := args[0]
	output := ""
	if len(args) > 1 {
		output = args[1]
	} else {
		fmt.Fprintln(os.Stderr, "No output directory given. Will only do data checking.")
	}

	opts := threedssave.TicketOptions{
		InputPath:  input,
		OutputPath: output,
	}

	result, err := threedssave.ExtractTicket(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("ticket-extract: %w", err)
	}

	for _, notice := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, notice)
	}
	fmt.Printf("extracted %d directories, %d files\n", result.DirCount, result.FileCount)
	return nil
}
