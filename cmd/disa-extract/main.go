// Command disa-extract unwraps a DISA container's SAVE (and optional
// DATA) partition and writes out the inner filesystem tree.
//
// Usage: disa-extract INPUT [OUTPUT] [OPTIONS]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/s0up4200/go-3dssave/internal/fsopts"
	"github.com/s0up4200/go-3dssave/pkg/threedssave"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("disa-extract", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: disa-extract INPUT [OUTPUT] [OPTIONS]")
		fs.PrintDefaults()
	}

	id := fs.String("id", "", "save ID in hex, needed for CMAC verification")
	sd := fs.Bool("sd", false, "the input is an SD save file")
	nand := fs.Bool("nand", false, "the input is a NAND save file")
	card := fs.Bool("card", false, "the input is a game card save file")
	decrypt := fs.Bool("decrypt", false, "decrypt the SD save before parsing; requires -sd and -id")
	key0x30X := fs.String("key-0x30x", "", "hex-encoded 0x30X key slot secret")
	key0x34X := fs.String("key-0x34x", "", "hex-encoded 0x34X key slot secret")
	keyMovable := fs.String("key-movable", "", "hex-encoded movable.sed key secret")
	keyConst := fs.String("key-const", "", "hex-encoded key-scramble constant")
	verbose := fs.BoolP("verbose", "v", false, "print per-stage progress")

	// pflag reads "-id" as the shorthands -i -d; give single-dash long
	// options such as -id or -decrypt their double-dash form first.
	args = append([]string(nil), args...)
	for i, a := range args {
		if a == "--" {
			break
		}
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			args[i] = "-" + a
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fs.Usage()
		return errors.New("disa-extract: no input file given")
	}
	input := rest[0]
	output := ""
	if len(rest) > 1 {
		output = rest[1]
	} else {
		fmt.Fprintln(os.Stderr, "No output directory given. Will only do data checking.")
	}

	kind, err := pickSaveKind(*sd, *nand, *card)
	if err != nil {
		return err
	}

	verify := fsopts.VerifyOptions{
		SaveKind:      kind,
		Key0x30XHex:   *key0x30X,
		Key0x34XHex:   *key0x34X,
		KeyMovableHex: *keyMovable,
		KeyConstHex:   *keyConst,
	}
	if *id != "" {
		saveID, err := strconv.ParseUint(*id, 16, 64)
		if err != nil {
			return fmt.Errorf("disa-extract: invalid -id: %w", err)
		}
		verify.SaveID = saveID
		verify.HasSaveID = true
	}

	opts := threedssave.DISAOptions{
		InputPath:  input,
		OutputPath: output,
		Verify:     verify,
		Decrypt:    *decrypt,
	}
	if *verbose {
		opts.OnProgress = func(ev threedssave.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Path)
		}
	}

	result, err := threedssave.ExtractDISA(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("disa-extract: %w", err)
	}

	for _, notice := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, notice)
	}
	fmt.Printf("extracted %d directories, %d files", result.DirCount, result.FileCount)
	if result.HasDataPartition {
		fmt.Printf(" (with DATA partition)")
	}
	fmt.Println()
	return nil
}

func pickSaveKind(sd, nand, card bool) (string, error) {
	picked := ""
	for _, c := range []struct {
		set  bool
		name string
	}{{sd, "sd"}, {nand, "nand"}, {card, "card"}} {
		if !c.set {
			continue
		}
		if picked != "" {
			return "", fmt.Errorf("disa-extract: -%s and -%s are mutually exclusive", picked, c.name)
		}
		picked = c.name
	}
	return picked, nil
}
