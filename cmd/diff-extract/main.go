// Command diff-extract unwraps a single DIFF container — an ExtData
// subfile or a standalone Title DB file — and writes its inner image. If
// the input path names an ExtData root directory instead of a file, it
// extracts every subfile the archive's index names.
//
// Usage: diff-extract INPUT [OUTPUT] [OPTIONS]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/extdata"
	"github.com/s0up4200/go-3dssave/internal/fsopts"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
	"github.com/s0up4200/go-3dssave/pkg/threedssave"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("diff-extract", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: diff-extract INPUT [OUTPUT] [OPTIONS]")
		fs.PrintDefaults()
	}

	id := fs.String("id", "", "save ID in hex, needed for CMAC verification")
	subid := fs.String("subid", "", "ExtData subfile ID in hex (omit for the root or Quota.dat)")
	isExtdata := fs.Bool("extdata", false, "the input is a subfile in an ExtData archive")
	isTitledb := fs.Bool("titledb", false, "the input is a title database file")
	decrypt := fs.Bool("decrypt", false, "decrypt the SD file before parsing; requires -extdata or -titledb and -id")
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
		return errors.New("diff-extract: no input file given")
	}
	input := rest[0]
	output := ""
	if len(rest) > 1 {
		output = rest[1]
	} else {
		fmt.Fprintln(os.Stderr, "No output given. Will only do data checking.")
	}

	kind := ""
	switch {
	case *isExtdata && *isTitledb:
		return errors.New("diff-extract: -extdata and -titledb are mutually exclusive")
	case *isExtdata:
		kind = "extdata"
	case *isTitledb:
		kind = "titledb"
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
			return fmt.Errorf("diff-extract: invalid -id: %w", err)
		}
		verify.SaveID = saveID
		verify.HasSaveID = true
	}
	if *subid != "" {
		subID, err := strconv.ParseUint(*subid, 16, 64)
		if err != nil {
			return fmt.Errorf("diff-extract: invalid -subid: %w", err)
		}
		verify.SubID = subID
		verify.HasSubID = true
	}

	info, statErr := os.Stat(input)
	if statErr == nil && info.IsDir() {
		if *decrypt {
			return errors.New("diff-extract: -decrypt is not supported for directory input")
		}
		d := &diag.Collector{}
		dirCount, fileCount, err := extdata.ExtractDirectory(threedscrypto.Stdlib{}, input, verify.SaveID, output, d)
		if err != nil {
			return fmt.Errorf("diff-extract: %w", err)
		}
		for _, entry := range d.Entries() {
			fmt.Fprintln(os.Stderr, entry.String())
		}
		fmt.Printf("extracted %d directories, %d files\n", dirCount, fileCount)
		return nil
	}

	opts := threedssave.DIFFOptions{
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

	result, err := threedssave.ExtractDIFF(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("diff-extract: %w", err)
	}

	for _, notice := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, notice)
	}
	fmt.Printf("uniqueId=0x%016X externalIVFCL4=%v\n", result.UniqueID, result.ExternalIVFCL4)
	return nil
}
