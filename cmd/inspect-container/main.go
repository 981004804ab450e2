// Command inspect-container is a read-only structure dumper for DISA/DIFF
// containers: it walks the outer header, partition table, and DIFI/IVFC/DPFS
// descriptors and prints their field values, without verifying the outer
// CMAC or extracting any files. Useful for diagnosing a corrupt image
// without committing to an output directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/s0up4200/go-3dssave/internal/container"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("inspect-container", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: inspect-container INPUT")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("inspect-container: no input file given")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("inspect-container: %w", err)
	}

	format, err := container.DetectFormat(data)
	if err != nil {
		return fmt.Errorf("inspect-container: %w", err)
	}
	fmt.Printf("format=%s\n", format)

	switch format {
	case "DISA":
		return inspectDISA(data)
	case "DIFF":
		return inspectDIFF(data)
	default:
		return fmt.Errorf("inspect-container: unhandled format %q", format)
	}
}

func inspectDISA(data []byte) error {
	h, err := container.InspectDISAHeader(data)
	if err != nil {
		return fmt.Errorf("inspect-container: %w", err)
	}
	fmt.Printf("partCount=%d activeTable=%d tableHash=%x\n", h.PartCount, h.ActiveTable, h.TableHash)
	fmt.Printf("partitionTable: primary=0x%X secondary=0x%X size=0x%X\n", h.PriPartTableOff, h.SecPartTableOff, h.PartTableSize)
	fmt.Printf("partitionA: descriptor=0x%X/0x%X data=0x%X/0x%X\n", h.PartADescriptorOff, h.PartADescriptorSize, h.PartAOff, h.PartASize)
	if h.PartCount == 2 {
		fmt.Printf("partitionB: descriptor=0x%X/0x%X data=0x%X/0x%X\n", h.PartBDescriptorOff, h.PartBDescriptorSize, h.PartBOff, h.PartBSize)
	}

	partTableOff := h.PriPartTableOff
	if h.ActiveTable == 1 {
		partTableOff = h.SecPartTableOff
	}
	if uint64(len(data)) < partTableOff+h.PartTableSize {
		fmt.Println("partition table out of bounds, stopping")
		return nil
	}
	partTable := data[partTableOff : partTableOff+h.PartTableSize]

	if uint64(len(partTable)) >= h.PartADescriptorOff+h.PartADescriptorSize {
		descA, err := container.ParseDIFI(partTable[h.PartADescriptorOff:h.PartADescriptorOff+h.PartADescriptorSize], nil)
		if err != nil {
			fmt.Printf("partition A descriptor: %v\n", err)
		} else {
			printDescriptor("A", descA)
		}
	}
	if h.PartCount == 2 && uint64(len(partTable)) >= h.PartBDescriptorOff+h.PartBDescriptorSize {
		descB, err := container.ParseDIFI(partTable[h.PartBDescriptorOff:h.PartBDescriptorOff+h.PartBDescriptorSize], nil)
		if err != nil {
			fmt.Printf("partition B descriptor: %v\n", err)
		} else {
			printDescriptor("B", descB)
		}
	}
	return nil
}

func inspectDIFF(data []byte) error {
	h, err := container.InspectDIFFHeader(data)
	if err != nil {
		return fmt.Errorf("inspect-container: %w", err)
	}
	fmt.Printf("uniqueId=0x%016X activeTable=%d tableHash=%x\n", h.UniqueID, h.ActiveTable, h.TableHash)
	fmt.Printf("partitionTable: primary=0x%X secondary=0x%X size=0x%X\n", h.PriPartTableOff, h.SecPartTableOff, h.PartTableSize)
	fmt.Printf("partition: data=0x%X/0x%X\n", h.PartOff, h.PartSize)

	partTableOff := h.PriPartTableOff
	if h.ActiveTable == 1 {
		partTableOff = h.SecPartTableOff
	}
	if uint64(len(data)) < partTableOff+h.PartTableSize {
		fmt.Println("partition table out of bounds, stopping")
		return nil
	}
	partTable := data[partTableOff : partTableOff+h.PartTableSize]
	desc, err := container.ParseDIFI(partTable, nil)
	if err != nil {
		fmt.Printf("partition descriptor: %v\n", err)
		return nil
	}
	printDescriptor("", desc)
	return nil
}

func printDescriptor(label string, desc container.PartitionDescriptor) {
	fmt.Printf("descriptor%s: isData=%v dpfsL1Selector=%d externalIVFCL4=%v\n", label, desc.IsData, desc.DPFSL1Selector, desc.ExternalIVFCL4)
	fmt.Printf("  ivfc: masterHashSize=%d l1=%+v l2=%+v l3=%+v l4=%+v\n", desc.IVFC.MasterHashSize, desc.IVFC.L1, desc.IVFC.L2, desc.IVFC.L3, desc.IVFC.L4)
	fmt.Printf("  dpfs: l1=%+v l2=%+v l3=%+v\n", desc.DPFS.L1, desc.DPFS.L2, desc.DPFS.L3)
	fmt.Printf("  masterHash=%x\n", desc.Hash)
}
