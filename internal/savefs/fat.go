package savefs

import (
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

const fatStartFlag = 0x80000000

// FATEntry is one 8-byte allocation record: u is the back-link (plus the
// start flag in its top bit), v is the forward-link (plus the expansion-run
// flag). After masking, both stay 1-based FAT indices with 0 meaning "no
// link"; Walk shifts to 0-based block numbers only at its callback boundary
//.
type FATEntry struct {
	U       uint32
	V       uint32
	UFlag   bool
	VFlag   bool
	visited bool
}

func parseFATEntry(raw []byte) FATEntry {
	u := binary.LittleEndian.Uint32(raw[0x00:])
	v := binary.LittleEndian.Uint32(raw[0x04:])
	e := FATEntry{U: u, V: v}
	if u >= fatStartFlag {
		e.U = u - fatStartFlag
		e.UFlag = true
	}
	if v >= fatStartFlag {
		e.V = v - fatStartFlag
		e.VFlag = true
	}
	return e
}

const fatEntrySize = 8

// FAT is the full allocation table, indexed 0..=fatSize where entry 0 is
// the free-chain head.
type FAT struct {
	entries []FATEntry
	diag    *diag.Collector
}

// ParseFAT decodes fsHeader.FATSize+1 entries starting at fsHeader.FATOff
// inside image.
func ParseFAT(image []byte, h FilesystemHeader, d *diag.Collector) (*FAT, error) {
	count := int(h.FATSize) + 1
	end := h.FATOff + uint64(count)*fatEntrySize
	if uint64(len(image)) < end {
		return nil, fmt.Errorf("savefs: FAT out of bounds (off=%d count=%d len=%d)", h.FATOff, count, len(image))
	}
	fat := &FAT{entries: make([]FATEntry, count), diag: d}
	for i := range fat.entries {
		off := h.FATOff + uint64(i)*fatEntrySize
		fat.entries[i] = parseFATEntry(image[off : off+fatEntrySize])
	}
	return fat, nil
}

func (f *FAT) warnf(format string, args ...any) {
	if f.diag != nil {
		f.diag.Warnf(format, args...)
	}
}

// Walk follows one allocation chain starting at the 0-based block
// startBlock0, invoking blockCallback with each 0-based block index in
// traversal order. It validates start flags, back-links, and
// expansion-run structure, warning on any mismatch rather than aborting.
func (f *FAT) Walk(startBlock0 int, blockCallback func(block0 int)) {
	start := startBlock0 + 1 // shift to 1-based
	current := start
	previous := 0

	for current != 0 {
		if current >= len(f.entries) {
			f.warnf("FAT walk index %d out of range", current)
			return
		}
		entry := f.entries[current]

		if current == start {
			if !entry.UFlag {
				f.warnf("first node not marked start @ %d", current)
			}
		} else if entry.UFlag {
			f.warnf("other node marked start @ %d", current)
		}
		if int(entry.U) != previous {
			f.warnf("previous node mismatch @ %d", current)
		}

		nodeEnd := current
		if entry.VFlag {
			if current+1 >= len(f.entries) {
				f.warnf("expansion node first block %d out of range", current+1)
				return
			}
			expFirst := f.entries[current+1]
			nodeEnd = int(expFirst.V)
			if int(expFirst.U) != current {
				f.warnf("expansion node first block mismatch @ %d", current+1)
			}
			if !expFirst.UFlag {
				f.warnf("expansion node first block not marked @ %d", current+1)
			}
			if expFirst.VFlag {
				f.warnf("expansion node first block with wrong mark @ %d", current+1)
			}
			if nodeEnd >= len(f.entries) {
				f.warnf("expansion node last block %d out of range", nodeEnd)
				return
			}
			expLast := f.entries[nodeEnd]
			if int(expLast.U) != current || expLast.V != uint32(nodeEnd) {
				f.warnf("expansion node last block mismatch @ %d", nodeEnd)
			}
			if !expLast.UFlag {
				f.warnf("expansion node last block not marked @ %d", nodeEnd)
			}
			if expLast.VFlag {
				f.warnf("expansion node last block with wrong mark @ %d", nodeEnd)
			}
		}

		for i := current; i <= nodeEnd; i++ {
			if f.entries[i].visited {
				f.warnf("already visited @ %d", i)
			}
			blockCallback(i - 1) // shift back to 0-based
			f.entries[i].visited = true
		}

		previous = current
		current = int(f.entries[current].V)
	}
}

// VisitFreeBlock marks the free-chain head visited and walks the free
// chain, discarding every block it touches.
func (f *FAT) VisitFreeBlock() {
	f.entries[0].visited = true
	if f.entries[0].U != 0 {
		f.warnf("free leading block has u = %d", f.entries[0].U)
	}
	if f.entries[0].UFlag || f.entries[0].VFlag {
		f.warnf("free leading block has flag set")
	}
	start := int(f.entries[0].V)
	f.Walk(start-1, func(int) {})
}

// AllVisited warns about every entry that was never reached by Walk or
// VisitFreeBlock: a leaked block.
func (f *FAT) AllVisited() {
	for i, e := range f.entries {
		if !e.visited {
			f.warnf("block %d not visited", i)
		}
	}
}
