package savefs

import (
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

// HashTable is an array of bucket heads; a zero entry means the bucket is
// empty. Buckets chain through an entry's nextCollision field.
type HashTable []uint32

// ParseHashTable decodes a hash table of size buckets starting at offset
// within image.
func ParseHashTable(image []byte, offset uint64, size uint32) (HashTable, error) {
	end := offset + uint64(size)*4
	if uint64(len(image)) < end {
		return nil, fmt.Errorf("savefs: hash table out of bounds (off=%d size=%d len=%d)", offset, size, len(image))
	}
	table := make(HashTable, size)
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(image[offset+uint64(i)*4:])
	}
	return table, nil
}

// VerifyHashTable walks every bucket's collision chain and warns about any
// record whose hash does not resolve back to the bucket it was found in
//. It never aborts; verification failures are corruption
// reports, not fatal errors.
func VerifyHashTable[E Entry](table HashTable, entries []E, d *diag.Collector) {
	for bucket, head := range table {
		current := head
		for current != 0 {
			if int(current) >= len(entries) {
				if d != nil {
					d.Warnf("hash table bucket %d: index %d out of range", bucket, current)
				}
				return
			}
			entry := entries[current]
			if int(entry.Hash()%uint32(len(table))) != bucket {
				if d != nil {
					d.Warnf("wrong bucket for entry %d (expected %d, got %d)", current, entry.Hash()%uint32(len(table)), bucket)
				}
			}
			current = entry.NextCollision()
		}
	}
}
