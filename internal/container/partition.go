package container

import (
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

// UnwrapPartition runs DPFS then IVFC over one partition's raw bytes
// according to its DIFI descriptor, producing the inner image. It returns
// whether IVFC level 4 was sourced externally (the DISA DATA-partition /
// ExtData-subfile case) so callers can sanity-check it against what they
// expected.
func UnwrapPartition(p threedscrypto.Primitives, desc PartitionDescriptor, raw []byte, d *diag.Collector) (image []byte, externalIVFCL4 bool, err error) {
	active, err := UnwrapDPFS(raw, desc.DPFS, desc.DPFSL1Selector)
	if err != nil {
		return nil, false, fmt.Errorf("container: DPFS unwrap: %w", err)
	}

	var l4ext []byte
	if desc.IsData {
		end := desc.IVFCL4OffExt + desc.IVFC.L4.Size
		if uint64(len(raw)) < end {
			return nil, false, fmt.Errorf("container: external IVFC level 4 out of bounds")
		}
		l4ext = raw[desc.IVFCL4OffExt:end]
	}

	image, err = UnwrapIVFC(p, active, desc.IVFC, desc.Hash, l4ext, d)
	if err != nil {
		return nil, false, fmt.Errorf("container: IVFC unwrap: %w", err)
	}
	return image, desc.IsData, nil
}
