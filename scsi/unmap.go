/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 11:40:02 2019 mstenber
 * Last modified: Sat Feb 16 11:47:13 2019 mstenber
 * Edit time:     4 min
 *
 */

package scsi

// MaxUnmapDescriptors is the most descriptors delivered in one Unmap
// request.
const MaxUnmapDescriptors = 16

// UnmapDescriptor describes single range of blocks to deallocate.
type UnmapDescriptor struct {
	BlockAddress uint64
	BlockCount   uint32
	Reserved     uint32
}

// End returns the first block address after the range.
func (self UnmapDescriptor) End() uint64 {
	return self.BlockAddress + uint64(self.BlockCount)
}
