/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 10:04:12 2019 mstenber
 * Last modified: Tue Feb 19 10:22:41 2019 mstenber
 * Edit time:     21 min
 *
 */

package dispatcher

import (
	"fmt"

	"github.com/fingon/go-spd/scsi"
)

// Kind is the type of request; debug log mask bit of a kind is
// 1<<Kind.
type Kind uint8

const (
	KindReserved Kind = iota
	KindRead
	KindWrite
	KindFlush
	KindUnmap
	KindCount
)

var kindNames = []string{"Reserved", "Read", "Write", "Flush", "Unmap"}

func (self Kind) String() string {
	if self < KindCount {
		return kindNames[self]
	}
	return fmt.Sprintf("Kind%d", uint8(self))
}

// DebugLogAll enables debug logging of every request kind.
const DebugLogAll = ^uint32(0)

// Request is single I/O request towards a storage unit. Hint
// identifies the request within its queue.
type Request struct {
	Hint            uint64
	Kind            Kind
	BlockAddress    uint64
	BlockCount      uint32
	ForceUnitAccess bool
	Descriptors     []scsi.UnmapDescriptor
}

func (self *Request) String() string {
	switch self.Kind {
	case KindRead, KindWrite:
		return fmt.Sprintf("%v Hint=%#x, BlockAddress=%d, BlockCount=%d, ForceUnitAccess=%t",
			self.Kind, self.Hint, self.BlockAddress, self.BlockCount, self.ForceUnitAccess)
	case KindFlush:
		return fmt.Sprintf("%v Hint=%#x, BlockAddress=%d, BlockCount=%d",
			self.Kind, self.Hint, self.BlockAddress, self.BlockCount)
	case KindUnmap:
		return fmt.Sprintf("%v Hint=%#x, Count=%d", self.Kind, self.Hint, len(self.Descriptors))
	}
	return fmt.Sprintf("%v Hint=%#x", self.Kind, self.Hint)
}
