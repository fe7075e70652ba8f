/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan 17 14:19:35 2018 mstenber
 * Last modified: Thu Feb 21 17:22:09 2019 mstenber
 * Edit time:     131 min
 *
 */

// stgtest drives storage unit over pipe the way the kernel would,
// and verifies that what was written (or unmapped) reads back.
package stgtest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/transport/pipe"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
)

// Random as BlockAddress or BlockCount picks a new random value for
// every round of operations.
const Random = -1

type Tester struct {
	Name    string
	OpCount int

	// OpSet is one or more of R(ead), W(rite), F(lush) and
	// U(nmap); default is WR.
	OpSet        string
	BlockAddress int64
	BlockCount   int64
	Seed         int64

	// Threads splits the unit to that many ranges, each exercised
	// by its own goroutine.
	Threads int
}

// Failure describes the first failed operation.
type Failure struct {
	Kind         dispatcher.Kind
	BlockAddress uint64
	BlockCount   uint32
	Description  string
	Status       scsi.Status
}

func (self *Failure) Error() string {
	s := fmt.Sprintf("%v(Address=%#x, Count=%d): %s", self.Kind, self.BlockAddress, self.BlockCount, self.Description)
	if !self.Status.Good() {
		s = fmt.Sprintf("%s: %v", s, self.Status)
	}
	return s
}

func hashMix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func fill(data []byte, blockLength uint32, blockAddress uint64, blockCount uint32) {
	for i := uint32(0); i < blockCount; i++ {
		block := data[i*blockLength : (i+1)*blockLength]
		v := hashMix64(blockAddress + uint64(i) + 1)
		for j := 0; j+8 <= len(block); j += 8 {
			binary.LittleEndian.PutUint64(block[j:], v)
		}
	}
}

func verifyWritten(data []byte, blockLength uint32, blockAddress uint64, blockCount uint32) bool {
	for i := uint32(0); i < blockCount; i++ {
		block := data[i*blockLength : (i+1)*blockLength]
		v := hashMix64(blockAddress + uint64(i) + 1)
		for j := 0; j+8 <= len(block); j += 8 {
			if binary.LittleEndian.Uint64(block[j:]) != v {
				return false
			}
		}
	}
	return true
}

func (self *Tester) opKinds() []dispatcher.Kind {
	var kinds []dispatcher.Kind
	for _, c := range self.OpSet {
		switch c {
		case 'R', 'r':
			kinds = append(kinds, dispatcher.KindRead)
		case 'W', 'w':
			kinds = append(kinds, dispatcher.KindWrite)
		case 'F', 'f':
			kinds = append(kinds, dispatcher.KindFlush)
		case 'U', 'u':
			kinds = append(kinds, dispatcher.KindUnmap)
		}
	}
	if len(kinds) == 0 {
		kinds = []dispatcher.Kind{dispatcher.KindWrite, dispatcher.KindRead}
	}
	return kinds
}

// Run performs the operations, and returns how many were done.
func (self *Tester) Run(ctx context.Context) (int, error) {
	mlog.Printf2("stgtest/stgtest", "%v.Run", self)
	c, err := pipe.Dial(self.Name)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	g, err := c.Geometry(ctx)
	if err != nil {
		return 0, err
	}
	threads := self.Threads
	if threads < 1 {
		threads = 1
	}
	if uint64(threads) > g.BlockCount {
		threads = int(g.BlockCount)
	}
	var wg util.SimpleWaitGroup
	ops := make([]int, threads)
	errs := make([]error, threads)
	wg.GoN(threads, func(i int) {
		first := g.BlockCount * uint64(i) / uint64(threads)
		last := g.BlockCount * uint64(i+1) / uint64(threads)
		opCount := self.OpCount / threads
		if i < self.OpCount%threads {
			opCount++
		}
		r := &runner{Tester: self,
			client:   c,
			geometry: g,
			first:    first,
			count:    last - first,
			rng:      rand.New(rand.NewSource(self.Seed + int64(i)))}
		ops[i], errs[i] = r.run(ctx, opCount)
	})
	wg.Wait()
	total := 0
	for i, n := range ops {
		total += n
		if err == nil && errs[i] != nil {
			err = errs[i]
		}
	}
	return total, err
}

// runner exercises blocks [first, first+count).
type runner struct {
	*Tester
	client   *pipe.Client
	geometry *pipe.Geometry
	first    uint64
	count    uint64
	rng      *rand.Rand
}

func (self *runner) run(ctx context.Context, opCount int) (int, error) {
	kinds := self.opKinds()
	bl := self.geometry.BlockLength
	maxCount := self.geometry.MaxTransferLength
	if maxCount == 0 {
		maxCount = 1
	}
	data := make([]byte, int(maxCount)*int(bl))
	fua := self.geometry.Flags&unit.FlagCacheSupported == 0
	var address uint64
	var count uint32
	var tested dispatcher.Kind
	for i, j := 0, 0; i < opCount; i++ {
		if j == 0 {
			if self.BlockAddress == Random {
				address = uint64(self.rng.Int63())
			} else if i != 0 {
				address += uint64(count)
			} else {
				address = uint64(self.BlockAddress)
			}
			address %= self.count
			if self.BlockCount == Random {
				count = uint32(self.rng.Int63n(int64(maxCount)))
			} else {
				count = uint32(util.IMin(int(self.BlockCount), int(maxCount)))
			}
			if count == 0 {
				count = 1
			}
			if address+uint64(count) > self.count {
				count = uint32(self.count - address)
			}
			tested = dispatcher.KindReserved
		}
		kind := kinds[i%len(kinds)]
		a := self.first + address
		fail := func(description string, status scsi.Status) (int, error) {
			f := &Failure{Kind: kind, BlockAddress: a, BlockCount: count,
				Description: description, Status: status}
			mlog.Printf2("stgtest/stgtest", " %v", f)
			return i, f
		}
		var status scsi.Status
		var err error
		buf := data[:int(count)*int(bl)]
		switch kind {
		case dispatcher.KindRead:
			status, err = self.client.Read(ctx, buf, a, count, fua)
		case dispatcher.KindWrite:
			fill(buf, bl, a, count)
			status, err = self.client.Write(ctx, buf, a, count, fua)
			tested = dispatcher.KindWrite
		case dispatcher.KindFlush:
			status, err = self.client.Flush(ctx, a, count)
		case dispatcher.KindUnmap:
			status, err = self.client.Unmap(ctx, []scsi.UnmapDescriptor{{BlockAddress: a, BlockCount: count}})
			tested = dispatcher.KindUnmap
		}
		if err != nil {
			return i, err
		}
		if !status.Good() {
			return fail("bad status", status)
		}
		if kind == dispatcher.KindRead {
			switch tested {
			case dispatcher.KindWrite:
				if !verifyWritten(buf, bl, a, count) {
					return fail("bad buffer after Write", status)
				}
			case dispatcher.KindUnmap:
				if !util.IsZero(buf) {
					return fail("bad buffer after Unmap", status)
				}
			}
		}
		j = (j + 1) % len(kinds)
	}
	return opCount, nil
}
