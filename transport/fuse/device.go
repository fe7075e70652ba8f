/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Feb 21 09:12:40 2019 mstenber
 * Last modified: Thu Feb 21 12:20:11 2019 mstenber
 * Edit time:     84 min
 *
 */

package fuse

import (
	"context"
	"fmt"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
)

// maxUnmapBlockCount keeps descriptor block counts well within uint32.
const maxUnmapBlockCount = 1 << 30

// StatusError is non-good status of a request.
type StatusError struct {
	Kind   dispatcher.Kind
	Status scsi.Status
}

func (self *StatusError) Error() string {
	return fmt.Sprintf("%v failed: %v", self.Kind, self.Status)
}

// device turns byte ranges into block requests towards a queue.
type device struct {
	ctx    context.Context
	queue  *dispatcher.Queue
	params unit.Params

	// rmwLock serializes writes; partial blocks are read, modified
	// and written back under it.
	rmwLock util.MutexLocked
}

func newDevice(ctx context.Context, queue *dispatcher.Queue) *device {
	return &device{ctx: ctx, queue: queue, params: queue.Params()}
}

func (self *device) Size() uint64 {
	return self.params.Size()
}

func (self *device) submit(req dispatcher.Request, data []byte) error {
	status, err := self.queue.Submit(self.ctx, req, data)
	if err != nil {
		mlog.Printf2("transport/fuse/device", " %v: %v", &req, err)
		return err
	}
	if !status.Good() {
		mlog.Printf2("transport/fuse/device", " %v: %v", &req, status)
		return &StatusError{Kind: req.Kind, Status: status}
	}
	return nil
}

func (self *device) readBlocks(data []byte, address uint64, count uint32) error {
	return self.submit(dispatcher.Request{Kind: dispatcher.KindRead,
		BlockAddress: address, BlockCount: count}, data)
}

func (self *device) writeBlocks(data []byte, address uint64, count uint32) error {
	return self.submit(dispatcher.Request{Kind: dispatcher.KindWrite,
		BlockAddress: address, BlockCount: count}, data)
}

// chunks calls cb for consecutive block ranges covering [off, end),
// each at most MaxTransferLength blocks long. skip is the offset of
// off within the first block of the range, and n the number of bytes
// of [off, end) within it.
func (self *device) chunks(off, end uint64, cb func(address uint64, count uint32, skip, n int) error) error {
	bl := uint64(self.params.BlockLength)
	mtl := uint64(self.params.MaxTransferLength)
	for off < end {
		address := off / bl
		last := (end - 1) / bl
		count := last - address + 1
		if count > mtl {
			count = mtl
		}
		skip := off - address*bl
		n := (address+count)*bl - off
		if off+n > end {
			n = end - off
		}
		if err := cb(address, uint32(count), int(skip), int(n)); err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (self *device) clamp(off int64, length uint64) (uint64, uint64) {
	size := self.Size()
	start := uint64(off)
	if off < 0 || start >= size {
		return size, size
	}
	end := start + length
	if end > size || end < start {
		end = size
	}
	return start, end
}

// ReadAt reads from byte offset off. Reads past the end are short.
func (self *device) ReadAt(dest []byte, off int64) (int, error) {
	start, end := self.clamp(off, uint64(len(dest)))
	bl := int(self.params.BlockLength)
	done := 0
	err := self.chunks(start, end, func(address uint64, count uint32, skip, n int) error {
		buf := make([]byte, int(count)*bl)
		if err := self.readBlocks(buf, address, count); err != nil {
			return err
		}
		copy(dest[done:], buf[skip:skip+n])
		done += n
		return nil
	})
	return done, err
}

// WriteAt writes data at byte offset off. Writes past the end are
// short.
func (self *device) WriteAt(data []byte, off int64) (int, error) {
	start, end := self.clamp(off, uint64(len(data)))
	bl := int(self.params.BlockLength)
	defer self.rmwLock.Locked()()
	done := 0
	err := self.chunks(start, end, func(address uint64, count uint32, skip, n int) error {
		buf := make([]byte, int(count)*bl)
		if skip != 0 {
			if err := self.readBlocks(buf[:bl], address, 1); err != nil {
				return err
			}
		}
		if tail := skip + n; tail%bl != 0 {
			i := tail / bl
			if i != 0 || skip == 0 {
				if err := self.readBlocks(buf[i*bl:(i+1)*bl], address+uint64(i), 1); err != nil {
					return err
				}
			}
		}
		copy(buf[skip:], data[done:done+n])
		if err := self.writeBlocks(buf, address, count); err != nil {
			return err
		}
		done += n
		return nil
	})
	return done, err
}

func (self *device) Flush() error {
	return self.submit(dispatcher.Request{Kind: dispatcher.KindFlush}, nil)
}

// Punch deallocates [off, off+size). Whole blocks are unmapped, and
// partial blocks at the edges are zeroed.
func (self *device) Punch(off, size uint64) error {
	start, end := self.clamp(int64(off), size)
	bl := uint64(self.params.BlockLength)
	first := (start + bl - 1) / bl
	last := end / bl
	if first >= last {
		_, err := self.WriteAt(make([]byte, end-start), int64(start))
		return err
	}
	if head := first*bl - start; head > 0 {
		if _, err := self.WriteAt(make([]byte, head), int64(start)); err != nil {
			return err
		}
	}
	if tail := end - last*bl; tail > 0 {
		if _, err := self.WriteAt(make([]byte, tail), int64(last*bl)); err != nil {
			return err
		}
	}
	var descriptors []scsi.UnmapDescriptor
	for address := first; address < last; {
		count := last - address
		if count > maxUnmapBlockCount {
			count = maxUnmapBlockCount
		}
		descriptors = append(descriptors, scsi.UnmapDescriptor{BlockAddress: address, BlockCount: uint32(count)})
		address += count
	}
	return self.submit(dispatcher.Request{Kind: dispatcher.KindUnmap, Descriptors: descriptors}, nil)
}
