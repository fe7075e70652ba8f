/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 17:20:31 2019 mstenber
 * Last modified: Wed Feb 20 12:14:06 2019 mstenber
 * Edit time:     64 min
 *
 */

// rawdisk is storage unit backed by a plain (preferably sparse)
// file of exactly BlockCount*BlockLength bytes.
package rawdisk

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/host"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

var ErrInvalidSize = errors.New("file size does not match the geometry")

// PartitionType of the partition created on new disks.
const PartitionType = 7

type RawDisk struct {
	unit.Base
	file        *os.File
	blockCount  uint64
	blockLength uint32

	// punchHole is cleared once the file system refuses it
	punchHole int32

	closeOnce sync.Once
}

var _ unit.StorageUnit = &RawDisk{}

// New opens (or creates) the file. Existing file must have the size
// of the geometry; new one gets that size and a partition table
// with one partition covering the disk after the first 4096 bytes.
func New(path string, blockCount uint64, blockLength uint32) (*RawDisk, error) {
	if blockCount == 0 || blockLength == 0 || util.MulOverflows(blockCount, uint64(blockLength)) {
		return nil, errors.Wrapf(ErrInvalidSize, "%d x %d", blockCount, blockLength)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open raw disk file")
	}
	self := &RawDisk{file: f, blockCount: blockCount, blockLength: blockLength, punchHole: 1}
	if err = self.prepare(); err != nil {
		f.Close()
		return nil, err
	}
	return self, nil
}

func (self *RawDisk) prepare() error {
	fi, err := self.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	want := self.blockCount * uint64(self.blockLength)
	size := uint64(fi.Size())
	if size != 0 {
		if size != want {
			return errors.Wrapf(ErrInvalidSize, "%d != %d", size, want)
		}
		return nil
	}
	mlog.Printf2("backend/rawdisk/rawdisk", "new raw disk of %d bytes", want)
	if err = self.file.Truncate(int64(want)); err != nil {
		return errors.Wrap(err, "truncate")
	}
	var p scsi.Partition
	p.Type = PartitionType
	p.BlockAddress = 1
	if self.blockLength <= 4096 {
		p.BlockAddress = uint64(4096 / self.blockLength)
	}
	if p.BlockAddress >= self.blockCount {
		// Too small for a partition table
		return nil
	}
	p.BlockCount = self.blockCount - p.BlockAddress
	buffer := make([]byte, 512)
	if host.DefinePartitionTable([]scsi.Partition{p}, buffer) == nil {
		if _, err = self.file.WriteAt(buffer, 0); err != nil {
			return errors.Wrap(err, "partition table")
		}
		return self.file.Sync()
	}
	return nil
}

func (self *RawDisk) Init(h unit.Host) error {
	p := h.Params()
	p.BlockCount = self.blockCount
	p.BlockLength = self.blockLength
	p.MaxTransferLength = uint32(util.IMax(1, backend.MaxTransferBytes/int(self.blockLength)))
	return nil
}

func (self *RawDisk) Stopped(h unit.Host) error {
	mlog.Printf2("backend/rawdisk/rawdisk", "rd.Stopped")
	return self.Close()
}

// Close closes the file; it is safe to call more than once.
func (self *RawDisk) Close() (err error) {
	self.closeOnce.Do(func() {
		err = self.file.Close()
	})
	return
}

func (self *RawDisk) offset(blockAddress uint64) int64 {
	return int64(blockAddress * uint64(self.blockLength))
}

func (self *RawDisk) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	if flush {
		if err := self.Flush(blockAddress, blockCount, status); err != nil {
			return err
		}
	}
	n := int(blockCount) * int(self.blockLength)
	_, err := self.file.ReadAt(buffer[:n], self.offset(blockAddress))
	return err
}

func (self *RawDisk) Write(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	n := int(blockCount) * int(self.blockLength)
	if _, err := self.file.WriteAt(buffer[:n], self.offset(blockAddress)); err != nil {
		return err
	}
	if flush {
		return self.Flush(blockAddress, blockCount, status)
	}
	return nil
}

func (self *RawDisk) Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error {
	return self.file.Sync()
}

func (self *RawDisk) Unmap(descriptors []scsi.UnmapDescriptor, status *scsi.Status) error {
	for _, d := range descriptors {
		off := self.offset(d.BlockAddress)
		length := int64(d.BlockCount) * int64(self.blockLength)
		if atomic.LoadInt32(&self.punchHole) != 0 {
			err := punchHole(self.file, off, length)
			if err == nil {
				continue
			}
			mlog.Printf2("backend/rawdisk/rawdisk", "punchHole failed, zero-filling from now on: %v", err)
			atomic.StoreInt32(&self.punchHole, 0)
		}
		if err := self.zero(off, length); err != nil {
			return err
		}
	}
	return nil
}

func (self *RawDisk) zero(off, length int64) error {
	buffer := make([]byte, util.IMin(backend.MaxTransferBytes, int(length)))
	for length > 0 {
		b := buffer[:util.IMin(len(buffer), int(length))]
		if _, err := self.file.WriteAt(b, off); err != nil {
			return err
		}
		off += int64(len(b))
		length -= int64(len(b))
	}
	return nil
}
