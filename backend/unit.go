/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 16:15:44 2019 mstenber
 * Last modified: Wed Feb 20 11:01:37 2019 mstenber
 * Edit time:     52 min
 *
 */

package backend

import (
	"sync"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

// MaxTransferBytes is the largest transfer the units here ask for.
const MaxTransferBytes = 64 * 1024

// BlockStoreUnit is storage unit keeping its blocks in a BlockStore.
// All-zero blocks are not stored, so unwritten and unmapped space
// costs nothing.
type BlockStoreUnit struct {
	unit.Base
	Store       BlockStore
	BlockCount  uint64
	BlockLength uint32

	// closeOnStop closes Store when the unit stops
	closeOnStop bool
	closeOnce   sync.Once
}

var _ unit.StorageUnit = &BlockStoreUnit{}

// NewBlockStoreUnit returns unit of given geometry on top of store.
// The store is closed when the unit is stopped.
func NewBlockStoreUnit(store BlockStore, blockCount uint64, blockLength uint32) *BlockStoreUnit {
	return &BlockStoreUnit{Store: store,
		BlockCount:  blockCount,
		BlockLength: blockLength,
		closeOnStop: true}
}

func (self *BlockStoreUnit) Init(host unit.Host) error {
	p := host.Params()
	p.BlockCount = self.BlockCount
	p.BlockLength = self.BlockLength
	p.MaxTransferLength = uint32(util.IMax(1, MaxTransferBytes/int(self.BlockLength)))
	mlog.Printf2("backend/unit", "bsu.Init %d x %d", p.BlockCount, p.BlockLength)
	return nil
}

func (self *BlockStoreUnit) Stopped(host unit.Host) error {
	mlog.Printf2("backend/unit", "bsu.Stopped")
	err := self.Store.Flush()
	if err2 := self.Close(); err == nil {
		err = err2
	}
	return err
}

// Close closes the store if the unit owns it. Only the first call
// does anything.
func (self *BlockStoreUnit) Close() (err error) {
	if !self.closeOnStop {
		return nil
	}
	self.closeOnce.Do(func() {
		mlog.Printf2("backend/unit", "bsu.Close")
		err = self.Store.Close()
	})
	return
}

func (self *BlockStoreUnit) block(buffer []byte, i uint32) []byte {
	bl := int(self.BlockLength)
	return buffer[int(i)*bl : int(i+1)*bl]
}

func (self *BlockStoreUnit) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	mlog.Printf2("backend/unit", "bsu.Read %d+%d", blockAddress, blockCount)
	for i := uint32(0); i < blockCount; i++ {
		dst := self.block(buffer, i)
		data, err := self.Store.GetBlock(blockAddress + uint64(i))
		if err != nil {
			return err
		}
		if data == nil {
			for j := range dst {
				dst[j] = 0
			}
			continue
		}
		if len(data) != len(dst) {
			return errors.Errorf("block %d has length %d", blockAddress+uint64(i), len(data))
		}
		copy(dst, data)
	}
	return nil
}

func (self *BlockStoreUnit) Write(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	mlog.Printf2("backend/unit", "bsu.Write %d+%d", blockAddress, blockCount)
	for i := uint32(0); i < blockCount; i++ {
		src := self.block(buffer, i)
		var err error
		if util.IsZero(src) {
			err = self.Store.DeleteBlock(blockAddress + uint64(i))
		} else {
			err = self.Store.SetBlock(blockAddress+uint64(i), src)
		}
		if err != nil {
			return err
		}
	}
	if flush {
		return self.Store.Flush()
	}
	return nil
}

func (self *BlockStoreUnit) Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error {
	mlog.Printf2("backend/unit", "bsu.Flush")
	return self.Store.Flush()
}

func (self *BlockStoreUnit) Unmap(descriptors []scsi.UnmapDescriptor, status *scsi.Status) error {
	for _, d := range descriptors {
		mlog.Printf2("backend/unit", "bsu.Unmap %d+%d", d.BlockAddress, d.BlockCount)
		for a := d.BlockAddress; a < d.End(); a++ {
			if err := self.Store.DeleteBlock(a); err != nil {
				return err
			}
		}
	}
	return nil
}
