/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 11:48:30 2019 mstenber
 * Last modified: Sun Feb 17 13:41:55 2019 mstenber
 * Edit time:     47 min
 *
 */

package scsi

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	MBRSize          = 512
	MaxPartitions    = 4
	partitionOffset  = 446
	partitionLength  = 16
	sectorsPerTrack  = 63
	headsPerCylinder = 255
	maxCylinder      = 1023
)

// ErrInvalidPartitionTable is returned by DefinePartitionTable for
// too many partitions, too small buffer or unrepresentable ranges.
var ErrInvalidPartitionTable = errors.New("invalid partition table")

// Partition is single entry of the table defined by
// DefinePartitionTable.
type Partition struct {
	Type         uint8
	Active       bool
	_            [6]uint8
	BlockAddress uint64
	BlockCount   uint64
}

// mbrBoot does not boot anything: INT 18h, HLT, JMP back to HLT.
var mbrBoot = []byte{0xCD, 0x18, 0xF4, 0xEB, 0xFD}

func lbaToCHS(lba uint32, chs []byte) {
	c := lba / (headsPerCylinder * sectorsPerTrack)
	h := (lba / sectorsPerTrack) % headsPerCylinder
	s := lba%sectorsPerTrack + 1
	if c > maxCylinder {
		c, h, s = maxCylinder, headsPerCylinder-1, sectorsPerTrack
	}
	chs[0] = byte(h)
	chs[1] = byte(s&0x3f) | byte((c>>2)&0xc0)
	chs[2] = byte(c)
}

// CheckPartitionTable validates the arguments of
// DefinePartitionTable without touching the buffer.
func CheckPartitionTable(partitions []Partition, bufferLength int) error {
	if len(partitions) > MaxPartitions || bufferLength < MBRSize {
		return ErrInvalidPartitionTable
	}
	for _, p := range partitions {
		end := p.BlockAddress + p.BlockCount
		if end <= p.BlockAddress || end > 0xffffffff {
			return ErrInvalidPartitionTable
		}
	}
	return nil
}

// DefinePartitionTable writes a master boot record describing
// partitions to the first MBRSize bytes of buffer. The record is not
// bootable.
func DefinePartitionTable(partitions []Partition, buffer []byte) error {
	if err := CheckPartitionTable(partitions, len(buffer)); err != nil {
		return err
	}
	mbr := buffer[:MBRSize]
	for i := range mbr {
		mbr[i] = 0
	}
	copy(mbr, mbrBoot)
	mbr[510] = 0x55
	mbr[511] = 0xAA
	for i, p := range partitions {
		e := mbr[partitionOffset+i*partitionLength:][:partitionLength]
		if p.Active {
			e[0] = 0x80
		}
		lbaToCHS(uint32(p.BlockAddress), e[1:4])
		e[4] = p.Type
		lbaToCHS(uint32(p.BlockAddress+p.BlockCount), e[5:8])
		binary.LittleEndian.PutUint32(e[8:], uint32(p.BlockAddress))
		binary.LittleEndian.PutUint32(e[12:], uint32(p.BlockCount))
	}
	return nil
}
