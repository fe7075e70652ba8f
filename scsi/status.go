/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 11:01:44 2019 mstenber
 * Last modified: Sun Feb 17 13:30:19 2019 mstenber
 * Edit time:     52 min
 *
 */

// scsi contains the device status and descriptor value types that
// cross the boundary between the dispatcher and storage units. The
// struct layouts are part of the binary contract and must not be
// reordered.
package scsi

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// StatusFlagInformationValid is set in Status.Flags when
	// Status.Information carries a value.
	StatusFlagInformationValid = 0x10

	// SenseDataLength is the size of fixed format sense data.
	SenseDataLength = 18
)

// Status is the per-operation outcome of a storage unit
// operation. Zero value is success.
type Status struct {
	ScsiStatus  uint8
	SenseKey    uint8
	ASC         uint8
	ASCQ        uint8
	_           [4]uint8
	Information uint64
	ReservedCSI uint64
	ReservedSKS uint32
	Flags       uint32
}

// SetSense resets the status and records check condition with the
// given sense key and additional sense code.
func (self *Status) SetSense(senseKey, asc uint8) {
	*self = Status{ScsiStatus: StatusCheckCondition,
		SenseKey: senseKey,
		ASC:      asc}
}

// SetSenseInformation is SetSense which also records information
// (typically the failing block address).
func (self *Status) SetSenseInformation(senseKey, asc uint8, information uint64) {
	self.SetSense(senseKey, asc)
	self.Information = information
	self.Flags |= StatusFlagInformationValid
}

func (self *Status) Good() bool {
	return self.ScsiStatus == StatusGood
}

func (self *Status) InformationValid() bool {
	return self.Flags&StatusFlagInformationValid != 0
}

// SenseData encodes the status as fixed format sense data.
func (self *Status) SenseData() []byte {
	b := make([]byte, SenseDataLength)
	b[0] = 0x70
	// Fixed format has room for 32 bits of information only
	if self.InformationValid() && self.Information <= math.MaxUint32 {
		b[0] |= 0x80
		binary.BigEndian.PutUint32(b[3:], uint32(self.Information))
	}
	b[2] = self.SenseKey & 0x0f
	b[7] = SenseDataLength - 8
	b[12] = self.ASC
	b[13] = self.ASCQ
	return b
}

func (self Status) String() string {
	if self.ScsiStatus == StatusGood {
		return "GOOD"
	}
	s := fmt.Sprintf("ScsiStatus=%d SenseKey=%d(%s) ASC=0x%02x ASCQ=0x%02x",
		self.ScsiStatus, self.SenseKey, SenseKeyName(self.SenseKey),
		self.ASC, self.ASCQ)
	if self.InformationValid() {
		s = fmt.Sprintf("%s Information=%d", s, self.Information)
	}
	return s
}
