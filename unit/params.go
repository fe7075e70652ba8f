/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 13:10:02 2019 mstenber
 * Last modified: Mon Feb 18 09:20:31 2019 mstenber
 * Edit time:     61 min
 *
 */

package unit

import (
	"bytes"
	"unicode/utf8"

	"github.com/fingon/go-spd/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	FlagWriteProtected = 1 << iota
	FlagCacheSupported
	FlagUnmapSupported
	FlagEjectDisabled
)

const (
	ProductIdLength       = 16
	ProductRevisionLength = 4
)

var ErrInvalidParams = errors.New("invalid storage unit parameters")

// Params describes identity, geometry and capabilities of a storage
// unit. The layout matches the dispatcher's parameter block.
//
// The flag setters only ever add bits; SetWriteProtected(false) after
// SetWriteProtected(true) leaves the unit write protected. Parameters
// are meant to be set up once, before the unit is started.
type Params struct {
	Guid                 [16]byte
	BlockCount           uint64
	BlockLength          uint32
	ProductId            [ProductIdLength]byte
	ProductRevisionLevel [ProductRevisionLength]byte
	DeviceType           uint8
	_                    [3]uint8
	Flags                uint32

	// MaxTransferLength is the largest number of blocks in single
	// Read or Write.
	MaxTransferLength uint32
	_                 [4]uint8
	Reserved          [8]uint64
}

func (self *Params) GetGuid() uuid.UUID {
	return uuid.UUID(self.Guid)
}

func (self *Params) SetGuid(id uuid.UUID) {
	self.Guid = [16]byte(id)
}

// setFixed stores s zero padded. Truncation happens at a character
// boundary.
func setFixed(dst []byte, s string) {
	if len(s) > len(dst) {
		n := len(dst)
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixed(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

func (self *Params) GetProductId() string {
	return getFixed(self.ProductId[:])
}

// SetProductId stores at most ProductIdLength bytes of id, zero
// padded.
func (self *Params) SetProductId(id string) {
	setFixed(self.ProductId[:], id)
}

func (self *Params) GetProductRevision() string {
	return getFixed(self.ProductRevisionLevel[:])
}

// SetProductRevision stores at most ProductRevisionLength bytes of
// revision, zero padded.
func (self *Params) SetProductRevision(revision string) {
	setFixed(self.ProductRevisionLevel[:], revision)
}

func (self *Params) setFlag(flag uint32, value bool) {
	if value {
		self.Flags |= flag
	}
}

func (self *Params) WriteProtected() bool {
	return self.Flags&FlagWriteProtected != 0
}

func (self *Params) SetWriteProtected(value bool) {
	self.setFlag(FlagWriteProtected, value)
}

func (self *Params) CacheSupported() bool {
	return self.Flags&FlagCacheSupported != 0
}

func (self *Params) SetCacheSupported(value bool) {
	self.setFlag(FlagCacheSupported, value)
}

func (self *Params) UnmapSupported() bool {
	return self.Flags&FlagUnmapSupported != 0
}

func (self *Params) SetUnmapSupported(value bool) {
	self.setFlag(FlagUnmapSupported, value)
}

func (self *Params) EjectDisabled() bool {
	return self.Flags&FlagEjectDisabled != 0
}

func (self *Params) SetEjectDisabled(value bool) {
	self.setFlag(FlagEjectDisabled, value)
}

// Size is the capacity of the unit in bytes.
func (self *Params) Size() uint64 {
	return self.BlockCount * uint64(self.BlockLength)
}

// MaxTransferBytes is the largest single transfer in bytes.
func (self *Params) MaxTransferBytes() int {
	return int(self.MaxTransferLength) * int(self.BlockLength)
}

// Validate checks the geometry. The capacity must be representable
// in bytes.
func (self *Params) Validate() error {
	if self.BlockCount == 0 || self.BlockLength == 0 {
		return errors.Wrap(ErrInvalidParams, "empty geometry")
	}
	if util.MulOverflows(self.BlockCount, uint64(self.BlockLength)) {
		return errors.Wrapf(ErrInvalidParams, "%d blocks of %d bytes overflow",
			self.BlockCount, self.BlockLength)
	}
	if self.MaxTransferLength == 0 {
		return errors.Wrap(ErrInvalidParams, "zero MaxTransferLength")
	}
	if util.MulOverflows(uint64(self.MaxTransferLength), uint64(self.BlockLength)) ||
		uint64(self.MaxTransferLength)*uint64(self.BlockLength) > maxTransferBytes {
		return errors.Wrapf(ErrInvalidParams, "MaxTransferLength %d too large",
			self.MaxTransferLength)
	}
	return nil
}

// The largest buffer a dispatcher thread is ever asked to allocate.
const maxTransferBytes = 1 << 30
