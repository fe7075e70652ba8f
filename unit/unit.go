/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 13:44:19 2019 mstenber
 * Last modified: Mon Feb 18 09:31:02 2019 mstenber
 * Edit time:     38 min
 *
 */

// unit defines what a storage unit implementation must provide, and
// the parameters describing it.
package unit

import (
	"github.com/fingon/go-spd/scsi"
	"github.com/pkg/errors"
)

// ErrNotImplemented is returned by operations the storage unit does
// not support. It is reported to the initiator as illegal request
// instead of medium error.
var ErrNotImplemented = errors.New("operation not implemented")

// Host is what storage unit sees of the host running it.
type Host interface {
	// Params are mutable only within Init.
	Params() *Params
}

// StorageUnit is the backend behind a virtual disk.
//
// Faults are either returned errors or panics; they are never
// propagated to the dispatcher. Failed I/O operations are reported
// with sense data, and the I/O operations may also fill in the status
// themselves and return nil.
//
// The I/O operations are called concurrently from multiple dispatch
// threads with no ordering guarantees, even for overlapping ranges.
type StorageUnit interface {
	// Init is called once before registration; it may configure
	// the host parameters. Error aborts the start.
	Init(host Host) error

	// Started is called once the unit is live, before I/O is
	// guaranteed. Error stops the unit again.
	Started(host Host) error

	// Stopped is called once after the dispatcher has drained. No
	// I/O happens concurrently with it. Errors are ignored.
	Stopped(host Host) error

	// Read fills buffer (blockCount blocks) starting at
	// blockAddress. flush means the range should be flushed
	// first.
	Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error

	// Write stores buffer at blockAddress. flush means the range
	// should be flushed once written.
	Write(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error

	// Flush makes range durable; blockCount 0 means everything.
	Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error

	// Unmap deallocates the ranges.
	Unmap(descriptors []scsi.UnmapDescriptor, status *scsi.Status) error
}

// Base provides default implementations: the lifecycle hooks do
// nothing and the I/O operations are not implemented. Embed it and
// override what is needed.
type Base struct{}

var _ StorageUnit = Base{}

func (self Base) Init(host Host) error {
	return nil
}

func (self Base) Started(host Host) error {
	return nil
}

func (self Base) Stopped(host Host) error {
	return nil
}

func (self Base) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	return ErrNotImplemented
}

func (self Base) Write(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	return ErrNotImplemented
}

func (self Base) Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error {
	return ErrNotImplemented
}

func (self Base) Unmap(descriptors []scsi.UnmapDescriptor, status *scsi.Status) error {
	return ErrNotImplemented
}
