/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 12:20:05 2019 mstenber
 * Last modified: Tue Feb 19 17:12:48 2019 mstenber
 * Edit time:     31 min
 *
 */

package host

import (
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/pkg/errors"
)

// The callbacks find the storage unit through the user context, so
// the dispatcher does not keep the Host reachable. They always
// report the request as handled; failures are in the status.
var trampolines = native.Interface{
	Read:  readTrampoline,
	Write: writeTrampoline,
	Flush: flushTrampoline,
	Unmap: unmapTrampoline,
}

func storageUnitOf(h native.Handle) unit.StorageUnit {
	u, _ := native.GetUserContext(h).(unit.StorageUnit)
	return u
}

func guard(op string, cb func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s panic: %v", op, r)
		}
	}()
	return cb()
}

func fault(op string, err error, status *scsi.Status, senseKey, asc uint8) {
	mlog.Printf2("host/trampoline", "%s fault: %v", op, err)
	if errors.Cause(err) == unit.ErrNotImplemented {
		status.SetSense(scsi.SenseIllegalRequest, scsi.ASCIllegalCommand)
		return
	}
	status.SetSense(senseKey, asc)
}

func readTrampoline(h native.Handle, buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) bool {
	u := storageUnitOf(h)
	err := guard("Read", func() error {
		return u.Read(buffer, blockAddress, blockCount, flush, status)
	})
	if err != nil {
		fault("Read", err, status, scsi.SenseMediumError, scsi.ASCUnrecoveredError)
	}
	return true
}

func writeTrampoline(h native.Handle, buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) bool {
	u := storageUnitOf(h)
	err := guard("Write", func() error {
		return u.Write(buffer, blockAddress, blockCount, flush, status)
	})
	if err != nil {
		fault("Write", err, status, scsi.SenseMediumError, scsi.ASCWriteError)
	}
	return true
}

func flushTrampoline(h native.Handle, blockAddress uint64, blockCount uint32, status *scsi.Status) bool {
	u := storageUnitOf(h)
	err := guard("Flush", func() error {
		return u.Flush(blockAddress, blockCount, status)
	})
	if err != nil {
		fault("Flush", err, status, scsi.SenseMediumError, scsi.ASCWriteError)
	}
	return true
}

// Unmap faults leave the status alone; unmap is advisory.
func unmapTrampoline(h native.Handle, descriptors []scsi.UnmapDescriptor, status *scsi.Status) bool {
	if len(descriptors) == 0 {
		return true
	}
	u := storageUnitOf(h)
	err := guard("Unmap", func() error {
		return u.Unmap(descriptors, status)
	})
	if err != nil {
		mlog.Printf2("host/trampoline", "Unmap fault ignored: %v", err)
	}
	return true
}
