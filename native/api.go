/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 15:33:08 2019 mstenber
 * Last modified: Tue Feb 19 08:41:55 2019 mstenber
 * Edit time:     78 min
 *
 */

// native is the binding surface to the dispatcher: the table of its
// entry points, the version gate, and the association from unit
// handles to the storage units behind them.
//
// The dispatcher is a module resolved by name, either one registered
// within the process (the default one is provided by package
// dispatcher) or a Go plugin exporting the same entry points.
package native

import (
	"io"

	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/pkg/errors"
)

// Handle identifies storage unit within the dispatcher. Zero is never
// a valid handle.
type Handle uintptr

// The callbacks return true when they have filled in the status; the
// dispatcher then responds to the request.
type (
	ReadCallback  = func(h Handle, buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) bool
	WriteCallback = func(h Handle, buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) bool
	FlushCallback = func(h Handle, blockAddress uint64, blockCount uint32, status *scsi.Status) bool
	UnmapCallback = func(h Handle, descriptors []scsi.UnmapDescriptor, status *scsi.Status) bool
)

// Interface is the callback table of a unit. Nil callback means the
// operation is not supported.
type Interface struct {
	Read  ReadCallback
	Write WriteCallback
	Flush FlushCallback
	Unmap UnmapCallback
}

// BufferAlloc returns buffer of at least size bytes for the calling
// dispatch thread, and BufferFree releases it on the same thread.
type (
	BufferAlloc = func(size int) []byte
	BufferFree  = func(buffer []byte)
)

// Entry point signatures. These are aliases so that symbols looked up
// from plugins (which carry unnamed function types) match them.
type (
	VersionFunc                       = func() uint32
	StorageUnitCreateFunc             = func(deviceName string, params *unit.Params, iface *Interface) (Handle, Errno)
	StorageUnitDeleteFunc             = func(h Handle)
	StorageUnitStartDispatcherFunc    = func(h Handle, threadCount uint32) Errno
	StorageUnitShutdownDispatcherFunc = func(h Handle)
	StorageUnitWaitDispatcherFunc     = func(h Handle)
	StorageUnitGetDispatcherErrorFunc = func(h Handle) Errno
	StorageUnitSetBufferAllocatorFunc = func(h Handle, alloc BufferAlloc, free BufferFree)
	StorageUnitSetDebugLogFunc        = func(h Handle, mask uint32)
	DebugLogSetHandleFunc             = func(w io.Writer)
	DefinePartitionTableFunc          = func(partitions []scsi.Partition, buffer []byte) Errno
)

// Api is the resolved entry point table. It is immutable once
// returned by Load.
type Api struct {
	Version                       VersionFunc
	StorageUnitCreate             StorageUnitCreateFunc
	StorageUnitDelete             StorageUnitDeleteFunc
	StorageUnitStartDispatcher    StorageUnitStartDispatcherFunc
	StorageUnitShutdownDispatcher StorageUnitShutdownDispatcherFunc
	StorageUnitWaitDispatcher     StorageUnitWaitDispatcherFunc
	StorageUnitGetDispatcherError StorageUnitGetDispatcherErrorFunc
	StorageUnitSetBufferAllocator StorageUnitSetBufferAllocatorFunc
	StorageUnitSetDebugLog        StorageUnitSetDebugLogFunc
	DebugLogSetHandle             DebugLogSetHandleFunc
	DefinePartitionTable          DefinePartitionTableFunc
}

var ErrEntryPointNotFound = errors.New("entry point not found")

type entryPoint struct {
	name string
	set  func(sym interface{}) bool
}

func (self *Api) entryPoints() []entryPoint {
	return []entryPoint{
		{"SpdVersion", func(sym interface{}) (ok bool) {
			self.Version, ok = sym.(VersionFunc)
			return
		}},
		{"SpdStorageUnitCreate", func(sym interface{}) (ok bool) {
			self.StorageUnitCreate, ok = sym.(StorageUnitCreateFunc)
			return
		}},
		{"SpdStorageUnitDelete", func(sym interface{}) (ok bool) {
			self.StorageUnitDelete, ok = sym.(StorageUnitDeleteFunc)
			return
		}},
		{"SpdStorageUnitStartDispatcher", func(sym interface{}) (ok bool) {
			self.StorageUnitStartDispatcher, ok = sym.(StorageUnitStartDispatcherFunc)
			return
		}},
		{"SpdStorageUnitShutdownDispatcher", func(sym interface{}) (ok bool) {
			self.StorageUnitShutdownDispatcher, ok = sym.(StorageUnitShutdownDispatcherFunc)
			return
		}},
		{"SpdStorageUnitWaitDispatcher", func(sym interface{}) (ok bool) {
			self.StorageUnitWaitDispatcher, ok = sym.(StorageUnitWaitDispatcherFunc)
			return
		}},
		{"SpdStorageUnitGetDispatcherError", func(sym interface{}) (ok bool) {
			self.StorageUnitGetDispatcherError, ok = sym.(StorageUnitGetDispatcherErrorFunc)
			return
		}},
		{"SpdStorageUnitSetBufferAllocator", func(sym interface{}) (ok bool) {
			self.StorageUnitSetBufferAllocator, ok = sym.(StorageUnitSetBufferAllocatorFunc)
			return
		}},
		{"SpdStorageUnitSetDebugLog", func(sym interface{}) (ok bool) {
			self.StorageUnitSetDebugLog, ok = sym.(StorageUnitSetDebugLogFunc)
			return
		}},
		{"SpdDebugLogSetHandle", func(sym interface{}) (ok bool) {
			self.DebugLogSetHandle, ok = sym.(DebugLogSetHandleFunc)
			return
		}},
		{"SpdDefinePartitionTable", func(sym interface{}) (ok bool) {
			self.DefinePartitionTable, ok = sym.(DefinePartitionTableFunc)
			return
		}},
	}
}

// EntryPointNames lists the symbols Load resolves.
func EntryPointNames() []string {
	eps := (&Api{}).entryPoints()
	names := make([]string, len(eps))
	for i, ep := range eps {
		names[i] = ep.name
	}
	return names
}

// Load resolves every entry point of the module and checks that the
// module version is compatible with CompiledVersion.
func Load(m Module) (*Api, error) {
	api := &Api{}
	for _, ep := range api.entryPoints() {
		sym, err := m.Lookup(ep.name)
		if err != nil {
			return nil, errors.Wrapf(ErrEntryPointNotFound, "%s: %v", ep.name, err)
		}
		if !ep.set(sym) {
			return nil, errors.Wrapf(ErrEntryPointNotFound, "%s has type %T", ep.name, sym)
		}
	}
	err := CheckVersion(CompiledVersion, Version(api.Version()))
	if err != nil {
		return nil, err
	}
	return api, nil
}
