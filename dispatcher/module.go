/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 14:50:02 2019 mstenber
 * Last modified: Tue Feb 19 12:40:51 2019 mstenber
 * Edit time:     12 min
 *
 */

// dispatcher is the in-process storage unit dispatcher. It is not
// meant to be called directly: it registers itself as the default
// native module, and hosts reach it through package native.
//
// Each unit has a Queue into which initiators (frontends, or tests)
// Submit requests; a pool of dispatch workers takes them from the
// queue and invokes the unit callbacks.
package dispatcher

import (
	"github.com/fingon/go-spd/native"
)

// Version of the dispatcher entry points.
var Version = native.MakeVersion(1, 2)

func version() uint32 {
	return uint32(Version)
}

// Module exports the dispatcher entry points by their native names.
var Module = native.SymbolTable{
	"SpdVersion":                       version,
	"SpdStorageUnitCreate":             createUnit,
	"SpdStorageUnitDelete":             deleteUnit,
	"SpdStorageUnitStartDispatcher":    startDispatcher,
	"SpdStorageUnitShutdownDispatcher": shutdownDispatcher,
	"SpdStorageUnitWaitDispatcher":     waitDispatcher,
	"SpdStorageUnitGetDispatcherError": getDispatcherError,
	"SpdStorageUnitSetBufferAllocator": setBufferAllocator,
	"SpdStorageUnitSetDebugLog":        setDebugLog,
	"SpdDebugLogSetHandle":             setDebugLogHandle,
	"SpdDefinePartitionTable":          definePartitionTable,
}

func init() {
	native.Register(native.DefaultModuleName, Module)
}
