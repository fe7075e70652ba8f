/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 14:10:37 2019 mstenber
 * Last modified: Tue Feb 19 11:58:20 2019 mstenber
 * Edit time:     14 min
 *
 */

package host

import (
	"io"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
)

var debugLogFile io.WriteCloser
var debugLogFileLock util.MutexLocked

// SetDebugLogFile directs the debug log of every unit to name; "-"
// is standard error.
func SetDebugLogFile(name string) error {
	w, err := native.OpenDebugLog(name)
	if err != nil {
		return err
	}
	defer debugLogFileLock.Locked()()
	native.Default().DebugLogSetHandle(w)
	if debugLogFile != nil {
		debugLogFile.Close()
	}
	debugLogFile = w
	mlog.Printf2("host/static", "debug log now %s", name)
	return nil
}

// Version returns the version of the loaded dispatcher.
func Version() native.Version {
	return native.Version(native.Default().Version())
}

// DefinePartitionTable writes MBR describing partitions to buffer.
// Invalid input is rejected with native.ErrorInvalidParameter.
func DefinePartitionTable(partitions []scsi.Partition, buffer []byte) error {
	if err := scsi.CheckPartitionTable(partitions, len(buffer)); err != nil {
		mlog.Printf2("host/static", "DefinePartitionTable: %v", err)
		return native.ErrorInvalidParameter
	}
	return native.Default().DefinePartitionTable(partitions, buffer).Err()
}
