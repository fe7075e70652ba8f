/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 15:02:11 2019 mstenber
 * Last modified: Mon Feb 18 10:02:44 2019 mstenber
 * Edit time:     22 min
 *
 */

package native

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errno is error code of the binding surface. The values are those
// of the Windows system error code space, which the dispatcher
// protocol and the command line tools use as exit codes.
type Errno uint32

const (
	ErrorSuccess            Errno = 0
	ErrorInvalidFunction    Errno = 1
	ErrorFileNotFound       Errno = 2
	ErrorNotEnoughMemory    Errno = 8
	ErrorInvalidParameter   Errno = 87
	ErrorCallNotImplemented Errno = 120
	ErrorAlreadyExists      Errno = 183
	ErrorUnhandledException Errno = 574
	ErrorOperationAborted   Errno = 995
	ErrorIoDevice           Errno = 1117
	ErrorNotFound           Errno = 1168
	ErrorCancelled          Errno = 1223
)

var errnoNames = map[Errno]string{
	ErrorSuccess:            "success",
	ErrorInvalidFunction:    "invalid function",
	ErrorFileNotFound:       "file not found",
	ErrorNotEnoughMemory:    "not enough memory",
	ErrorInvalidParameter:   "invalid parameter",
	ErrorCallNotImplemented: "call not implemented",
	ErrorAlreadyExists:      "already exists",
	ErrorUnhandledException: "unhandled exception",
	ErrorOperationAborted:   "operation aborted",
	ErrorIoDevice:           "I/O device error",
	ErrorNotFound:           "element not found",
	ErrorCancelled:          "operation cancelled",
}

func (self Errno) Error() string {
	name, ok := errnoNames[self]
	if !ok {
		name = "unknown error"
	}
	return fmt.Sprintf("%s (%d)", name, uint32(self))
}

// ErrnoOf returns the Errno behind err. nil is ErrorSuccess, and
// errors without Errno cause are unhandled exceptions.
func ErrnoOf(err error) Errno {
	if err == nil {
		return ErrorSuccess
	}
	if errno, ok := errors.Cause(err).(Errno); ok {
		return errno
	}
	return ErrorUnhandledException
}

// Err returns nil for ErrorSuccess and the Errno otherwise.
func (self Errno) Err() error {
	if self == ErrorSuccess {
		return nil
	}
	return self
}
