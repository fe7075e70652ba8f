/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 16:52:10 2019 mstenber
 * Last modified: Sun Feb 17 15:20:44 2019 mstenber
 * Edit time:     11 min
 *
 */

package native

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// OpenDebugLog opens the debug log target: "-" is standard error,
// anything else is a file opened for appending.
func OpenDebugLog(name string) (io.WriteCloser, error) {
	if name == "-" {
		return nopCloser{os.Stderr}, nil
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open debug log %s", name)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (self nopCloser) Close() error {
	return nil
}
