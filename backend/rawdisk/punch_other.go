//go:build !linux
// +build !linux

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 17:46:02 2019 mstenber
 * Last modified: Tue Feb 19 17:47:19 2019 mstenber
 * Edit time:     1 min
 *
 */

package rawdisk

import (
	"os"

	"github.com/pkg/errors"
)

func punchHole(f *os.File, off, length int64) error {
	return errors.New("hole punching not supported")
}
