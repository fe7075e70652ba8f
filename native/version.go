/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 15:20:40 2019 mstenber
 * Last modified: Sat Feb 16 15:31:12 2019 mstenber
 * Edit time:     9 min
 *
 */

package native

import (
	"fmt"

	"github.com/pkg/errors"
)

// Version is packed major<<16 | minor.
type Version uint32

func MakeVersion(major, minor uint16) Version {
	return Version(uint32(major)<<16 | uint32(minor))
}

func (self Version) Major() uint16 {
	return uint16(self >> 16)
}

func (self Version) Minor() uint16 {
	return uint16(self)
}

func (self Version) String() string {
	return fmt.Sprintf("%d.%d", self.Major(), self.Minor())
}

// CompiledVersion is the version of the binding surface this package
// implements.
var CompiledVersion = MakeVersion(1, 2)

var ErrIncompatibleVersion = errors.New("incompatible version")

// CheckVersion accepts loaded version with the same major and at
// least the same minor as compiled.
func CheckVersion(compiled, loaded Version) error {
	if loaded.Major() != compiled.Major() || loaded.Minor() < compiled.Minor() {
		return errors.Wrapf(ErrIncompatibleVersion, "have %v, need %v",
			loaded, compiled)
	}
	return nil
}
