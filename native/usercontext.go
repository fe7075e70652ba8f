/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 16:40:31 2019 mstenber
 * Last modified: Sun Feb 17 15:12:09 2019 mstenber
 * Edit time:     16 min
 *
 */

package native

import (
	"log"

	"github.com/fingon/go-spd/util"
)

// The user context map associates unit handles with whatever the
// host wants to find in its callbacks (the storage unit). It does
// not own the values; whoever sets the context also deletes it, once.
var userContexts = map[Handle]interface{}{}
var userContextsLock util.RWMutexLocked

func SetUserContext(h Handle, v interface{}) {
	defer userContextsLock.Locked()()
	if _, ok := userContexts[h]; ok {
		log.Panicf("native: user context of %#x set twice", h)
	}
	userContexts[h] = v
}

// GetUserContext returns the context of h, or nil if there is none.
func GetUserContext(h Handle) interface{} {
	defer userContextsLock.RLocked()()
	return userContexts[h]
}

func DeleteUserContext(h Handle) {
	defer userContextsLock.Locked()()
	if _, ok := userContexts[h]; !ok {
		log.Panicf("native: user context of %#x deleted twice", h)
	}
	delete(userContexts, h)
}
