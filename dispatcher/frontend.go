/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 12:01:37 2019 mstenber
 * Last modified: Tue Feb 19 10:51:20 2019 mstenber
 * Edit time:     19 min
 *
 */

package dispatcher

import (
	"log"
	"strings"

	"github.com/fingon/go-spd/util"
)

// Frontend feeds requests from somewhere (a pipe, a mounted file)
// into the queue of a unit. It is closed when the unit is deleted.
type Frontend interface {
	Close() error
}

type FrontendOpener func(target string, queue *Queue) (Frontend, error)

var frontends = map[string]FrontendOpener{}
var frontendsLock util.MutexLocked

// RegisterFrontend makes device names of form scheme:target open
// the frontend.
func RegisterFrontend(scheme string, open FrontendOpener) {
	defer frontendsLock.Locked()()
	if _, ok := frontends[scheme]; ok {
		log.Panicf("dispatcher: frontend %s registered twice", scheme)
	}
	frontends[scheme] = open
}

func getFrontend(scheme string) FrontendOpener {
	defer frontendsLock.Locked()()
	return frontends[scheme]
}

const windowsPipePrefix = `\\.\pipe\`

// parseDeviceName splits device name to scheme and target. Empty
// name is in-process only unit. Names without scheme are pipe names.
func parseDeviceName(name string) (scheme, target string) {
	switch {
	case name == "":
		return "", ""
	case strings.HasPrefix(name, windowsPipePrefix):
		return "pipe", name[len(windowsPipePrefix):]
	}
	if i := strings.Index(name, ":"); i > 0 {
		return name[:i], name[i+1:]
	}
	return "pipe", name
}
