/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 16:05:52 2019 mstenber
 * Last modified: Tue Feb 19 08:50:17 2019 mstenber
 * Edit time:     37 min
 *
 */

package native

import (
	"log"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

// DefaultModuleName is the name the built-in dispatcher registers
// itself with.
const DefaultModuleName = "spd"

// ModuleEnvironment names environment variable which overrides the
// module Default uses.
const ModuleEnvironment = "SPD_NATIVE"

// Module provides entry points by name.
type Module interface {
	Lookup(name string) (interface{}, error)
}

// SymbolTable is Module backed by a map.
type SymbolTable map[string]interface{}

func (self SymbolTable) Lookup(name string) (interface{}, error) {
	sym, ok := self[name]
	if !ok {
		return nil, errors.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

type pluginModule struct {
	plugin *plugin.Plugin
}

func (self pluginModule) Lookup(name string) (interface{}, error) {
	sym, err := self.plugin.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

var modules = map[string]Module{}
var modulesLock util.MutexLocked

// Register makes module available by name; registering same name
// twice is a programming error.
func Register(name string, m Module) {
	defer modulesLock.Locked()()
	if _, ok := modules[name]; ok {
		log.Panicf("native: module %s registered twice", name)
	}
	modules[name] = m
}

// Modules returns the names of registered modules.
func Modules() []string {
	defer modulesLock.Locked()()
	names := make([]string, 0, len(modules))
	for k := range modules {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Open returns registered module by name. Names that look like paths
// are opened as Go plugins.
func Open(name string) (Module, error) {
	if strings.Contains(name, "/") || strings.HasSuffix(name, ".so") {
		mlog.Printf2("native/module", "Open plugin %s", name)
		p, err := plugin.Open(name)
		if err != nil {
			return nil, errors.Wrapf(err, "plugin.Open %s", name)
		}
		return pluginModule{p}, nil
	}
	defer modulesLock.Locked()()
	m, ok := modules[name]
	if !ok {
		return nil, errors.Errorf("module %s not registered", name)
	}
	return m, nil
}

var defaultApi *Api
var defaultOnce sync.Once

// Default returns the process-wide entry point table, loading it on
// first use. Failure to load it is fatal.
func Default() *Api {
	defaultOnce.Do(func() {
		name := util.SOr(os.Getenv(ModuleEnvironment), DefaultModuleName)
		m, err := Open(name)
		if err == nil {
			defaultApi, err = Load(m)
		}
		if err != nil {
			log.Panicf("native: unable to load %s: %v", name, err)
		}
		mlog.Printf2("native/module", "Loaded %s version %v", name,
			Version(defaultApi.Version()))
	})
	return defaultApi
}
