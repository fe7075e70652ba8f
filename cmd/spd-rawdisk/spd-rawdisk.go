/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Feb 21 13:02:11 2019 mstenber
 * Last modified: Thu Feb 21 15:40:27 2019 mstenber
 * Edit time:     77 min
 *
 */

package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/fingon/go-spd/backend/factory"
	"github.com/fingon/go-spd/backend/rawdisk"
	"github.com/fingon/go-spd/host"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/native"
	_ "github.com/fingon/go-spd/transport/fuse"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const progName = "spd-rawdisk"

func fail(code native.Errno, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(int(code))
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n\n%s OPTIONS\n\n", progName)
	flag.PrintDefaults()
	os.Exit(int(native.ErrorInvalidParameter))
}

// loadConfig reads YAML mapping of flag names to values, and sets
// the flags that were not given on the command line.
func loadConfig(path string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	var values map[string]interface{}
	if err = yaml.Unmarshal(b, &values); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	given := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		given[f.Name] = true
	})
	for name, value := range values {
		if given[name] {
			continue
		}
		if flag.Lookup(name) == nil {
			return errors.Errorf("%s: unknown option %s", path, name)
		}
		if err = flag.Set(name, fmt.Sprint(value)); err != nil {
			return errors.Wrapf(err, "%s: option %s", path, name)
		}
	}
	return nil
}

func errnoOf(err error) native.Errno {
	switch {
	case errors.Cause(err) == rawdisk.ErrInvalidSize:
		return native.ErrorInvalidParameter
	case os.IsNotExist(errors.Cause(err)):
		return native.ErrorFileNotFound
	}
	return native.ErrnoOf(err)
}

func main() {
	flag.Usage = usage
	configp := flag.String("config", "", "YAML file with default values for the other options")
	file := flag.String("f", "", "Backing file (rawdisk backend)")
	blockCount := flag.Uint64("c", 1024*1024, "Block count")
	blockLength := flag.Uint("l", 4096, "Block length")
	productId := flag.String("i", "RawDisk", "Product id [1-16 chars]")
	productRevision := flag.String("r", "1.0", "Product revision [1-4 chars]")
	writeAllowed := flag.Int("W", 1, "Write allowed")
	cacheSupported := flag.Int("C", 1, "Cache supported")
	unmapSupported := flag.Int("U", 1, "Unmap supported")
	debugFlags := flag.Uint("d", 0, "Debug flags (request kinds to log, as bit mask)")
	debugLog := flag.String("D", "", "Debug log file; - is standard error")
	mlogFile := flag.String("L", "", "Trace log file (mlog output; enable with -mlog)")
	pipeName := flag.String("p", "", "Pipe name (pipe:PATH, tcp:ADDR, fuse:DIR)")
	threadCount := flag.Uint("t", host.DefaultThreadCount, "Dispatcher thread count; 0 is number of CPUs")
	backendp := flag.String("backend", factory.RawDisk,
		fmt.Sprintf("Backend to use (possible: %v)", factory.List()))
	dir := flag.String("dir", "", "Storage directory of block store backends")
	password := flag.String("password", "", "Password for encrypting stored blocks")
	salt := flag.String("salt", "salt", "Salt")
	authenticate := flag.Bool("authenticate", false, "Authenticate stored blocks")
	cpuprofile := flag.String("cpuprofile", "", "CPU profile file")
	profile := flag.Bool("profile", false, "Whether to enable profiling 'bonus stuff'")

	flag.Parse()
	if flag.NArg() != 0 {
		usage()
	}
	if *configp != "" {
		if err := loadConfig(*configp); err != nil {
			fail(native.ErrorInvalidParameter, "error: %v", err)
		}
	}
	if *backendp == factory.RawDisk && *file == "" {
		usage()
	}

	if *profile {
		runtime.SetBlockProfileRate(1000)    // microsecond
		runtime.SetMutexProfileFraction(100) // 1/100 is enough
	}
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *mlogFile != "" {
		undo, err := mlog.SetOutputFile(*mlogFile)
		if err != nil {
			fail(native.ErrorInvalidParameter, "error: cannot open trace log file: %v", err)
		}
		defer undo()
	}
	if *debugLog != "" {
		if err := host.SetDebugLogFile(*debugLog); err != nil {
			fail(native.ErrorInvalidParameter, "error: cannot open debug log file: %v", err)
		}
	}

	conf := factory.Configuration{BackendName: *backendp,
		Directory:    *dir,
		File:         *file,
		BlockCount:   *blockCount,
		BlockLength:  uint32(*blockLength),
		Password:     *password,
		Salt:         *salt,
		Authenticate: *authenticate}
	u, err := factory.NewUnit(conf)
	if err != nil {
		fail(errnoOf(err), "error: cannot create unit: %v", err)
	}

	h := host.New(u)
	h.SetProductId(*productId)
	h.SetProductRevision(*productRevision)
	h.SetWriteProtected(*writeAllowed == 0)
	h.SetCacheSupported(*cacheSupported != 0)
	h.SetUnmapSupported(*unmapSupported != 0)
	h.SetThreadCount(uint32(*threadCount))

	if err = h.Start(*pipeName, uint32(*debugFlags)); err != nil {
		fail(errnoOf(err), "error: cannot start %s: %v", progName, err)
	}
	mlog.Printf2("cmd/spd-rawdisk/spd-rawdisk", "started %v", h.Guid())
	fmt.Fprintf(os.Stderr, "%s -p %s -c %d -l %d -i %s -r %s -f %s -backend %s\n",
		progName, *pipeName, h.BlockCount(), h.BlockLength(),
		h.ProductId(), h.ProductRevision(), *file, *backendp)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		mlog.Printf2("cmd/spd-rawdisk/spd-rawdisk", "got %v", sig)
		h.Shutdown()
	}()

	// loop is here
	h.Wait()

	if errno := h.DispatcherError(); errno != native.ErrorSuccess {
		fail(errno, "error: dispatcher failed: %v", errno)
	}
}
