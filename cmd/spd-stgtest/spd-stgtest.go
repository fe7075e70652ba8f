/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan 17 17:03:12 2018 mstenber
 * Last modified: Thu Feb 21 18:10:33 2019 mstenber
 * Edit time:     24 min
 *
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/stgtest"
	"github.com/pkg/errors"
)

const progName = "spd-stgtest"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n\n%s [-s Seed] [-t Threads] PipeName OpCount [RWFU] [Address|*] [Count|*]\n\n", progName)
	flag.PrintDefaults()
	os.Exit(int(native.ErrorInvalidParameter))
}

func parseInt(s string) int64 {
	if s == "*" {
		return stgtest.Random
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < 0 {
		usage()
	}
	return v
}

func main() {
	flag.Usage = usage
	seed := flag.Int64("s", time.Now().UnixNano(), "Seed to use for randomness")
	threads := flag.Int("t", 1, "Number of goroutines")
	flag.Parse()
	if flag.NArg() < 2 || flag.NArg() > 5 {
		usage()
	}
	tester := &stgtest.Tester{Name: flag.Arg(0),
		OpCount: int(parseInt(flag.Arg(1))),
		OpSet:   flag.Arg(2),
		Seed:    *seed,
		Threads: *threads}
	if flag.NArg() >= 4 {
		tester.BlockAddress = parseInt(flag.Arg(3))
	}
	if flag.NArg() >= 5 {
		tester.BlockCount = parseInt(flag.Arg(4))
	}
	if tester.OpCount <= 0 {
		tester.OpCount = 1
	}
	fmt.Printf("%s -s %d -t %d %s %d %q %s %s\n", progName, tester.Seed, tester.Threads,
		tester.Name, tester.OpCount, tester.OpSet,
		argString(tester.BlockAddress), argString(tester.BlockCount))

	ops, err := tester.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v (after %d operations)\n", progName, err, ops)
		if _, ok := errors.Cause(err).(*stgtest.Failure); ok {
			os.Exit(int(native.ErrorIoDevice))
		}
		os.Exit(int(native.ErrnoOf(err)))
	}
	fmt.Printf("OK\n")
}

func argString(v int64) string {
	if v == stgtest.Random {
		return "*"
	}
	return strconv.FormatInt(v, 10)
}
