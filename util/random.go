/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan 12 13:33:26 2018 mstenber
 * Last modified: Sun Feb 17 09:41:09 2019 mstenber
 * Edit time:     17 min
 *
 */

package util

import (
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/fingon/go-spd/mlog"
)

func newRandWithSource(seedvalue int64) *rand.Rand {
	mlog.Printf2("util/random", "newRandWithSource %v", seedvalue)
	source := rand.NewSource(seedvalue)
	return rand.New(source)
}

// GetSeededRng returns rng seeded from SEED environment variable, or
// current time if it is not set. The seed is logged so that failing
// random tests can be reproduced.
func GetSeededRng() *rand.Rand {
	seed := os.Getenv("SEED")

	seedvalue := time.Now().UnixNano()
	if seed != "" {
		v, err := strconv.Atoi(seed)
		if err != nil {
			log.Panic(err)
		}
		seedvalue = int64(v)
	}
	log.Printf("Seed: %v (use SEED= to fix)", seedvalue)
	return newRandWithSource(seedvalue)
}

// RandomBlockRange picks random [address, address+count) range with
// 1 <= count <= maxCount that fits within blockCount blocks.
func RandomBlockRange(rng *rand.Rand, blockCount uint64, maxCount uint32) (address uint64, count uint32) {
	if uint64(maxCount) > blockCount {
		maxCount = uint32(blockCount)
	}
	count = 1 + uint32(rng.Int63n(int64(maxCount)))
	address = uint64(rng.Int63n(int64(blockCount - uint64(count) + 1)))
	return
}
