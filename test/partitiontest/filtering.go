// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

// Package partitiontest splits the test suite across CI runners.
package partitiontest

import (
	"hash/fnv"
	"os"
	"runtime"
	"strconv"
	"testing"
)

// PartitionTest skips t unless it belongs to the partition selected by the
// PARTITION_TOTAL and PARTITION_ID environment variables. Every test calls it
// first; with the variables unset it is a no-op.
func PartitionTest(t testing.TB) {
	total, ok := os.LookupEnv("PARTITION_TOTAL")
	if !ok {
		return
	}
	partitions, err := strconv.Atoi(total)
	if err != nil || partitions <= 0 {
		return
	}
	partitionID, err := strconv.Atoi(os.Getenv("PARTITION_ID"))
	if err != nil {
		return
	}
	_, file, _, _ := runtime.Caller(1)
	idx := testKey(file+":"+t.Name()) % uint64(partitions)
	if idx != uint64(partitionID) {
		t.Skipf("skipping due to partitioning: assigned to partition %d", idx)
	}
}

func testKey(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}
