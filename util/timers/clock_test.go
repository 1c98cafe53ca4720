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

package timers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func TestMonotonicSince(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := MakeMonotonicClock()
	start := c.Now()
	time.Sleep(10 * time.Millisecond)
	require.GreaterOrEqual(t, c.Since(start), 10*time.Millisecond)
}

func TestFrozenAdvance(t *testing.T) {
	partitiontest.PartitionTest(t)

	start := time.Unix(1000, 0)
	c := MakeFrozenClock(start)
	require.Equal(t, start, c.Now())
	require.Zero(t, c.Since(start))

	c.Advance(3 * time.Second)
	require.Equal(t, 3*time.Second, c.Since(start))

	c.Set(start.Add(time.Minute))
	require.Equal(t, time.Minute, c.Since(start))
}

func TestDeadlineMonitor(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := MakeFrozenClock(time.Unix(0, 0))
	m := MakeDeadlineMonitor(c, 50*time.Millisecond)
	require.False(t, m.Expired())
	c.Advance(49 * time.Millisecond)
	require.False(t, m.Expired())
	c.Advance(time.Millisecond)
	require.True(t, m.Expired())
	c.Set(time.Unix(0, 0))
	require.True(t, m.Expired())
}
