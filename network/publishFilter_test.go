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

package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func TestPublishFilterApply(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := MakePublishFilter(1024)
	d1, seen := f.Apply([]byte("one"))
	require.False(t, seen)
	d2, seen := f.Apply([]byte("one"))
	require.True(t, seen)
	require.Equal(t, d1, d2)

	f.Clear(d1)
	_, seen = f.Apply([]byte("one"))
	require.False(t, seen)

	f.ClearAll()
	_, seen = f.Apply([]byte("one"))
	require.False(t, seen)
}

func TestPublishFilterCollision(t *testing.T) {
	partitiontest.PartitionTest(t)

	// a single slot keeps only the latest message
	f := MakePublishFilter(1)
	a, _ := f.Apply([]byte("a"))
	b, _ := f.Apply([]byte("b"))
	_, seen := f.Apply([]byte("a"))
	require.False(t, seen)

	// clearing a digest that was evicted leaves the occupant alone
	f.Clear(b)
	f.ClearMany([]FilterDigest{b})
	_, seen = f.Apply([]byte("a"))
	require.True(t, seen)
	require.NotEqual(t, a, b)
}

func TestPublishFilterKeyed(t *testing.T) {
	partitiontest.PartitionTest(t)

	f1 := MakePublishFilter(16)
	f2 := MakePublishFilter(16)
	require.NotEqual(t, f1.Hash([]byte("x")), f2.Hash([]byte("x")))
	require.Equal(t, f1.Hash([]byte("x")), f1.Hash([]byte("x")))
}

func TestPublishFilterBlocks(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := MakePublishFilter(0)
	require.Len(t, f.items, DefaultPublishFilterSize)
	blk := testBlock(3)
	_, seen := f.ApplyBlock(blk)
	require.False(t, seen)
	_, seen = f.ApplyBlock(blk)
	require.True(t, seen)
	f.ClearBlock(blk)
	_, seen = f.ApplyBlock(blk)
	require.False(t, seen)
}
