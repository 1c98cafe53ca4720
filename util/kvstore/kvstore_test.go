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

package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func openTestStore(t *testing.T, inMem bool) KVStore {
	kv, err := NewKVStore("pebble", filepath.Join(t.TempDir(), "test"), inMem)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestPebbleGetSetDelete(t *testing.T) {
	partitiontest.PartitionTest(t)

	for _, inMem := range []bool{true, false} {
		kv := openTestStore(t, inMem)

		_, err := kv.Get([]byte("a"))
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, kv.Set([]byte("a"), []byte("1")))
		v, err := kv.Get([]byte("a"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), v)

		ok, err := kv.Has([]byte("a"))
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, kv.Delete([]byte("a")))
		ok, err = kv.Has([]byte("a"))
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestPebbleBatchAndIterator(t *testing.T) {
	partitiontest.PartitionTest(t)

	kv := openTestStore(t, true)
	b := kv.NewBatch()
	require.NoError(t, b.Set([]byte("p/1"), []byte("one")))
	require.NoError(t, b.Set([]byte("p/2"), []byte("two")))
	require.NoError(t, b.Set([]byte("q/1"), []byte("other")))
	require.NoError(t, b.Commit())

	cancelled := kv.NewBatch()
	require.NoError(t, cancelled.Set([]byte("p/3"), []byte("three")))
	cancelled.Cancel()

	it := kv.NewIterator([]byte("p/"), PrefixEnd([]byte("p/")))
	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Close()
	require.Equal(t, []string{"p/1", "p/2"}, keys)

	del := kv.NewBatch()
	require.NoError(t, del.Delete([]byte("p/1")))
	require.NoError(t, del.Commit())
	_, err := kv.Get([]byte("p/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrefixEnd(t *testing.T) {
	partitiontest.PartitionTest(t)

	require.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	require.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00, 0xff}))
	require.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}

func TestUnknownImpl(t *testing.T) {
	partitiontest.PartitionTest(t)

	_, err := NewKVStore("rocksdb", t.TempDir(), true)
	require.Error(t, err)
}

func TestPebbleSnapshotIsolation(t *testing.T) {
	partitiontest.PartitionTest(t)

	kv := openTestStore(t, true)
	require.NoError(t, kv.Set([]byte("k"), []byte("before")))

	snap := kv.NewSnapshot()
	defer snap.Close()
	require.NoError(t, kv.Set([]byte("k"), []byte("after")))
	require.NoError(t, kv.Set([]byte("k2"), []byte("new")))

	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("before"), v)
	_, err = snap.Get([]byte("k2"))
	require.ErrorIs(t, err, ErrNotFound)

	it := snap.NewIterator(nil, nil)
	n := 0
	for ; it.Valid(); it.Next() {
		n++
	}
	it.Close()
	require.Equal(t, 1, n)
}
