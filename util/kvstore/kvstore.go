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

// Package kvstore is a small ordered key/value API with a pebble backend.
package kvstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("kvstore: not found")

// KVStore is a simple KV API
type KVStore interface {
	Get([]byte) ([]byte, error)
	Has([]byte) (bool, error)
	Set([]byte, []byte) error
	Delete([]byte) error

	NewIterator(start, end []byte) Iterator

	NewBatch() BatchWriter
	NewSnapshot() Snapshot
	Close() error
}

// Snapshot is a consistent read-only view of the store at a point in time
type Snapshot interface {
	Get([]byte) ([]byte, error)
	NewIterator(start, end []byte) Iterator
	Close() error
}

// BatchWriter is a set of mutations applied atomically on Commit
type BatchWriter interface {
	Set(key, value []byte) error
	Delete(key []byte) error

	Commit() error
	Cancel()
}

// Iterator scans a range of KVs in key order
type Iterator interface {
	Next()
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close()
}

type kvFactory interface {
	New(dbdir string, inMem bool) (KVStore, error)
}

var kvImpls = make(map[string]kvFactory)

// NewKVStore returns a KVStore implementation matching the provided implementation name
func NewKVStore(impl string, dbdir string, inMem bool) (KVStore, error) {
	factory, ok := kvImpls[impl]
	if !ok {
		return nil, fmt.Errorf("KVStore impl %s not found", impl)
	}
	return factory.New(dbdir, inMem)
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
