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
	"encoding/binary"

	"github.com/algorand/go-deadlock"
	"github.com/dchest/siphash"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/protocol"
)

// DefaultPublishFilterSize is the number of slots of the node's publish filter.
const DefaultPublishFilterSize = 256 * 1024

// FilterDigest is the 128-bit siphash of a message body. The zero digest marks
// an empty slot.
type FilterDigest struct {
	Hi, Lo uint64
}

// PublishFilter drops messages that were seen recently. Each digest maps to a
// single slot, so a colliding digest evicts the previous occupant; false
// negatives are possible, false positives are not.
type PublishFilter struct {
	mu    deadlock.Mutex
	k0    uint64
	k1    uint64
	items []FilterDigest
}

// MakePublishFilter creates a filter with size slots keyed by a random
// siphash key.
func MakePublishFilter(size int) *PublishFilter {
	if size <= 0 {
		size = DefaultPublishFilterSize
	}
	seed := crypto.RandomSeed()
	return &PublishFilter{
		k0:    binary.LittleEndian.Uint64(seed[0:8]),
		k1:    binary.LittleEndian.Uint64(seed[8:16]),
		items: make([]FilterDigest, size),
	}
}

// Hash returns the digest msg is filed under.
func (f *PublishFilter) Hash(msg []byte) FilterDigest {
	hi, lo := siphash.Hash128(f.k0, f.k1, msg)
	return FilterDigest{Hi: hi, Lo: lo}
}

func (f *PublishFilter) slot(d FilterDigest) *FilterDigest {
	return &f.items[d.Lo%uint64(len(f.items))]
}

// Apply records msg and reports whether it was already present.
func (f *PublishFilter) Apply(msg []byte) (FilterDigest, bool) {
	d := f.Hash(msg)
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slot(d)
	if *s == d {
		return d, true
	}
	*s = d
	return d, false
}

// Clear forgets d so the same message is accepted again.
func (f *PublishFilter) Clear(d FilterDigest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slot(d)
	if *s == d {
		*s = FilterDigest{}
	}
}

// ClearMany forgets every digest in ds.
func (f *PublishFilter) ClearMany(ds []FilterDigest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range ds {
		s := f.slot(d)
		if *s == d {
			*s = FilterDigest{}
		}
	}
}

// ApplyBlock records the wire encoding of blk.
func (f *PublishFilter) ApplyBlock(blk *blocks.Block) (FilterDigest, bool) {
	return f.Apply(protocol.Encode(blk))
}

// ClearBlock forgets the wire encoding of blk, allowing it to be republished.
func (f *PublishFilter) ClearBlock(blk *blocks.Block) {
	f.Clear(f.Hash(protocol.Encode(blk)))
}

// ClearAll empties the filter.
func (f *PublishFilter) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		f.items[i] = FilterDigest{}
	}
}
