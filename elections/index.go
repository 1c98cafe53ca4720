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

package elections

import (
	"github.com/google/btree"

	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

const defaultTreeDegree = 16

// rootEntry is the manager's record of one election.
type rootEntry struct {
	root            blocks.QualifiedRoot
	multiplier      float64
	election        handle
	epoch           basics.Epoch
	previousBalance basics.Amount

	// seq orders entries of equal multiplier by insertion
	seq uint64
}

// byMultiplier orders the hardest work first.
func byMultiplier(a, b *rootEntry) bool {
	if a.multiplier != b.multiplier {
		return a.multiplier > b.multiplier
	}
	return a.seq < b.seq
}

// rootIndex indexes elections uniquely by qualified root and, non-uniquely,
// by descending work multiplier.
type rootIndex struct {
	byRoot       map[blocks.QualifiedRoot]*rootEntry
	byMultiplier *btree.BTreeG[*rootEntry]
	nextSeq      uint64
}

func makeRootIndex() rootIndex {
	return rootIndex{
		byRoot:       make(map[blocks.QualifiedRoot]*rootEntry),
		byMultiplier: btree.NewG(defaultTreeDegree, byMultiplier),
	}
}

func (ri *rootIndex) find(root blocks.QualifiedRoot) (*rootEntry, bool) {
	e, ok := ri.byRoot[root]
	return e, ok
}

// insert adds e unless its root is present.
func (ri *rootIndex) insert(e *rootEntry) bool {
	if _, ok := ri.byRoot[e.root]; ok {
		return false
	}
	ri.nextSeq++
	e.seq = ri.nextSeq
	ri.byRoot[e.root] = e
	ri.byMultiplier.ReplaceOrInsert(e)
	return true
}

func (ri *rootIndex) erase(root blocks.QualifiedRoot) (*rootEntry, bool) {
	e, ok := ri.byRoot[root]
	if !ok {
		return nil, false
	}
	delete(ri.byRoot, root)
	ri.byMultiplier.Delete(e)
	return e, true
}

// setMultiplier re-sorts e under a new multiplier.
func (ri *rootIndex) setMultiplier(e *rootEntry, multiplier float64) {
	ri.byMultiplier.Delete(e)
	e.multiplier = multiplier
	ri.byMultiplier.ReplaceOrInsert(e)
}

// descending returns the entries hardest work first. The result stays valid
// while the index is modified.
func (ri *rootIndex) descending() []*rootEntry {
	out := make([]*rootEntry, 0, ri.byMultiplier.Len())
	ri.byMultiplier.Ascend(func(e *rootEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (ri *rootIndex) size() int {
	return len(ri.byRoot)
}

func (ri *rootIndex) clear() {
	ri.byRoot = make(map[blocks.QualifiedRoot]*rootEntry)
	ri.byMultiplier.Clear(false)
}
