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
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/blocks"
)

func mustLRU[K comparable, V any](size int, onEvict simplelru.EvictCallback[K, V]) *simplelru.LRU[K, V] {
	l, err := simplelru.NewLRU[K, V](size, onEvict)
	if err != nil {
		panic(err)
	}
	return l
}

// recentlyConfirmed remembers the roots and winners of the latest confirmed
// elections, oldest evicted first. Roots and hashes are both unique.
type recentlyConfirmed struct {
	byRoot *simplelru.LRU[blocks.QualifiedRoot, crypto.Digest]
	byHash map[crypto.Digest]blocks.QualifiedRoot
}

func makeRecentlyConfirmed(size int) *recentlyConfirmed {
	rc := &recentlyConfirmed{byHash: make(map[crypto.Digest]blocks.QualifiedRoot)}
	rc.byRoot = mustLRU[blocks.QualifiedRoot, crypto.Digest](size, func(_ blocks.QualifiedRoot, hash crypto.Digest) {
		delete(rc.byHash, hash)
	})
	return rc
}

func (rc *recentlyConfirmed) add(root blocks.QualifiedRoot, hash crypto.Digest) {
	if rc.byRoot.Contains(root) {
		return
	}
	if _, ok := rc.byHash[hash]; ok {
		return
	}
	rc.byHash[hash] = root
	rc.byRoot.Add(root, hash)
}

func (rc *recentlyConfirmed) existsRoot(root blocks.QualifiedRoot) bool {
	return rc.byRoot.Contains(root)
}

func (rc *recentlyConfirmed) existsHash(hash crypto.Digest) bool {
	_, ok := rc.byHash[hash]
	return ok
}

func (rc *recentlyConfirmed) eraseHash(hash crypto.Digest) {
	if root, ok := rc.byHash[hash]; ok {
		rc.byRoot.Remove(root)
	}
}

func (rc *recentlyConfirmed) size() int {
	return rc.byRoot.Len()
}

// recentlyCemented keeps the statuses of the latest cemented elections.
type recentlyCemented struct {
	statuses *simplelru.LRU[uint64, Status]
	next     uint64
}

func makeRecentlyCemented(size int) *recentlyCemented {
	return &recentlyCemented{statuses: mustLRU[uint64, Status](size, nil)}
}

func (rc *recentlyCemented) add(s Status) {
	rc.next++
	rc.statuses.Add(rc.next, s)
}

// list returns the statuses oldest first.
func (rc *recentlyCemented) list() []Status {
	return rc.statuses.Values()
}

func (rc *recentlyCemented) size() int {
	return rc.statuses.Len()
}

// droppedElections remembers when unconfirmed elections were dropped, so a
// root that comes back with more work within the restart window may be
// restarted.
type droppedElections struct {
	roots *simplelru.LRU[blocks.QualifiedRoot, time.Time]
}

func makeDroppedElections(size int) *droppedElections {
	return &droppedElections{roots: mustLRU[blocks.QualifiedRoot, time.Time](size, nil)}
}

func (d *droppedElections) add(root blocks.QualifiedRoot, now time.Time) {
	if d.roots.Contains(root) {
		return
	}
	d.roots.Add(root, now)
}

func (d *droppedElections) erase(root blocks.QualifiedRoot) {
	d.roots.Remove(root)
}

// find returns when root was dropped, or the zero time.
func (d *droppedElections) find(root blocks.QualifiedRoot) time.Time {
	t, _ := d.roots.Peek(root)
	return t
}

func (d *droppedElections) size() int {
	return d.roots.Len()
}
