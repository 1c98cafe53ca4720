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

// handle addresses an election in the arena. A handle outlives the election
// it points at; lookups through a stale handle fail instead of reaching the
// election that reused the slot.
type handle struct {
	index      uint32
	generation uint32
}

type arenaSlot struct {
	generation uint32
	election   *Election
}

// arena owns the live elections. Every index of the manager refers to
// elections through handles into it.
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

func (a *arena) alloc(e *Election) handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}
	slot := &a.slots[idx]
	slot.generation++
	slot.election = e
	a.live++
	return handle{index: idx, generation: slot.generation}
}

func (a *arena) get(h handle) *Election {
	if int(h.index) >= len(a.slots) {
		return nil
	}
	slot := &a.slots[h.index]
	if slot.generation != h.generation {
		return nil
	}
	return slot.election
}

// release frees the slot of h. Releasing a stale handle does nothing.
func (a *arena) release(h handle) {
	if a.get(h) == nil {
		return
	}
	slot := &a.slots[h.index]
	slot.election = nil
	slot.generation++
	a.free = append(a.free, h.index)
	a.live--
}

func (a *arena) size() int {
	return a.live
}

func (a *arena) clear() {
	for i := range a.slots {
		if a.slots[i].election != nil {
			a.release(handle{index: uint32(i), generation: a.slots[i].generation})
		}
	}
}
