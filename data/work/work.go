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

// Package work implements proof-of-work difficulty and the multiplier
// arithmetic used to compare work across thresholds.
package work

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
)

// Thresholds are the minimum difficulties a network accepts per block kind.
type Thresholds struct {
	Epoch1        uint64
	Epoch2        uint64
	Epoch2Receive uint64
}

var (
	// FullThresholds apply on the live network.
	FullThresholds = Thresholds{
		Epoch1:        0xffffffc000000000,
		Epoch2:        0xfffffff800000000, // 8x higher than epoch_1
		Epoch2Receive: 0xfffffe0000000000, // 8x lower than epoch_1
	}
	// BetaThresholds apply on the beta network.
	BetaThresholds = Thresholds{
		Epoch1:        0xfffff00000000000, // 64x lower than FullThresholds.Epoch1
		Epoch2:        0xfffff00000000000, // same as epoch_1
		Epoch2Receive: 0xffffe00000000000, // 2x lower than epoch_1
	}
	// DevThresholds are low enough to generate work inside unit tests.
	DevThresholds = Thresholds{
		Epoch1:        0xfe00000000000000, // very low for tests
		Epoch2:        0xffc0000000000000, // 8x higher than epoch_1
		Epoch2Receive: 0xf000000000000000, // 8x lower than epoch_1
	}
)

// Base is the highest threshold; multipliers are expressed against it.
func (t Thresholds) Base() uint64 {
	return t.Epoch2
}

// Entry is the lowest threshold any block may meet.
func (t Thresholds) Entry() uint64 {
	entry := t.Epoch1
	if t.Epoch2 < entry {
		entry = t.Epoch2
	}
	if t.Epoch2Receive < entry {
		entry = t.Epoch2Receive
	}
	return entry
}

// Threshold selects the threshold a block with the given details must meet.
func (t Thresholds) Threshold(details basics.BlockDetails) uint64 {
	if details.Epoch == basics.Epoch2 {
		if details.IsReceive || details.IsEpoch {
			return t.Epoch2Receive
		}
		return t.Epoch2
	}
	return t.Epoch1
}

// NormalizedMultiplier rescales a multiplier measured against threshold so it
// is comparable with multipliers measured against the base threshold.
//
//	epoch_1 (ratio 8):   1 -> 1,  9 -> 2,  25 -> 4
//	epoch_2_receive (64): 1 -> 1, 65 -> 2, 241 -> 4
func (t Thresholds) NormalizedMultiplier(multiplier float64, threshold uint64) float64 {
	if threshold == t.Epoch1 || threshold == t.Epoch2Receive {
		ratio := ToMultiplier(t.Epoch2, threshold)
		multiplier = (multiplier + (ratio - 1)) / ratio
	}
	return multiplier
}

// DenormalizedMultiplier is the inverse of NormalizedMultiplier.
func (t Thresholds) DenormalizedMultiplier(multiplier float64, threshold uint64) float64 {
	if threshold == t.Epoch1 || threshold == t.Epoch2Receive {
		ratio := ToMultiplier(t.Epoch2, threshold)
		multiplier = multiplier*ratio + 1 - ratio
	}
	return multiplier
}

// ToMultiplier expresses difficulty as a multiple of the work needed to meet base.
func ToMultiplier(difficulty, base uint64) float64 {
	return float64(-base) / float64(-difficulty)
}

// twoTo64 is 2^64 as a float64, one past the largest uint64.
const twoTo64 = float64(1 << 63) * 2

// FromMultiplier returns the difficulty that needs multiplier times the work of base.
// Results saturate instead of wrapping.
func FromMultiplier(multiplier float64, base uint64) uint64 {
	reverse := float64(-base) / multiplier
	if reverse >= twoTo64 || math.IsNaN(reverse) {
		return 0
	}
	r := uint64(reverse)
	if r != 0 || base == 0 || multiplier < 1 {
		return -r
	}
	return math.MaxUint64
}

// Difficulty returns the difficulty achieved by nonce over root.
func Difficulty(root crypto.Digest, nonce uint64) uint64 {
	h, _ := blake2b.New(8, nil)
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	h.Write(n[:])
	h.Write(root[:])
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Generate searches for a nonce over root meeting threshold, starting at
// start. It is single threaded and meant for low dev thresholds.
func Generate(root crypto.Digest, threshold uint64, start uint64) uint64 {
	nonce := start
	for Difficulty(root, nonce) < threshold {
		nonce++
	}
	return nonce
}
