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
	"sort"
	"time"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// voteInfo is the last vote an election saw from one representative.
type voteInfo struct {
	time     time.Time
	sequence uint64
	hash     crypto.Digest
}

// TallyEntry is the weight behind one candidate block.
type TallyEntry struct {
	Hash   crypto.Digest
	Weight basics.Amount
	Block  *blocks.Block
}

// tally sums the weight of each representative's last vote per block hash.
// The ordered result covers exactly the candidates, heaviest first with ties
// broken by hash; weights holds every voted hash, candidate or not.
func tally(votes map[basics.Address]voteInfo, weight func(basics.Address) basics.Amount, candidates map[crypto.Digest]*blocks.Block) (ordered []TallyEntry, weights map[crypto.Digest]basics.Amount) {
	weights = make(map[crypto.Digest]basics.Amount, len(candidates))
	for rep, info := range votes {
		weights[info.hash] = weights[info.hash].Add(weight(rep))
	}
	ordered = make([]TallyEntry, 0, len(candidates))
	for h, blk := range candidates {
		ordered = append(ordered, TallyEntry{Hash: h, Weight: weights[h], Block: blk})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if c := ordered[i].Weight.Cmp(ordered[j].Weight); c != 0 {
			return c > 0
		}
		return ordered[i].Hash.Less(ordered[j].Hash)
	})
	return ordered, weights
}

// tallySum is the total weight behind all candidates.
func tallySum(ordered []TallyEntry) (sum basics.Amount) {
	for _, e := range ordered {
		sum = sum.Add(e.Weight)
	}
	return
}

// quorumDelta is the margin the leader must hold over the runner-up:
// quorumPercent percent of the online stake.
func quorumDelta(onlineStake basics.Amount, quorumPercent uint32) basics.Amount {
	return onlineStake.Div64(100).Mul64(uint64(quorumPercent))
}

// haveQuorum reports whether the leading candidate of ordered has won: the
// total tallied weight reaches minimum and the leader exceeds the runner-up
// by more than delta.
func haveQuorum(ordered []TallyEntry, sum, minimum, delta basics.Amount) bool {
	if len(ordered) == 0 || sum.LessThan(minimum) {
		return false
	}
	var second basics.Amount
	if len(ordered) > 1 {
		second = ordered[1].Weight
	}
	return ordered[0].Weight.GreaterThan(second.Add(delta))
}
