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
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// InactiveCacheStatus records which actions cached votes already triggered.
type InactiveCacheStatus struct {
	BootstrapStarted bool
	ElectionStarted  bool
	Confirmed        bool
}

// needsEval reports whether more votes could still trigger something.
func (s InactiveCacheStatus) needsEval() bool {
	return !s.BootstrapStarted || !s.ElectionStarted || !s.Confirmed
}

// InactiveCacheEntry holds the votes for a block that had no election when
// they arrived.
type InactiveCacheEntry struct {
	// Arrival is when the latest voter was added.
	Arrival time.Time
	Hash    crypto.Digest
	Voters  []basics.Address
	Status  InactiveCacheStatus
}

// inactiveCache keeps a bounded number of entries; the entry that least
// recently gained a voter is evicted first. It is guarded by the manager lock.
type inactiveCache struct {
	entries *simplelru.LRU[crypto.Digest, *InactiveCacheEntry]
}

func makeInactiveCache(size int) inactiveCache {
	entries, err := simplelru.NewLRU[crypto.Digest, *InactiveCacheEntry](size, nil)
	if err != nil {
		panic(err)
	}
	return inactiveCache{entries: entries}
}

// find returns a copy of the entry for hash.
func (c *inactiveCache) find(hash crypto.Digest) (InactiveCacheEntry, bool) {
	e, ok := c.entries.Peek(hash)
	if !ok {
		return InactiveCacheEntry{}, false
	}
	out := *e
	out.Voters = append([]basics.Address(nil), e.Voters...)
	return out, true
}

func (c *inactiveCache) peek(hash crypto.Digest) (*InactiveCacheEntry, bool) {
	return c.entries.Peek(hash)
}

// put inserts or refreshes e, evicting the stalest entry when full.
func (c *inactiveCache) put(e *InactiveCacheEntry) {
	c.entries.Add(e.Hash, e)
}

func (c *inactiveCache) erase(hash crypto.Digest) {
	c.entries.Remove(hash)
}

func (c *inactiveCache) size() int {
	return c.entries.Len()
}

// addInactiveVotesCache records rep's vote for hash, which has no election.
// Only principal representatives are cached.
func (m *Manager) addInactiveVotesCache(hash crypto.Digest, rep basics.Address) {
	principal := m.onlineReps.OnlineStake().Div64(m.params.PrincipalWeightFactor)
	if !m.ledger.Weight(rep).GreaterThan(principal) {
		return
	}
	now := m.clock.Now()
	if existing, ok := m.inactive.peek(hash); ok {
		if !existing.Status.needsEval() {
			return
		}
		for _, voter := range existing.Voters {
			if voter == rep {
				return
			}
		}
		existing.Arrival = now
		existing.Voters = append(existing.Voters, rep)
		m.inactive.put(existing)
		existing.Status = m.inactiveVotesBootstrapCheck(existing.Voters, hash, existing.Status)
	} else {
		entry := &InactiveCacheEntry{Arrival: now, Hash: hash, Voters: []basics.Address{rep}}
		m.inactive.put(entry)
		entry.Status = m.inactiveVotesBootstrapCheck(entry.Voters, hash, InactiveCacheStatus{})
	}
	electionsInactiveCache.Set(float64(m.inactive.size()))
}

// inactiveVotesBootstrapCheck decides, from the weight behind the cached
// voters, whether to start an election for hash or to bootstrap it. It is
// run as rarely as possible: only when a new voter arrives and a flag is
// still unset.
func (m *Manager) inactiveVotesBootstrapCheck(voters []basics.Address, hash crypto.Digest, previously InactiveCacheStatus) InactiveCacheStatus {
	status := previously
	var tally basics.Amount
	for _, voter := range voters {
		tally = tally.Add(m.ledger.Weight(voter))
	}
	online := m.onlineReps.OnlineStake()

	if !previously.Confirmed && !tally.LessThan(m.cfg.OnlineWeightMinimum) {
		status.BootstrapStarted = true
		status.Confirmed = true
	} else if !previously.BootstrapStarted && !m.cfg.DisableLegacyBootstrap && m.cfg.DisableLazyBootstrap && tally.GreaterThan(online.Div64(256)) {
		status.BootstrapStarted = true
	}
	hint := online.Div64(100).Mul64(uint64(m.cfg.ElectionHintWeightPercent))
	if !previously.ElectionStarted && len(voters) >= electionStartVotersMin && !tally.LessThan(hint) {
		status.ElectionStarted = true
	}

	startElection := status.ElectionStarted && !previously.ElectionStarted
	startBootstrap := status.BootstrapStarted && !previously.BootstrapStarted
	if !startElection && !startBootstrap {
		return status
	}
	blk, err := m.ledger.Block(hash)
	switch {
	case err == nil:
		if startElection && !m.ledger.BlockConfirmed(hash) && !m.cementer.IsProcessingBlock(hash) &&
			m.ledger.CementedCount() >= m.ledger.BootstrapWeightMaxBlocks() {
			m.insertImpl(blk, nil, BehaviorNormal, nil)
		}
	case startBootstrap:
		if m.requestBootstrap != nil {
			m.requestBootstrap(hash)
		}
		stat(statBootstrapRequested)
	}
	return status
}

// TriggerInactiveVotesCacheElection starts an election for blk if the votes
// cached for it already asked for one, before blk was in the ledger.
func (m *Manager) TriggerInactiveVotesCacheElection(blk *blocks.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.inactive.peek(blk.Hash()); ok && entry.Status.ElectionStarted {
		m.insertImpl(blk, nil, BehaviorNormal, nil)
	}
}

// FindInactiveVotesCache returns a copy of the cached votes for hash.
func (m *Manager) FindInactiveVotesCache(hash crypto.Digest) (InactiveCacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inactive.find(hash)
}

// EraseInactiveVotesCache drops the cached votes for hash.
func (m *Manager) EraseInactiveVotesCache(hash crypto.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inactive.erase(hash)
	electionsInactiveCache.Set(float64(m.inactive.size()))
}
