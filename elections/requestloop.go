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
	"math"
	"time"

	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/util/condvar"
	"github.com/algorand/go-blocklattice/voting"
)

// maxExpiredOptimisticInfos bounds the accounts waiting for a pessimistic
// retry.
const maxExpiredOptimisticInfos = 10000

func (m *Manager) requestLoop() {
	defer m.wg.Done()
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.stopped.Load() {
		stamp := time.Now()
		m.requestLoopPass()
		if m.stopped.Load() {
			return
		}

		wakeup := stamp.Add(m.params.RequestInterval)
		if minWakeup := time.Now().Add(m.params.RequestInterval / 2); minWakeup.After(wakeup) {
			wakeup = minWakeup
		}
		for !m.stopped.Load() {
			d := time.Until(wakeup)
			if d <= 0 {
				break
			}
			condvar.TimedWait(m.cond, d)
		}
	}
}

// requestLoopPass runs one pass of the request loop. mu must be held; it is
// released while the pass talks to the network.
func (m *Manager) requestLoopPass() {
	// frontier confirmation goes first so the elections it starts are
	// ranked by this pass
	if m.shouldDoFrontiersConfirmation() {
		m.frontiersConfirmation()
	}
	m.updateActiveMultiplier()
	m.requestConfirm()
}

// updateActiveMultiplier samples the median multiplier of the unconfirmed
// prioritized elections into the difficulty trend, and tells the difficulty
// observers about the new trend. mu is released while they run.
func (m *Manager) updateActiveMultiplier() {
	m.lastPrioritizedMultiplier = 0
	multiplier := 1.0
	dev := m.params.IsDevNetwork()
	// unsaturated networks and frontier confirmation do not move the trend
	if m.roots.size() >= m.prioritizedCutoff || (dev && m.roots.size() > 0) {
		prioritized := make([]float64, 0, m.prioritizedCutoff)
		m.roots.byMultiplier.Ascend(func(entry *rootEntry) bool {
			if len(prioritized) >= m.prioritizedCutoff {
				return false
			}
			if !m.elections.get(entry.election).confirmed() {
				prioritized = append(prioritized, entry.multiplier)
			}
			return true
		})
		if len(prioritized) > 10 || (dev && len(prioritized) > 0) {
			multiplier = prioritized[len(prioritized)/2]
		}
		if len(prioritized) > 0 {
			m.lastPrioritizedMultiplier = prioritized[len(prioritized)-1]
		}
	}

	trended := m.trend.push(multiplier)
	m.trendedMultiplier.Store(math.Float64bits(trended))
	electionsMultiplier.Set(trended)
	difficulty := work.FromMultiplier(trended, m.params.Thresholds.Base())

	m.mu.Unlock()
	m.notifyDifficulty(difficulty)
	m.mu.Lock()
}

// requestConfirm visits the elections hardest work first: the prioritized
// ones every pass, all of them every CheckAllElectionsPeriod. It advances
// their state machines and erases the ones that finished, or that overflow
// the active elections limit past their time to live. mu must be held; the
// queued requests and votes are sent with it released.
func (m *Manager) requestConfirm() {
	m.mu.Unlock()
	reps := m.net.PrincipalRepresentatives()
	m.mu.Lock()

	s := makeSolicitor(m.net, m.params)
	s.prepare(reps)
	var session *voting.Session
	if m.votingEnabled() {
		session = m.generator.NewSession()
	}

	now := m.clock.Now()
	ttlCutoff := now.Add(-m.params.ElectionTimeToLive)
	checkAll := now.Sub(m.lastCheckAllElections) > m.params.CheckAllElectionsPeriod
	target := m.prioritizedCutoff
	if checkAll {
		target = m.roots.size()
	}

	unconfirmed := 0
	for _, entry := range m.roots.descending() {
		if unconfirmed >= target {
			break
		}
		e := m.elections.get(entry.election)
		if !e.Prioritized() && unconfirmed < m.prioritizedCutoff {
			e.prioritize(session)
		}
		if !e.confirmed() {
			unconfirmed++
		}
		overflow := unconfirmed > m.cfg.ActiveElectionsSize && e.electionStart.Before(ttlCutoff) && !m.wallets.IsWatched(entry.root)
		if overflow || e.transitionTime(s) {
			if e.optimistic() && e.failed() && e.status.RequestCount != 0 {
				m.expiredOptimistic.add(e.status.Winner.Account, now, maxExpiredOptimisticInfos)
			}
			m.eraseElection(entry)
		}
	}

	m.mu.Unlock()
	s.flush()
	if session != nil {
		session.Flush()
	}
	m.mu.Lock()

	// updated after the pass so slow machines do not visit everything often
	if checkAll {
		m.lastCheckAllElections = m.clock.Now()
	}
}
