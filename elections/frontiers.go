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

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/util/timers"
)

const (
	// maxCementableFrontiers bounds each container of cementable accounts.
	maxCementableFrontiers = 100000
	// confirmedFrontiersMaxPendingSize is the cementer backlog above which no
	// accounts are prioritized.
	confirmedFrontiersMaxPendingSize = 10000
	// expiredOptimisticInfoCutoff is how long a failed optimistic election
	// is remembered.
	expiredOptimisticInfoCutoff = 30 * time.Minute
	// frontierScanBatch is the number of accounts read from the ledger or a
	// wallet at once.
	frontierScanBatch = 64
)

// frontierScheduler is the state of frontier confirmation. It is guarded by
// the manager lock, except for the scan cursors which only the request loop
// touches.
type frontierScheduler struct {
	walletFrontiers   *cementableAccounts
	ledgerFrontiers   *cementableAccounts
	expiredOptimistic *expiredOptimisticInfos
	optimisticCount   int
	nextFrontierCheck time.Time

	nextFrontierAccount basics.Address
	nextWalletAccounts  map[WalletID]basics.Address
	walletsIterated     map[WalletID]struct{}
	skipWallets         bool
}

func makeFrontierScheduler() frontierScheduler {
	return frontierScheduler{
		walletFrontiers:    makeCementableAccounts(maxCementableFrontiers),
		ledgerFrontiers:    makeCementableAccounts(maxCementableFrontiers),
		expiredOptimistic:  makeExpiredOptimisticInfos(),
		nextWalletAccounts: make(map[WalletID]basics.Address),
		walletsIterated:    make(map[WalletID]struct{}),
	}
}

// nextAddress is the address right after a in ledger order. It reports false
// when a is the last address.
func nextAddress(a basics.Address) (basics.Address, bool) {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			return a, true
		}
	}
	return basics.Address{}, false
}

func (m *Manager) shouldDoFrontiersConfirmation() bool {
	return m.cfg.FrontiersConfirmation != config.FrontiersConfirmationDisabled &&
		m.ledger.BlockCount() >= m.ledger.BootstrapWeightMaxBlocks() &&
		m.cementer.AwaitingProcessingSize() <= confirmedFrontiersMaxPendingSize &&
		m.ledger.BlockCount() != m.ledger.CementedCount()
}

// frontiersConfirmation prioritizes accounts with uncemented blocks and
// starts elections for the ones with the most. mu must be held; it is
// released for the duration.
func (m *Manager) frontiersConfirmation() {
	interval := m.params.RequestInterval
	ledgerFactor := time.Duration(100)
	if m.roots.size() < 1000 {
		ledgerFactor = 20
	}
	ledgerTime := interval / ledgerFactor
	if m.params.IsDevNetwork() {
		ledgerTime = 50 * time.Millisecond
	}
	walletTime := interval / 250

	m.mu.Unlock()
	defer m.mu.Lock()

	m.prioritizeFrontiersForConfirmation(ledgerTime, walletTime)
	maxElections, aggressive := m.frontiersConfirmationInfo()
	if maxElections == 0 {
		return
	}
	count := 0
	m.confirmPrioritizedFrontiers(maxElections, &count)
	m.confirmExpiredFrontiersPessimistically(maxElections, &count)
	m.setNextFrontierCheck(aggressive)
}

// frontiersConfirmationInfo decides how many elections frontier confirmation
// may start this pass. Nodes voting with a sizeable representative, or set
// to always confirm frontiers, check often.
func (m *Manager) frontiersConfirmationInfo() (maxElections int, aggressive bool) {
	reps := m.wallets.Reps()
	representative := m.cfg.EnableVoting && reps.Voting > 0
	halfPrincipal := representative && reps.HalfPrincipal > 0
	aggressive = halfPrincipal || m.cfg.FrontiersConfirmation == config.FrontiersConfirmationAlways
	dev := m.params.IsDevNetwork()

	m.mu.Lock()
	defer m.mu.Unlock()
	roots := m.roots.size()
	checkTimeExceeded := !m.clock.Now().Before(m.nextFrontierCheck)
	walletsCheckRequired := (!m.skipWallets || m.walletFrontiers.size() > 0) && !aggressive
	maxActive := m.cfg.ActiveElectionsSize / 20
	lowActive := roots < maxActiveElectionsFrontierInsertion
	if roots > maxActive || !(checkTimeExceeded || walletsCheckRequired || (!dev && lowActive && aggressive)) {
		return 0, aggressive
	}
	maxElections = maxActiveElectionsFrontierInsertion
	// few live elections leave room to confirm more frontiers
	if maxActive > roots+maxElections {
		maxElections = maxActive - roots
	}
	return maxElections, aggressive
}

func (m *Manager) setNextFrontierCheck(aggressive bool) {
	next := m.params.RequestInterval * 60
	if aggressive {
		next = m.params.RequestInterval * 20
	}
	if m.params.IsDevNetwork() {
		next /= 1000
	}
	m.mu.Lock()
	m.nextFrontierCheck = m.clock.Now().Add(next)
	m.mu.Unlock()
}

// prioritizeAccount records account in container if it has uncemented
// blocks. mu must be held. It reports whether account is new to container.
func (m *Manager) prioritizeAccount(container *cementableAccounts, account basics.Address, info ledger.AccountInfo, confirmationHeight uint64) bool {
	if info.BlockCount <= confirmationHeight || m.cementer.IsProcessingBlock(info.Head) {
		return false
	}
	return container.put(account, info.BlockCount-confirmationHeight)
}

// prioritizeFrontiersForConfirmation scans wallet accounts, then ledger
// accounts, for uncemented blocks. Each scan stops after its time budget and
// resumes where it stopped on the next pass.
func (m *Manager) prioritizeFrontiersForConfirmation(ledgerTime, walletTime time.Duration) {
	if m.cementer.AwaitingProcessingSize() >= confirmedFrontiersMaxPendingSize {
		return
	}
	m.mu.Lock()
	m.expiredOptimistic.pruneBefore(m.clock.Now().Add(-expiredOptimisticInfoCutoff))
	m.mu.Unlock()

	newInserted := 0
	shouldIterate := func() bool {
		if m.stopped.Load() {
			return false
		}
		maxOptimistic := m.maxOptimistic()
		m.mu.Lock()
		defer m.mu.Unlock()
		return maxOptimistic > m.optimisticCount && maxOptimistic-m.optimisticCount > newInserted
	}
	expired := func(a basics.Address) bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.expiredOptimistic.contains(a)
	}

	if !m.skipWallets {
		ids := m.wallets.WalletIDs()
		if len(ids) == 0 {
			m.skipWallets = true
		}
		walletDeadline := timers.MakeDeadlineMonitor(m.clock, walletTime)
		for _, id := range ids {
			if !shouldIterate() {
				break
			}
			if _, done := m.walletsIterated[id]; done {
				continue
			}
			from := m.nextWalletAccounts[id]
			finished := true
		scan:
			for {
				accounts := m.wallets.WalletAccounts(id, from, frontierScanBatch)
				for _, account := range accounts {
					if !shouldIterate() {
						finished = false
						break scan
					}
					if !expired(account) {
						info, err := m.ledger.AccountInfo(account)
						conf, err2 := m.ledger.ConfirmationHeight(account)
						if err == nil && err2 == nil {
							m.mu.Lock()
							m.ledgerFrontiers.erase(account)
							if m.prioritizeAccount(m.walletFrontiers, account, info, conf.Height) {
								newInserted++
							}
							m.mu.Unlock()
						}
					}
					next, ok := nextAddress(account)
					if !ok {
						break scan
					}
					from = next
					m.nextWalletAccounts[id] = from
					if walletDeadline.Expired() {
						finished = false
						break scan
					}
				}
				if len(accounts) < frontierScanBatch {
					break
				}
			}
			if !finished {
				break
			}
			// start from the first account next time round
			m.walletsIterated[id] = struct{}{}
			delete(m.nextWalletAccounts, id)
		}
		if len(ids) > 0 && len(m.walletsIterated) >= len(ids) {
			m.walletsIterated = make(map[WalletID]struct{})
			m.skipWallets = true
		}
	}

	ledgerDeadline := timers.MakeDeadlineMonitor(m.clock, ledgerTime)
	from := m.nextFrontierAccount
	finished := false
ledgerScan:
	for shouldIterate() {
		entries, err := m.ledger.Accounts(from, frontierScanBatch)
		if err != nil {
			m.log.Warnf("frontier confirmation: reading accounts from %v: %v", from, err)
			break
		}
		for _, entry := range entries {
			if !shouldIterate() {
				break ledgerScan
			}
			account := entry.Address
			m.mu.Lock()
			skip := m.walletFrontiers.contains(account) || m.expiredOptimistic.contains(account)
			m.mu.Unlock()
			if !skip {
				if conf, err := m.ledger.ConfirmationHeight(account); err == nil {
					m.mu.Lock()
					if m.prioritizeAccount(m.ledgerFrontiers, account, entry.Info, conf.Height) {
						newInserted++
					}
					m.mu.Unlock()
				}
			}
			next, ok := nextAddress(account)
			if !ok {
				finished = true
				break ledgerScan
			}
			from = next
			if ledgerDeadline.Expired() {
				break ledgerScan
			}
		}
		if len(entries) < frontierScanBatch {
			finished = true
			break
		}
	}
	m.nextFrontierAccount = from
	// the ledger is done, wallets go first again
	if finished {
		m.nextFrontierAccount = basics.Address{}
		m.skipWallets = false
	}
}

// confirmPrioritizedFrontiers starts optimistic elections for the heads of
// the accounts with the most uncemented blocks, wallet accounts first.
func (m *Manager) confirmPrioritizedFrontiers(maxElections int, count *int) {
	maxOptimistic := m.maxOptimistic()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, container := range []*cementableAccounts{m.walletFrontiers, m.ledgerFrontiers} {
		for container.size() > 0 && !m.stopped.Load() && *count < maxElections && m.optimisticCount < maxOptimistic {
			next, _ := container.pop()
			if m.expiredOptimistic.contains(next.account) {
				continue
			}
			m.mu.Unlock()
			blk, previous, ok := m.uncementedHead(next.account)
			m.mu.Lock()
			if ok && m.insertFromFrontiersConfirmation(blk, previous, BehaviorOptimistic) {
				*count++
				stat(statFrontierConfirmation)
			}
		}
	}
}

// uncementedHead returns the head of account if it is uncemented and not
// already being cemented, with the balance before it.
func (m *Manager) uncementedHead(account basics.Address) (*blocks.Block, basics.Amount, bool) {
	info, err := m.ledger.AccountInfo(account)
	if err != nil || m.cementer.IsProcessingBlock(info.Head) {
		return nil, basics.Amount{}, false
	}
	conf, err := m.ledger.ConfirmationHeight(account)
	if err != nil || info.BlockCount <= conf.Height {
		return nil, basics.Amount{}, false
	}
	blk, err := m.ledger.Block(info.Head)
	if err != nil {
		stat(statFrontierConfirmationFail)
		return nil, basics.Amount{}, false
	}
	return blk, m.ledger.Balance(blk.Previous), true
}

// confirmExpiredFrontiersPessimistically retries the accounts whose
// optimistic election failed, one block at a time: the lowest uncemented
// block is started once everything it depends on is cemented. Accounts with
// nothing left to cement are forgotten.
func (m *Manager) confirmExpiredFrontiersPessimistically(maxElections int, count *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.expiredOptimistic.pending() {
		if m.stopped.Load() || *count >= maxElections {
			break
		}
		account := x.account
		m.mu.Unlock()
		blk, previous, uncemented, ready := m.lowestUncemented(account)
		m.mu.Lock()
		if !uncemented {
			m.expiredOptimistic.erase(account)
			continue
		}
		if !ready {
			continue
		}
		if m.insertFromFrontiersConfirmation(blk, previous, BehaviorNormal) {
			*count++
		}
		if m.expiredOptimistic.contains(account) {
			x.electionStarted = true
		}
	}
}

// lowestUncemented returns the block right above the confirmation height of
// account. uncemented is false if there is none; ready is false while the
// block is being cemented or depends on uncemented blocks.
func (m *Manager) lowestUncemented(account basics.Address) (blk *blocks.Block, previous basics.Amount, uncemented, ready bool) {
	info, err := m.ledger.AccountInfo(account)
	if err != nil {
		return
	}
	conf, err := m.ledger.ConfirmationHeight(account)
	if err != nil || info.BlockCount <= conf.Height {
		return
	}
	uncemented = true
	hash := info.OpenBlock
	if conf.Height > 0 {
		hash = m.ledger.Successor(conf.Frontier)
	}
	blk, err = m.ledger.Block(hash)
	if err != nil || m.cementer.IsProcessingBlock(hash) || !m.ledger.DependentsConfirmed(blk) {
		return blk, previous, uncemented, false
	}
	if !blk.Previous.IsZero() {
		previous = m.ledger.Balance(blk.Previous)
	}
	return blk, previous, uncemented, true
}

// insertFromFrontiersConfirmation starts an active election for blk unless
// its root has one. mu must be held.
func (m *Manager) insertFromFrontiersConfirmation(blk *blocks.Block, previous basics.Amount, behavior Behavior) bool {
	if _, ok := m.roots.find(blk.QualifiedRoot()); ok {
		return false
	}
	var action func(*blocks.Block)
	if behavior == BehaviorOptimistic {
		action = func(*blocks.Block) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.optimisticCount--
			m.updateGauges()
		}
	}
	result := m.insertImpl(blk, &previous, behavior, action)
	if !result.Inserted {
		return false
	}
	result.Election.transitionActive()
	if result.Election.optimistic() {
		m.optimisticCount++
		m.updateGauges()
	}
	return true
}
