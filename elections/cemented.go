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

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// blockProcessorBatchMaxTime is how long a confirmed winner may take to
// reach the ledger, in units of four retry intervals.
const blockProcessorBatchMaxTime = 500 * time.Millisecond

// processConfirmed hands a confirmed winner to the cementer once the block
// processor stored it. Winners that never show up in the ledger are
// forgotten.
func (m *Manager) processConfirmed(status Status, iteration int) {
	m.dispatch(func() { m.processConfirmedNow(status, iteration) })
}

func (m *Manager) processConfirmedNow(status Status, iteration int) {
	hash := status.Winner.Hash()
	if m.ledger.BlockExists(hash) {
		m.cementer.Add(hash)
		return
	}
	interval := m.params.ProcessConfirmedInterval
	maxIterations := 4
	if interval > 0 {
		maxIterations = int(blockProcessorBatchMaxTime/interval) * 4
	}
	if iteration >= maxIterations {
		m.removeElectionWinnerDetails(hash)
		return
	}
	time.AfterFunc(interval, func() {
		if !m.stopped.Load() {
			m.processConfirmed(status, iteration+1)
		}
	})
}

func (m *Manager) removeElectionWinnerDetails(hash crypto.Digest) {
	m.winnersMu.Lock()
	defer m.winnersMu.Unlock()
	delete(m.winners, hash)
}

// confirmBlock classifies a block the cementer just cemented. Blocks that
// lost their election are not reported.
func (m *Manager) confirmBlock(blk *blocks.Block) (StatusType, bool) {
	hash := blk.Hash()
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.blocks[hash]
	if !ok {
		return StatusInactiveConfirmationHeight, true
	}
	e := m.elections.get(h)
	if e.winnerHash() != hash {
		return 0, false
	}
	if !e.confirmed() {
		e.confirmOnce(StatusActiveConfirmationHeight)
		return StatusActiveConfirmationHeight, true
	}
	return StatusActiveConfirmedQuorum, true
}

// confirmedData derives what a cemented block did to balances.
func (m *Manager) confirmedData(blk *blocks.Block) (amount basics.Amount, isSend bool, pending basics.Address) {
	var previous basics.Amount
	if !blk.Previous.IsZero() {
		previous = m.ledger.Balance(blk.Previous)
	}
	if blk.Balance.LessThan(previous) {
		return previous.Sub(blk.Balance), true, blk.LinkAsAccount()
	}
	return blk.Balance.Sub(previous), false, basics.Address{}
}

// blockCemented runs for every block the cementer cements, dependencies
// first.
func (m *Manager) blockCemented(blk *blocks.Block) {
	hash := blk.Hash()
	t := StatusActiveConfirmedQuorum
	if !m.cementer.IsProcessingAddedBlock(hash) {
		var ok bool
		if t, ok = m.confirmBlock(blk); !ok {
			return
		}
	}

	if t == StatusInactiveConfirmationHeight {
		amount, isSend, _ := m.confirmedData(blk)
		m.notifyBlock(ConfirmedBlock{
			Status: Status{
				Winner:     blk,
				Start:      m.clock.Now(),
				BlockCount: 1,
				Type:       t,
			},
			Account: blk.Account,
			Amount:  amount,
			IsSend:  isSend,
		})
	} else {
		m.winnersMu.Lock()
		e, ok := m.winners[hash]
		delete(m.winners, hash)
		m.winnersMu.Unlock()
		if ok {
			m.cementedWinner(e, blk, t)
		}
	}

	// next-block activation waits until the hardcoded bootstrap blocks are
	// cemented so very long chains confirm without interference
	if m.ledger.CementedCount() < m.ledger.BootstrapWeightMaxBlocks() {
		return
	}
	if t != StatusActiveConfirmedQuorum && t != StatusActiveConfirmationHeight {
		return
	}
	if m.Size() >= maxActiveElectionsFrontierInsertion/2 {
		return
	}
	m.Activate(blk.Account)
	if dest := m.ledger.BlockDestination(blk); !dest.IsZero() && dest != blk.Account {
		m.Activate(dest)
	}
}

func (m *Manager) cementedWinner(e *Election, blk *blocks.Block, t StatusType) {
	hash := blk.Hash()
	m.mu.Lock()
	if !e.confirmed() || e.winnerHash() != hash {
		m.mu.Unlock()
		return
	}
	m.recentlyCemented.add(e.status)
	m.mu.Unlock()

	amount, isSend, pending := m.confirmedData(blk)

	m.mu.Lock()
	e.status.Type = t
	status := e.status
	m.mu.Unlock()

	m.notifyBlock(ConfirmedBlock{Status: status, Account: blk.Account, Amount: amount, IsSend: isSend})
	if !amount.IsZero() {
		m.notifyAccountBalance(blk.Account, false)
		if !pending.IsZero() {
			m.notifyAccountBalance(pending, true)
		}
	}
}

// blockAlreadyCemented runs when the cementer is handed a block that was
// cemented before. Its callbacks already ran, possibly before the winner
// was recorded, so only the record is left to drop.
func (m *Manager) blockAlreadyCemented(hash crypto.Digest) {
	m.removeElectionWinnerDetails(hash)
}
