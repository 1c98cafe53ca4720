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
	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
)

type observers struct {
	mu             deadlock.RWMutex
	blocks         []func(ConfirmedBlock)
	accountBalance []func(account basics.Address, pending bool)
	activeStopped  []func(hash crypto.Digest)
	difficulty     []func(difficulty uint64)
}

// AddBlockObserver registers fn to be told about every cemented block.
func (m *Manager) AddBlockObserver(fn func(ConfirmedBlock)) {
	m.observers.mu.Lock()
	defer m.observers.mu.Unlock()
	m.observers.blocks = append(m.observers.blocks, fn)
}

// AddAccountBalanceObserver registers fn to be told about accounts whose
// balance, or receivable balance if pending is set, changed.
func (m *Manager) AddAccountBalanceObserver(fn func(account basics.Address, pending bool)) {
	m.observers.mu.Lock()
	defer m.observers.mu.Unlock()
	m.observers.accountBalance = append(m.observers.accountBalance, fn)
}

// AddActiveStoppedObserver registers fn to be told about candidates that
// leave the elections without being confirmed.
func (m *Manager) AddActiveStoppedObserver(fn func(hash crypto.Digest)) {
	m.observers.mu.Lock()
	defer m.observers.mu.Unlock()
	m.observers.activeStopped = append(m.observers.activeStopped, fn)
}

// AddDifficultyObserver registers fn to be told the active difficulty after
// every request loop pass.
func (m *Manager) AddDifficultyObserver(fn func(difficulty uint64)) {
	m.observers.mu.Lock()
	defer m.observers.mu.Unlock()
	m.observers.difficulty = append(m.observers.difficulty, fn)
}

func (m *Manager) notifyBlock(b ConfirmedBlock) {
	m.observers.mu.RLock()
	fns := m.observers.blocks
	m.observers.mu.RUnlock()
	for _, fn := range fns {
		fn(b)
	}
}

func (m *Manager) notifyAccountBalance(account basics.Address, pending bool) {
	m.observers.mu.RLock()
	fns := m.observers.accountBalance
	m.observers.mu.RUnlock()
	for _, fn := range fns {
		fn(account, pending)
	}
}

func (m *Manager) notifyActiveStopped(hash crypto.Digest) {
	m.observers.mu.RLock()
	fns := m.observers.activeStopped
	m.observers.mu.RUnlock()
	for _, fn := range fns {
		fn(hash)
	}
}

func (m *Manager) notifyDifficulty(difficulty uint64) {
	m.observers.mu.RLock()
	fns := m.observers.difficulty
	m.observers.mu.RUnlock()
	for _, fn := range fns {
		fn(difficulty)
	}
}
