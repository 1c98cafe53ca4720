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

package node

import (
	"bytes"

	"github.com/algorand/go-deadlock"
	"golang.org/x/exp/slices"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
)

type weightLedger interface {
	Weight(rep basics.Address) basics.Amount
}

type wallet struct {
	keys map[basics.Address]*crypto.SignatureSecrets
}

// Wallets holds the node's local keys. Every key whose account carries
// enough delegated weight acts as a voting representative.
type Wallets struct {
	ledger     weightLedger
	onlineReps elections.OnlineReps
	cfg        config.Local
	params     config.NetworkParams

	mu      deadlock.RWMutex
	wallets map[elections.WalletID]*wallet
	watched map[blocks.QualifiedRoot]struct{}
}

// MakeWallets creates an empty wallet set.
func MakeWallets(l weightLedger, onlineReps elections.OnlineReps, cfg config.Local, params config.NetworkParams) *Wallets {
	return &Wallets{
		ledger:     l,
		onlineReps: onlineReps,
		cfg:        cfg,
		params:     params,
		wallets:    make(map[elections.WalletID]*wallet),
		watched:    make(map[blocks.QualifiedRoot]struct{}),
	}
}

// Create adds an empty wallet. Creating an existing wallet is a no-op.
func (w *Wallets) Create(id elections.WalletID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.wallets[id]; !ok {
		w.wallets[id] = &wallet{keys: make(map[basics.Address]*crypto.SignatureSecrets)}
	}
}

// Insert stores secrets in wallet id, creating the wallet if needed, and
// returns the account of the key.
func (w *Wallets) Insert(id elections.WalletID, secrets *crypto.SignatureSecrets) basics.Address {
	w.Create(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	account := basics.Address(secrets.PublicKey)
	w.wallets[id].keys[account] = secrets
	return account
}

func (w *Wallets) principalWeight() basics.Amount {
	factor := w.params.PrincipalWeightFactor
	if factor == 0 {
		factor = 1
	}
	return w.onlineReps.OnlineStake().Div64(factor)
}

// eachKey calls fn for every distinct local key. w.mu must be held.
func (w *Wallets) eachKey(fn func(account basics.Address, secrets *crypto.SignatureSecrets)) {
	seen := make(map[basics.Address]struct{})
	for _, id := range w.sortedIDs() {
		for account, secrets := range w.wallets[id].keys {
			if _, ok := seen[account]; ok {
				continue
			}
			seen[account] = struct{}{}
			fn(account, secrets)
		}
	}
}

// Reps counts the local representatives by weight class
func (w *Wallets) Reps() elections.RepCounts {
	half := w.principalWeight().Div64(2)
	w.mu.RLock()
	defer w.mu.RUnlock()
	var counts elections.RepCounts
	w.eachKey(func(account basics.Address, _ *crypto.SignatureSecrets) {
		weight := w.ledger.Weight(account)
		if weight.IsZero() || weight.LessThan(w.cfg.VoteMinimum) {
			return
		}
		counts.Voting++
		if !weight.LessThan(half) {
			counts.HalfPrincipal++
		}
	})
	return counts
}

// RepExists reports whether account is a local voting representative.
func (w *Wallets) RepExists(account basics.Address) bool {
	w.mu.RLock()
	found := false
	for _, wl := range w.wallets {
		if _, ok := wl.keys[account]; ok {
			found = true
			break
		}
	}
	w.mu.RUnlock()
	if !found {
		return false
	}
	weight := w.ledger.Weight(account)
	return !weight.IsZero() && !weight.LessThan(w.cfg.VoteMinimum)
}

// VotingSecrets returns the keys allowed to vote. It is empty unless voting
// is enabled.
func (w *Wallets) VotingSecrets() []*crypto.SignatureSecrets {
	if !w.cfg.EnableVoting {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*crypto.SignatureSecrets
	w.eachKey(func(account basics.Address, secrets *crypto.SignatureSecrets) {
		weight := w.ledger.Weight(account)
		if !weight.IsZero() && !weight.LessThan(w.cfg.VoteMinimum) {
			out = append(out, secrets)
		}
	})
	return out
}

// Watch marks root as awaited by a local wallet, which keeps its election
// from being dropped when the container overflows.
func (w *Wallets) Watch(root blocks.QualifiedRoot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[root] = struct{}{}
}

// Unwatch forgets root
func (w *Wallets) Unwatch(root blocks.QualifiedRoot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, root)
}

// IsWatched reports whether root was passed to Watch and not yet forgotten.
func (w *Wallets) IsWatched(root blocks.QualifiedRoot) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watched[root]
	return ok
}

// WatchedCount is the number of watched roots
func (w *Wallets) WatchedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watched)
}

func (w *Wallets) sortedIDs() []elections.WalletID {
	ids := make([]elections.WalletID, 0, len(w.wallets))
	for id := range w.wallets {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b elections.WalletID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// WalletIDs lists the wallets in ascending order.
func (w *Wallets) WalletIDs() []elections.WalletID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sortedIDs()
}

// WalletAccounts returns up to max accounts of wallet id in ascending
// order, starting at from.
func (w *Wallets) WalletAccounts(id elections.WalletID, from basics.Address, max int) []basics.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	wl, ok := w.wallets[id]
	if !ok {
		return nil
	}
	accounts := make([]basics.Address, 0, len(wl.keys))
	for account := range wl.keys {
		if account.Less(from) {
			continue
		}
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b basics.Address) int { return bytes.Compare(a[:], b[:]) })
	if len(accounts) > max {
		accounts = accounts[:max]
	}
	return accounts
}
