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
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/voting"
)

// Ledger is the read side of the ledger the elections consult, plus the
// write transaction restart uses to replace a block's work. Reads must not
// take locks the ledger's writers hold while calling back into the manager.
type Ledger interface {
	Weight(rep basics.Address) basics.Amount
	Balance(h crypto.Digest) basics.Amount
	BlockExists(h crypto.Digest) bool
	Block(h crypto.Digest) (*blocks.Block, error)
	Successor(h crypto.Digest) crypto.Digest
	AccountInfo(a basics.Address) (ledger.AccountInfo, error)
	ConfirmationHeight(a basics.Address) (ledger.ConfirmationHeightInfo, error)
	BlockConfirmed(h crypto.Digest) bool
	DependentsConfirmed(blk *blocks.Block) bool
	BlockDestination(blk *blocks.Block) basics.Address
	Accounts(from basics.Address, max int) ([]ledger.AccountEntry, error)
	BlockCount() uint64
	CementedCount() uint64
	BootstrapWeightMaxBlocks() uint64
	Thresholds() work.Thresholds
	Update(fn func(tx *ledger.WriteTxn) error) error
}

// Cementer raises confirmation heights for confirmed winners. Its observers
// run on the cementer's goroutine without any cementer lock held.
type Cementer interface {
	AddCementedObserver(fn func(*blocks.Block))
	AddBlockAlreadyCementedObserver(fn func(crypto.Digest))
	Add(h crypto.Digest)
	IsProcessingBlock(h crypto.Digest) bool
	IsProcessingAddedBlock(h crypto.Digest) bool
	AwaitingProcessingSize() int
}

// BlockProcessor accepts blocks that must replace whatever the ledger holds
// for their root.
type BlockProcessor interface {
	Force(blk *blocks.Block)
}

// Representative is a principal representative the node has a channel to.
type Representative struct {
	Account basics.Address
	Weight  basics.Amount
	Channel string
}

// HashRoot is one entry of a confirmation request.
type HashRoot struct {
	Hash crypto.Digest
	Root crypto.Digest
}

// Network is the message layer the elections send through. None of its
// methods may call back into the manager synchronously.
type Network interface {
	// PrincipalRepresentatives lists the reachable principal representatives,
	// heaviest first.
	PrincipalRepresentatives() []Representative
	SendConfirmReq(channel string, req []HashRoot)
	SendBlock(channel string, blk *blocks.Block)
	// FloodBlock and FloodVote send to a scale-sized fraction of the peers.
	FloodBlock(blk *blocks.Block, scale float64)
	FloodVote(v *voting.Vote, scale float64)
	// ClearPublishFilter lets blk be published again after its election ended.
	ClearPublishFilter(blk *blocks.Block)
}

// RepCounts counts the local representatives by weight class.
type RepCounts struct {
	// Voting representatives hold at least the configured vote minimum.
	Voting int
	// HalfPrincipal representatives hold at least half a principal's weight.
	HalfPrincipal int
}

// WalletID identifies a local wallet.
type WalletID = crypto.Digest

// Wallets is the node's view of its local wallets and representatives.
type Wallets interface {
	Reps() RepCounts
	// RepExists reports whether account is a local representative.
	RepExists(account basics.Address) bool
	// IsWatched reports whether a local wallet waits on root's election.
	IsWatched(root blocks.QualifiedRoot) bool
	// WalletIDs lists the wallets in a stable order.
	WalletIDs() []WalletID
	// WalletAccounts returns up to max accounts of wallet id, in ascending
	// order, starting at from.
	WalletAccounts(id WalletID, from basics.Address, max int) []basics.Address
}

// OnlineReps estimates the voting weight currently online.
type OnlineReps interface {
	OnlineStake() basics.Amount
}
