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

// Package ledger stores account chains of state blocks, tracks representative
// weights and receivable sends, and records how much of each chain is
// cemented.
package ledger

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/protocol"
	"github.com/algorand/go-blocklattice/util/kvstore"
	"github.com/algorand/go-blocklattice/util/metrics"
)

var ledgerBlockCount = metrics.MakeGauge(metrics.LedgerBlockCount)
var ledgerCementedCount = metrics.MakeGauge(metrics.LedgerCementedCount)
var ledgerBlocksProcessed = metrics.MakeCounter(metrics.BlocksProcessedTotal)

// Genesis is the first block of the ledger. It opens the genesis account with
// the whole supply and is cemented from the start. The genesis account also
// signs epoch upgrade blocks.
type Genesis struct {
	Block blocks.Block
}

// MakeGenesis builds a genesis block for the account of secrets.
func MakeGenesis(secrets *crypto.SignatureSecrets, supply basics.Amount) Genesis {
	blk := blocks.Block{
		Account:        basics.Address(secrets.PublicKey),
		Representative: basics.Address(secrets.PublicKey),
		Balance:        supply,
	}
	blk.Sign(secrets)
	return Genesis{Block: blk}
}

// Account is the genesis account
func (g Genesis) Account() basics.Address {
	return g.Block.Account
}

// EpochLink is the link value that marks an epoch upgrade block to epoch e.
func EpochLink(e basics.Epoch) (link crypto.Digest) {
	copy(link[:], fmt.Sprintf("epoch v%d block", int(e)-int(basics.Epoch0)))
	return
}

func epochOfLink(link crypto.Digest) basics.Epoch {
	for e := basics.Epoch1; e <= basics.EpochMax; e++ {
		if link == EpochLink(e) {
			return e
		}
	}
	return basics.EpochInvalid
}

// Ledger is the block store shared by the node components. Writes are
// serialized; reads run against the last committed state without locking.
type Ledger struct {
	kv  kvstore.KVStore
	log logging.Logger

	thresholds               work.Thresholds
	genesis                  blocks.Block
	bootstrapWeightMaxBlocks uint64

	// writeMu serializes Process, Rollback, Update and cementing.
	writeMu deadlock.Mutex

	weights       repWeights
	blockCount    atomic.Uint64
	cementedCount atomic.Uint64
}

// OpenLedger opens or creates the ledger stored at dbPathPrefix. A new ledger
// is initialized with genesis; an existing one must have been created from
// the same genesis.
func OpenLedger(log logging.Logger, dbPathPrefix string, inMem bool, genesis Genesis, params config.NetworkParams) (*Ledger, error) {
	kv, err := kvstore.NewKVStore("pebble", dbPathPrefix, inMem)
	if err != nil {
		return nil, fmt.Errorf("cannot open ledger store: %w", err)
	}
	l := &Ledger{
		kv:                       kv,
		log:                      log,
		thresholds:               params.Thresholds,
		genesis:                  genesis.Block,
		bootstrapWeightMaxBlocks: params.BootstrapWeightMaxBlocks,
	}
	l.weights.init()

	err = l.initGenesis()
	if err == nil {
		err = l.loadCaches()
	}
	if err != nil {
		kv.Close()
		return nil, err
	}
	l.log.Infof("ledger opened: %d blocks, %d cemented", l.BlockCount(), l.CementedCount())
	return l, nil
}

func (l *Ledger) initGenesis() error {
	hash := l.genesis.Hash()
	stored, err := l.kv.Get(genesisKey)
	if err == nil {
		if crypto.Digest(stored) != hash {
			return fmt.Errorf("ledger was created with genesis %v, not %v", crypto.Digest(stored), hash)
		}
		return nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return err
	}

	tx := l.newWriteTxn()
	account := l.genesis.Account
	tx.putBlock(hash, &storedBlock{
		Block:    l.genesis,
		Sideband: blocks.Sideband{Height: 1, Details: basics.BlockDetails{Epoch: basics.Epoch0}},
	})
	tx.putAccount(account, AccountInfo{
		Head:           hash,
		Representative: l.genesis.Representative,
		OpenBlock:      hash,
		Balance:        l.genesis.Balance,
		BlockCount:     1,
		Epoch:          basics.Epoch0,
	})
	tx.putConfirmationHeight(account, ConfirmationHeightInfo{Height: 1, Frontier: hash})
	tx.set(genesisKey, hash[:])
	return tx.commit(l.kv)
}

func (l *Ledger) loadCaches() error {
	var blockCount, cemented uint64
	it := l.kv.NewIterator([]byte{prefixAccount}, []byte{prefixAccount + 1})
	for ; it.Valid(); it.Next() {
		v, err := it.Value()
		if err != nil {
			it.Close()
			return err
		}
		var info AccountInfo
		err = protocol.Decode(v, &info)
		if err != nil {
			it.Close()
			return fmt.Errorf("corrupt account record %x: %w", it.Key(), err)
		}
		l.weights.add(info.Representative, info.Balance)
		blockCount += info.BlockCount
	}
	it.Close()

	it = l.kv.NewIterator([]byte{prefixConfirm}, []byte{prefixConfirm + 1})
	for ; it.Valid(); it.Next() {
		v, err := it.Value()
		if err != nil {
			it.Close()
			return err
		}
		var info ConfirmationHeightInfo
		err = protocol.Decode(v, &info)
		if err != nil {
			it.Close()
			return fmt.Errorf("corrupt confirmation height record %x: %w", it.Key(), err)
		}
		cemented += info.Height
	}
	it.Close()

	l.blockCount.Store(blockCount)
	l.cementedCount.Store(cemented)
	ledgerBlockCount.Set(float64(blockCount))
	ledgerCementedCount.Set(float64(cemented))
	return nil
}

// Close releases the store
func (l *Ledger) Close() {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	err := l.kv.Close()
	if err != nil {
		l.log.Warnf("ledger close: %v", err)
	}
}

func (l *Ledger) newWriteTxn() *txn {
	return &txn{
		r:       l.kv,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// view runs fn against a consistent snapshot of the ledger.
func (l *Ledger) view(fn func(tx *txn) error) error {
	snap := l.kv.NewSnapshot()
	defer snap.Close()
	return fn(&txn{r: snap})
}

// current reads the latest committed state key by key.
func (l *Ledger) current() *txn {
	return &txn{r: l.kv}
}

func (l *Ledger) commit(tx *txn) error {
	err := tx.commit(l.kv)
	if err != nil {
		return err
	}
	l.weights.apply(tx.weightDeltas)
	if tx.blockDelta != 0 {
		n := l.blockCount.Add(uint64(tx.blockDelta))
		ledgerBlockCount.Set(float64(n))
	}
	if tx.cementedDelta != 0 {
		n := l.cementedCount.Add(uint64(tx.cementedDelta))
		ledgerCementedCount.Set(float64(n))
	}
	return nil
}

// Update runs fn inside an exclusive write transaction and commits its
// changes if fn returns nil. fn must not call back into the ledger.
func (l *Ledger) Update(fn func(tx *WriteTxn) error) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	tx := l.newWriteTxn()
	err := fn(&WriteTxn{tx: tx, l: l})
	if err != nil {
		return err
	}
	return l.commit(tx)
}

// GenesisHash is the hash of the genesis block
func (l *Ledger) GenesisHash() crypto.Digest {
	return l.genesis.Hash()
}

// Thresholds are the work thresholds blocks are validated against
func (l *Ledger) Thresholds() work.Thresholds {
	return l.thresholds
}

// Weight is the voting weight delegated to rep
func (l *Ledger) Weight(rep basics.Address) basics.Amount {
	return l.weights.get(rep)
}

// BlockCount is the number of blocks in the ledger
func (l *Ledger) BlockCount() uint64 {
	return l.blockCount.Load()
}

// CementedCount is the number of cemented blocks in the ledger
func (l *Ledger) CementedCount() uint64 {
	return l.cementedCount.Load()
}

// BootstrapWeightMaxBlocks is the block count below which the ledger is
// considered to be bootstrapping.
func (l *Ledger) BootstrapWeightMaxBlocks() uint64 {
	return l.bootstrapWeightMaxBlocks
}

// BlockExists reports whether block h is stored
func (l *Ledger) BlockExists(h crypto.Digest) bool {
	return l.current().blockExists(h)
}

// Block returns block h with its sideband
func (l *Ledger) Block(h crypto.Digest) (*blocks.Block, error) {
	sb, err := l.current().block(h)
	if err != nil {
		return nil, err
	}
	return sb.withSideband(), nil
}

// Successor returns the block following h in its chain, or the zero digest.
func (l *Ledger) Successor(h crypto.Digest) crypto.Digest {
	sb, err := l.current().block(h)
	if err != nil {
		return crypto.Digest{}
	}
	return sb.Successor
}

// Balance is the balance of the account after block h. The zero digest and
// unknown blocks have balance zero.
func (l *Ledger) Balance(h crypto.Digest) basics.Amount {
	bal, err := l.current().balance(h)
	if err != nil {
		return basics.Amount{}
	}
	return bal
}

// AccountBalance is the current balance of an account
func (l *Ledger) AccountBalance(a basics.Address) basics.Amount {
	info, err := l.AccountInfo(a)
	if err != nil {
		return basics.Amount{}
	}
	return info.Balance
}

// AccountInfo returns the state of account a, or ErrAccountNotFound.
func (l *Ledger) AccountInfo(a basics.Address) (AccountInfo, error) {
	info, ok, err := l.current().account(a)
	if err != nil {
		return AccountInfo{}, err
	}
	if !ok {
		return AccountInfo{}, ErrAccountNotFound
	}
	return info, nil
}

// ConfirmationHeight returns the cemented prefix of account a. Unknown
// accounts have height zero.
func (l *Ledger) ConfirmationHeight(a basics.Address) (ConfirmationHeightInfo, error) {
	return l.current().confirmationHeight(a)
}

// Pending returns the receivable send h to dest, if it exists.
func (l *Ledger) Pending(dest basics.Address, h crypto.Digest) (PendingInfo, bool) {
	info, ok, err := l.current().pending(dest, h)
	if err != nil {
		return PendingInfo{}, false
	}
	return info, ok
}

// BlockConfirmed reports whether block h is cemented
func (l *Ledger) BlockConfirmed(h crypto.Digest) bool {
	var confirmed bool
	l.view(func(tx *txn) error {
		confirmed = tx.blockConfirmed(h)
		return nil
	})
	return confirmed
}

// DependentsConfirmed reports whether every block blk depends on is cemented.
func (l *Ledger) DependentsConfirmed(blk *blocks.Block) bool {
	var confirmed bool
	l.view(func(tx *txn) error {
		if !blk.HasSideband() {
			sb, err := tx.block(blk.Hash())
			if err != nil {
				return err
			}
			blk = sb.withSideband()
		}
		confirmed = tx.dependentsConfirmed(blk)
		return nil
	})
	return confirmed
}

// BlockDestination returns the receiving account of a send, or the zero
// address for any other block.
func (l *Ledger) BlockDestination(blk *blocks.Block) basics.Address {
	if l.isSend(blk) {
		return blk.LinkAsAccount()
	}
	return basics.Address{}
}

// BlockSource returns the send a receive block receives, or the zero digest.
func (l *Ledger) BlockSource(blk *blocks.Block) crypto.Digest {
	if l.isSend(blk) || epochOfLink(blk.Link) != basics.EpochInvalid {
		return crypto.Digest{}
	}
	return blk.Link
}

func (l *Ledger) isSend(blk *blocks.Block) bool {
	if blk.HasSideband() {
		return blk.Sideband.Details.IsSend
	}
	if blk.Previous.IsZero() {
		return false
	}
	return blk.Balance.LessThan(l.Balance(blk.Previous))
}

// Accounts returns up to max accounts in address order, starting at from.
func (l *Ledger) Accounts(from basics.Address, max int) ([]AccountEntry, error) {
	var out []AccountEntry
	err := l.view(func(tx *txn) error {
		it := tx.r.NewIterator(accountKey(from), []byte{prefixAccount + 1})
		defer it.Close()
		for ; it.Valid() && len(out) < max; it.Next() {
			v, err := it.Value()
			if err != nil {
				return err
			}
			var e AccountEntry
			copy(e.Address[:], it.Key()[1:])
			err = protocol.Decode(v, &e.Info)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// repWeights is the in-memory sum of balances delegated to each representative.
type repWeights struct {
	mu deadlock.RWMutex
	m  map[basics.Address]basics.Amount
}

func (rw *repWeights) init() {
	rw.m = make(map[basics.Address]basics.Amount)
}

func (rw *repWeights) get(rep basics.Address) basics.Amount {
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	return rw.m[rep]
}

func (rw *repWeights) add(rep basics.Address, amount basics.Amount) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.m[rep] = rw.m[rep].Add(amount)
}

func (rw *repWeights) apply(deltas []weightDelta) {
	if len(deltas) == 0 {
		return
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	for _, d := range deltas {
		if d.add {
			rw.m[d.rep] = rw.m[d.rep].Add(d.amount)
			continue
		}
		w := rw.m[d.rep].Sub(d.amount)
		if w.IsZero() {
			delete(rw.m, d.rep)
		} else {
			rw.m[d.rep] = w
		}
	}
}
