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

package ledger

import (
	"errors"
	"fmt"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/protocol"
	"github.com/algorand/go-blocklattice/util/kvstore"
)

type kvReader interface {
	Get([]byte) ([]byte, error)
	NewIterator(start, end []byte) kvstore.Iterator
}

// txn reads through an optional overlay of uncommitted writes. Read-only
// transactions have no overlay and read from a snapshot.
type txn struct {
	r kvReader

	writes  map[string][]byte
	deletes map[string]struct{}

	weightDeltas  []weightDelta
	blockDelta    int64
	cementedDelta int64
}

type weightDelta struct {
	rep    basics.Address
	amount basics.Amount
	add    bool
}

func (tx *txn) writable() bool {
	return tx.writes != nil
}

func (tx *txn) get(key []byte) ([]byte, error) {
	if tx.writable() {
		if _, ok := tx.deletes[string(key)]; ok {
			return nil, kvstore.ErrNotFound
		}
		if v, ok := tx.writes[string(key)]; ok {
			return v, nil
		}
	}
	return tx.r.Get(key)
}

func (tx *txn) set(key, value []byte) {
	delete(tx.deletes, string(key))
	tx.writes[string(key)] = value
}

func (tx *txn) del(key []byte) {
	delete(tx.writes, string(key))
	tx.deletes[string(key)] = struct{}{}
}

func (tx *txn) getObj(key []byte, obj interface{}) (bool, error) {
	v, err := tx.get(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = protocol.Decode(v, obj)
	if err != nil {
		return false, fmt.Errorf("decoding %x: %w", key, err)
	}
	return true, nil
}

func (tx *txn) putObj(key []byte, obj interface{}) {
	tx.set(key, protocol.Encode(obj))
}

func (tx *txn) block(h crypto.Digest) (*storedBlock, error) {
	var sb storedBlock
	ok, err := tx.getObj(blockKey(h), &sb)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBlockNotFound{Hash: h}
	}
	return &sb, nil
}

func (tx *txn) blockExists(h crypto.Digest) bool {
	_, err := tx.get(blockKey(h))
	return err == nil
}

func (tx *txn) putBlock(h crypto.Digest, sb *storedBlock) {
	tx.putObj(blockKey(h), sb)
}

func (tx *txn) account(a basics.Address) (AccountInfo, bool, error) {
	var info AccountInfo
	ok, err := tx.getObj(accountKey(a), &info)
	return info, ok, err
}

func (tx *txn) putAccount(a basics.Address, info AccountInfo) {
	tx.putObj(accountKey(a), &info)
}

func (tx *txn) confirmationHeight(a basics.Address) (ConfirmationHeightInfo, error) {
	var info ConfirmationHeightInfo
	_, err := tx.getObj(confirmKey(a), &info)
	return info, err
}

func (tx *txn) putConfirmationHeight(a basics.Address, info ConfirmationHeightInfo) {
	tx.putObj(confirmKey(a), &info)
}

func (tx *txn) pending(dest basics.Address, send crypto.Digest) (PendingInfo, bool, error) {
	var info PendingInfo
	ok, err := tx.getObj(pendingKey(dest, send), &info)
	return info, ok, err
}

func (tx *txn) anyPending(dest basics.Address) bool {
	prefix := pendingPrefix(dest)
	for k := range tx.writes {
		if len(k) > len(prefix) && k[:len(prefix)] == string(prefix) {
			return true
		}
	}
	it := tx.r.NewIterator(prefix, kvstore.PrefixEnd(prefix))
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if _, deleted := tx.deletes[string(it.Key())]; !deleted {
			return true
		}
	}
	return false
}

// balance is the account balance after block h; the zero hash has balance zero.
func (tx *txn) balance(h crypto.Digest) (basics.Amount, error) {
	if h.IsZero() {
		return basics.Amount{}, nil
	}
	sb, err := tx.block(h)
	if err != nil {
		return basics.Amount{}, err
	}
	return sb.Block.Balance, nil
}

func (tx *txn) blockConfirmed(h crypto.Digest) bool {
	sb, err := tx.block(h)
	if err != nil {
		return false
	}
	conf, err := tx.confirmationHeight(sb.Block.Account)
	if err != nil {
		return false
	}
	return conf.Height >= sb.Sideband.Height
}

// dependencies are the blocks that must be cemented before blk: its previous
// block and, for a receive, the send it receives.
func dependencies(blk *blocks.Block) []crypto.Digest {
	deps := []crypto.Digest{blk.Previous}
	if blk.HasSideband() && blk.Sideband.Details.IsReceive {
		deps = append(deps, blk.Link)
	}
	return deps
}

func (tx *txn) dependentsConfirmed(blk *blocks.Block) bool {
	for _, dep := range dependencies(blk) {
		if !dep.IsZero() && !tx.blockConfirmed(dep) {
			return false
		}
	}
	return true
}

func (tx *txn) addWeight(rep basics.Address, amount basics.Amount) {
	tx.weightDeltas = append(tx.weightDeltas, weightDelta{rep: rep, amount: amount, add: true})
}

func (tx *txn) subWeight(rep basics.Address, amount basics.Amount) {
	tx.weightDeltas = append(tx.weightDeltas, weightDelta{rep: rep, amount: amount})
}

func (tx *txn) commit(kv kvstore.KVStore) error {
	batch := kv.NewBatch()
	for k, v := range tx.writes {
		err := batch.Set([]byte(k), v)
		if err != nil {
			batch.Cancel()
			return err
		}
	}
	for k := range tx.deletes {
		err := batch.Delete([]byte(k))
		if err != nil {
			batch.Cancel()
			return err
		}
	}
	return batch.Commit()
}

// WriteTxn is an exclusive read-write view of the ledger. Changes become
// visible to readers only when the function passed to Ledger.Update returns
// without error.
type WriteTxn struct {
	tx *txn
	l  *Ledger
}

// Block returns the stored block h with its sideband
func (w *WriteTxn) Block(h crypto.Digest) (*blocks.Block, error) {
	sb, err := w.tx.block(h)
	if err != nil {
		return nil, err
	}
	return sb.withSideband(), nil
}

// SetBlockWork rewrites the work of stored block h. Nothing else changes.
func (w *WriteTxn) SetBlockWork(h crypto.Digest, nonce uint64) error {
	sb, err := w.tx.block(h)
	if err != nil {
		return err
	}
	sb.Block.Work = nonce
	w.tx.putBlock(h, sb)
	return nil
}

// Balance returns the account balance after block h
func (w *WriteTxn) Balance(h crypto.Digest) basics.Amount {
	bal, err := w.tx.balance(h)
	if err != nil {
		return basics.Amount{}
	}
	return bal
}

// BlockConfirmed reports whether block h is cemented
func (w *WriteTxn) BlockConfirmed(h crypto.Digest) bool {
	return w.tx.blockConfirmed(h)
}
