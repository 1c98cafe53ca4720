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
	"time"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// Process validates blk against the ledger and appends it to its account
// chain. It returns a copy of blk carrying the sideband the ledger assigned.
func (l *Ledger) Process(blk *blocks.Block) (*blocks.Block, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx := l.newWriteTxn()
	out, err := l.process(tx, blk)
	if err != nil {
		return nil, err
	}
	err = l.commit(tx)
	if err != nil {
		return nil, err
	}
	ledgerBlocksProcessed.Inc()
	return out, nil
}

func (l *Ledger) process(tx *txn, blk *blocks.Block) (*blocks.Block, error) {
	hash := blk.Hash()
	if tx.blockExists(hash) {
		return nil, ErrOld
	}
	if epoch := epochOfLink(blk.Link); epoch != basics.EpochInvalid {
		return l.processEpoch(tx, blk, hash, epoch)
	}
	return l.processState(tx, blk, hash)
}

func (l *Ledger) processState(tx *txn, blk *blocks.Block, hash crypto.Digest) (*blocks.Block, error) {
	if !crypto.PublicKey(blk.Account).VerifyBytes(hash[:], blk.Signature) {
		return nil, ErrBadSignature
	}
	if blk.Account.IsZero() {
		return nil, ErrBurnAccount
	}

	info, exists, err := tx.account(blk.Account)
	if err != nil {
		return nil, err
	}

	epoch := basics.Epoch0
	var isSend, isReceive bool
	amount := blk.Balance
	if exists {
		epoch = info.Epoch
		if blk.Previous.IsZero() {
			return nil, ErrFork
		}
		if !tx.blockExists(blk.Previous) {
			return nil, ErrGapPrevious
		}
		isSend = blk.Balance.LessThan(info.Balance)
		isReceive = !isSend && !blk.Link.IsZero()
		if isSend {
			amount = info.Balance.Sub(blk.Balance)
		} else {
			amount = blk.Balance.Sub(info.Balance)
		}
		if blk.Previous != info.Head {
			return nil, ErrFork
		}
	} else {
		if !blk.Previous.IsZero() {
			return nil, ErrGapPrevious
		}
		isReceive = true
		if blk.Link.IsZero() {
			return nil, ErrGapSource
		}
	}

	if !isSend {
		if !blk.Link.IsZero() {
			if !tx.blockExists(blk.Link) {
				return nil, ErrGapSource
			}
			pending, ok, err := tx.pending(blk.Account, blk.Link)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrUnreceivable
			}
			if amount != pending.Amount {
				return nil, ErrBalanceMismatch
			}
			if pending.Epoch > epoch {
				epoch = pending.Epoch
			}
		} else if !amount.IsZero() {
			return nil, ErrBalanceMismatch
		}
	}

	details := basics.BlockDetails{Epoch: epoch, IsSend: isSend, IsReceive: isReceive}
	if blk.Difficulty() < l.thresholds.Threshold(details) {
		return nil, ErrInsufficientWork
	}

	if exists {
		tx.subWeight(info.Representative, info.Balance)
	}
	tx.addWeight(blk.Representative, blk.Balance)

	if isSend {
		tx.putObj(pendingKey(blk.LinkAsAccount(), hash), &PendingInfo{Source: blk.Account, Amount: amount, Epoch: epoch})
	} else if !blk.Link.IsZero() {
		tx.del(pendingKey(blk.Account, blk.Link))
	}

	return l.append(tx, blk, hash, info, exists, details, blk.Balance)
}

func (l *Ledger) processEpoch(tx *txn, blk *blocks.Block, hash crypto.Digest, epoch basics.Epoch) (*blocks.Block, error) {
	if !crypto.PublicKey(l.genesis.Account).VerifyBytes(hash[:], blk.Signature) {
		return nil, ErrBadSignature
	}
	if blk.Account.IsZero() {
		return nil, ErrBurnAccount
	}

	info, exists, err := tx.account(blk.Account)
	if err != nil {
		return nil, err
	}
	if exists {
		if blk.Previous.IsZero() || blk.Previous != info.Head {
			return nil, ErrFork
		}
		if blk.Representative != info.Representative {
			return nil, ErrRepresentativeMismatch
		}
		if epoch != info.Epoch+1 {
			return nil, ErrBlockPosition
		}
	} else {
		if !blk.Previous.IsZero() {
			return nil, ErrGapPrevious
		}
		if !blk.Representative.IsZero() {
			return nil, ErrRepresentativeMismatch
		}
		if !tx.anyPending(blk.Account) {
			return nil, ErrBlockPosition
		}
	}
	if blk.Balance != info.Balance {
		return nil, ErrBalanceMismatch
	}

	details := basics.BlockDetails{Epoch: epoch, IsEpoch: true}
	if blk.Difficulty() < l.thresholds.Threshold(details) {
		return nil, ErrInsufficientWork
	}
	return l.append(tx, blk, hash, info, exists, details, info.Balance)
}

// append stores blk as the new head of its account chain.
func (l *Ledger) append(tx *txn, blk *blocks.Block, hash crypto.Digest, info AccountInfo, exists bool, details basics.BlockDetails, balance basics.Amount) (*blocks.Block, error) {
	now := time.Now().Unix()
	sideband := blocks.Sideband{
		Height:    info.BlockCount + 1,
		Timestamp: now,
		Details:   details,
	}
	stored := &storedBlock{Block: *blk, Sideband: sideband}
	stored.Block.Sideband = nil
	tx.putBlock(hash, stored)

	if exists {
		prev, err := tx.block(blk.Previous)
		if err != nil {
			return nil, err
		}
		prev.Successor = hash
		tx.putBlock(blk.Previous, prev)
	} else {
		tx.putConfirmationHeight(blk.Account, ConfirmationHeightInfo{})
	}

	open := info.OpenBlock
	if open.IsZero() {
		open = hash
	}
	tx.putAccount(blk.Account, AccountInfo{
		Head:           hash,
		Representative: blk.Representative,
		OpenBlock:      open,
		Balance:        balance,
		Modified:       now,
		BlockCount:     info.BlockCount + 1,
		Epoch:          details.Epoch,
	})
	tx.blockDelta++
	return stored.withSideband(), nil
}
