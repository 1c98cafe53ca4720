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

// Rollback removes block h and every block after it in its account chain,
// along with any receive of a removed send. It refuses to remove cemented
// blocks. The removed blocks are returned, most recent first.
func (l *Ledger) Rollback(h crypto.Digest) ([]*blocks.Block, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx := l.newWriteTxn()
	var list []*blocks.Block
	err := l.rollback(tx, h, &list)
	if err != nil {
		return nil, err
	}
	err = l.commit(tx)
	if err != nil {
		return nil, err
	}
	l.log.Infof("rolled back %d blocks down to %v", len(list), h)
	return list, nil
}

func (l *Ledger) rollback(tx *txn, h crypto.Digest, list *[]*blocks.Block) error {
	target, err := tx.block(h)
	if err != nil {
		return err
	}
	account := target.Block.Account
	for tx.blockExists(h) {
		err = l.rollbackHead(tx, account, list)
		if err != nil {
			return err
		}
	}
	return nil
}

// rollbackHead undoes the most recent block of account.
func (l *Ledger) rollbackHead(tx *txn, account basics.Address, list *[]*blocks.Block) error {
	info, ok, err := tx.account(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountNotFound
	}
	head, err := tx.block(info.Head)
	if err != nil {
		return err
	}
	conf, err := tx.confirmationHeight(account)
	if err != nil {
		return err
	}
	if head.Sideband.Height <= conf.Height {
		return ErrRollbackCemented{Hash: info.Head, Height: conf.Height}
	}

	blk := &head.Block
	details := head.Sideband.Details
	if details.IsSend {
		dest := blk.LinkAsAccount()
		for {
			_, pending, err := tx.pending(dest, info.Head)
			if err != nil {
				return err
			}
			if pending {
				break
			}
			destInfo, ok, err := tx.account(dest)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAccountNotFound
			}
			err = l.rollback(tx, destInfo.Head, list)
			if err != nil {
				return err
			}
		}
		tx.del(pendingKey(dest, info.Head))
	}

	prevBalance, err := tx.balance(blk.Previous)
	if err != nil {
		return err
	}
	if details.IsReceive {
		source, err := tx.block(blk.Link)
		if err != nil {
			return err
		}
		tx.putObj(pendingKey(account, blk.Link), &PendingInfo{
			Source: source.Block.Account,
			Amount: blk.Balance.Sub(prevBalance),
			Epoch:  source.Sideband.Details.Epoch,
		})
	}

	tx.subWeight(blk.Representative, blk.Balance)
	if blk.Previous.IsZero() {
		tx.del(accountKey(account))
		tx.del(confirmKey(account))
	} else {
		prev, err := tx.block(blk.Previous)
		if err != nil {
			return err
		}
		tx.addWeight(prev.Block.Representative, prev.Block.Balance)
		prev.Successor = crypto.Digest{}
		tx.putBlock(blk.Previous, prev)
		tx.putAccount(account, AccountInfo{
			Head:           blk.Previous,
			Representative: prev.Block.Representative,
			OpenBlock:      info.OpenBlock,
			Balance:        prev.Block.Balance,
			Modified:       time.Now().Unix(),
			BlockCount:     info.BlockCount - 1,
			Epoch:          prev.Sideband.Details.Epoch,
		})
	}
	tx.del(blockKey(info.Head))
	tx.blockDelta--
	*list = append(*list, head.withSideband())
	return nil
}
