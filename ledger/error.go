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
)

// Errors returned by Process. A block rejected with ErrGapPrevious or
// ErrGapSource may become valid once the missing block arrives; the others
// are final.
var (
	ErrOld                    = errors.New("block already in ledger")
	ErrFork                   = errors.New("block competes with an existing block for the same position")
	ErrGapPrevious            = errors.New("previous block is unknown")
	ErrGapSource              = errors.New("source block is unknown")
	ErrBadSignature           = errors.New("bad block signature")
	ErrUnreceivable           = errors.New("source is not receivable by this account")
	ErrBalanceMismatch        = errors.New("balance does not match the received amount")
	ErrRepresentativeMismatch = errors.New("epoch block changes the representative")
	ErrBlockPosition          = errors.New("epoch block is not a valid upgrade")
	ErrInsufficientWork       = errors.New("insufficient proof of work")
	ErrBurnAccount            = errors.New("cannot open the burn account")
)

// ErrBlockNotFound is returned when a block is not present in the ledger.
type ErrBlockNotFound struct {
	Hash crypto.Digest
}

// Error satisfies builtin interface `error`
func (err ErrBlockNotFound) Error() string {
	return fmt.Sprintf("block %v not found in ledger", err.Hash)
}

// ErrAccountNotFound is returned for an account with no blocks.
var ErrAccountNotFound = errors.New("account not found")

// ErrRollbackCemented is returned when a rollback would undo a cemented block.
type ErrRollbackCemented struct {
	Hash   crypto.Digest
	Height uint64
}

// Error satisfies builtin interface `error`
func (err ErrRollbackCemented) Error() string {
	return fmt.Sprintf("cannot roll back block %v below confirmation height %d", err.Hash, err.Height)
}
