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
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// AccountInfo is the latest state of an account chain.
type AccountInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Head           crypto.Digest  `codec:"head"`
	Representative basics.Address `codec:"rep"`
	OpenBlock      crypto.Digest  `codec:"open"`
	Balance        basics.Amount  `codec:"bal"`
	Modified       int64          `codec:"mod"`
	BlockCount     uint64         `codec:"cnt"`
	Epoch          basics.Epoch   `codec:"epoch"`
}

// ConfirmationHeightInfo is the cemented prefix of an account chain. Height
// zero means nothing is cemented and Frontier is zero.
type ConfirmationHeightInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Height   uint64        `codec:"h"`
	Frontier crypto.Digest `codec:"f"`
}

// PendingInfo describes a send that the destination has not received yet.
type PendingInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Source basics.Address `codec:"src"`
	Amount basics.Amount  `codec:"amt"`
	Epoch  basics.Epoch   `codec:"epoch"`
}

// AccountEntry pairs an account with its info during iteration.
type AccountEntry struct {
	Address basics.Address
	Info    AccountInfo
}

type storedBlock struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Block     blocks.Block    `codec:"blk"`
	Sideband  blocks.Sideband `codec:"sb"`
	Successor crypto.Digest   `codec:"succ"`
}

func (sb *storedBlock) withSideband() *blocks.Block {
	return sb.Block.WithSideband(sb.Sideband)
}

const (
	prefixBlock   = 'b'
	prefixAccount = 'a'
	prefixConfirm = 'c'
	prefixPending = 'p'
	prefixMeta    = 'm'
)

func blockKey(h crypto.Digest) []byte {
	return append([]byte{prefixBlock}, h[:]...)
}

func accountKey(a basics.Address) []byte {
	return append([]byte{prefixAccount}, a[:]...)
}

func confirmKey(a basics.Address) []byte {
	return append([]byte{prefixConfirm}, a[:]...)
}

func pendingKey(dest basics.Address, send crypto.Digest) []byte {
	k := make([]byte, 0, 1+len(dest)+len(send))
	k = append(k, prefixPending)
	k = append(k, dest[:]...)
	return append(k, send[:]...)
}

func pendingPrefix(dest basics.Address) []byte {
	return append([]byte{prefixPending}, dest[:]...)
}

var genesisKey = []byte{prefixMeta, 'g'}
