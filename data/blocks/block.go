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

// Package blocks defines the state block, the single block kind of an account
// chain, and the identifiers elections are keyed on.
package blocks

import (
	"fmt"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/protocol"
)

// Block is a state block. Every block carries the full account state after it
// is applied: the representative and the balance. Whether a block sends,
// receives or only changes the representative follows from the balance of its
// predecessor.
//
// A Block is immutable once built; callers that need a different work value or
// sideband make a copy.
type Block struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Account        basics.Address   `codec:"acct"`
	Previous       crypto.Digest    `codec:"prev"`
	Representative basics.Address   `codec:"rep"`
	Balance        basics.Amount    `codec:"bal"`
	Link           crypto.Digest    `codec:"link"`
	Signature      crypto.Signature `codec:"sig"`
	Work           uint64           `codec:"work"`

	// Sideband is filled by the ledger once the block is stored; blocks
	// received from the network have none.
	Sideband *Sideband `codec:"-"`
}

// Sideband is ledger metadata about a stored block.
type Sideband struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Height    uint64              `codec:"h"`
	Timestamp int64               `codec:"ts"`
	Details   basics.BlockDetails `codec:"d"`
}

// QualifiedRoot identifies the ledger slot a block competes for. Two blocks
// with the same qualified root are forks of each other.
type QualifiedRoot struct {
	Root     crypto.Digest
	Previous crypto.Digest
}

func (qr QualifiedRoot) String() string {
	return fmt.Sprintf("%s:%s", qr.Root.ShortString(), qr.Previous.ShortString())
}

// Less orders qualified roots bytewise, root first.
func (qr QualifiedRoot) Less(other QualifiedRoot) bool {
	if qr.Root != other.Root {
		return qr.Root.Less(other.Root)
	}
	return qr.Previous.Less(other.Previous)
}

// ToBeHashed implements crypto.Hashable. Signature, work and sideband are not
// part of the hash.
func (b Block) ToBeHashed() (protocol.HashID, []byte) {
	bal := b.Balance.Bytes16()
	buf := make([]byte, 0, 4*crypto.DigestSize+len(bal))
	buf = append(buf, b.Account[:]...)
	buf = append(buf, b.Previous[:]...)
	buf = append(buf, b.Representative[:]...)
	buf = append(buf, bal[:]...)
	buf = append(buf, b.Link[:]...)
	return protocol.StateBlock, buf
}

// Hash returns the block hash
func (b Block) Hash() crypto.Digest {
	return crypto.HashObj(b)
}

// IsOpen reports whether b is the first block of its account chain.
func (b Block) IsOpen() bool {
	return b.Previous.IsZero()
}

// Root is the previous block, or the account for the first block of a chain.
func (b Block) Root() crypto.Digest {
	if b.IsOpen() {
		return b.Account.Digest()
	}
	return b.Previous
}

// QualifiedRoot returns the election key of b
func (b Block) QualifiedRoot() QualifiedRoot {
	return QualifiedRoot{Root: b.Root(), Previous: b.Previous}
}

// Difficulty returns the proof-of-work difficulty achieved by b.Work
func (b Block) Difficulty() uint64 {
	return work.Difficulty(b.Root(), b.Work)
}

// HasSideband reports whether the ledger metadata is attached
func (b Block) HasSideband() bool {
	return b.Sideband != nil
}

// WithWork returns a copy of b carrying nonce as its work.
func (b *Block) WithWork(nonce uint64) *Block {
	cp := *b
	cp.Work = nonce
	return &cp
}

// WithSideband returns a copy of b carrying sb.
func (b *Block) WithSideband(sb Sideband) *Block {
	cp := *b
	cp.Sideband = &sb
	return &cp
}

// Sign signs the block hash with the account key.
func (b *Block) Sign(secrets *crypto.SignatureSecrets) {
	h := b.Hash()
	b.Signature = secrets.SignBytes(h[:])
}

// VerifySignature checks that the account key signed the block hash.
func (b Block) VerifySignature() bool {
	h := b.Hash()
	return crypto.PublicKey(b.Account).VerifyBytes(h[:], b.Signature)
}

// LinkAsAccount interprets the link field as a destination account.
func (b Block) LinkAsAccount() basics.Address {
	return basics.Address(b.Link)
}

func (b Block) String() string {
	return fmt.Sprintf("block %s account %s previous %s", b.Hash().ShortString(), b.Account, b.Previous.ShortString())
}
