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

// Package voting holds the vote message, the history of votes this node has
// generated, and the generator that batches block hashes into signed votes for
// the node's representatives.
package voting

import (
	"encoding/binary"
	"fmt"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/protocol"
)

// MaxHashes is the number of block hashes a single vote may carry.
const MaxHashes = 12

// Vote is a representative's signed endorsement of one or more block hashes.
// A later Sequence supersedes an earlier vote from the same account.
type Vote struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Account   basics.Address   `codec:"acct"`
	Sequence  uint64           `codec:"seq"`
	Hashes    []crypto.Digest  `codec:"hashes,allocbound=MaxHashes"`
	Signature crypto.Signature `codec:"sig"`
}

// ToBeHashed implements the crypto.Hashable interface. The hash covers the
// block hashes and the sequence number.
func (v Vote) ToBeHashed() (protocol.HashID, []byte) {
	buf := make([]byte, 0, len(v.Hashes)*crypto.DigestSize+8)
	for _, h := range v.Hashes {
		buf = append(buf, h[:]...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, v.Sequence)
	return protocol.Vote, buf
}

// Hash identifies the vote's content. Votes with the same hashes and sequence
// from different accounts share a hash.
func (v Vote) Hash() crypto.Digest {
	return crypto.HashObj(v)
}

// MakeVote creates and signs a vote from secrets.
func MakeVote(secrets *crypto.SignatureSecrets, sequence uint64, hashes []crypto.Digest) *Vote {
	v := &Vote{
		Account:  basics.Address(secrets.PublicKey),
		Sequence: sequence,
		Hashes:   hashes,
	}
	v.Sign(secrets)
	return v
}

// Sign sets the vote's signature.
func (v *Vote) Sign(secrets *crypto.SignatureSecrets) {
	v.Signature = secrets.Sign(v)
}

// Verify checks the signature against the vote's account.
func (v Vote) Verify() bool {
	if len(v.Hashes) == 0 || len(v.Hashes) > MaxHashes {
		return false
	}
	return crypto.PublicKey(v.Account).Verify(v, v.Signature)
}

// String formats the vote for log lines
func (v Vote) String() string {
	return fmt.Sprintf("vote{%v seq %d, %d hashes}", v.Account, v.Sequence, len(v.Hashes))
}
