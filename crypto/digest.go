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

// Package crypto holds the hash and signature primitives of the node.
package crypto

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/algorand/go-blocklattice/protocol"
)

// DigestSize is the number of bytes in the preferred hash Digest used here.
const DigestSize = blake2b.Size256

// Digest represents a 32-byte value holding the 256-bit blake2b hash
type Digest [DigestSize]byte

// String returns the digest in a human-readable Base32 string
func (d Digest) String() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(d[:])
}

// Hex returns the digest as upper case hex, the form block explorers show.
func (d Digest) Hex() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

// ShortString returns a short prefix of the digest for log lines
func (d Digest) ShortString() string {
	return d.Hex()[:12]
}

// IsZero return true if the digest contains only zeros, false otherwise
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Less orders digests as big endian numbers
func (d Digest) Less(other Digest) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// DigestFromString converts a string to a Digest
func DigestFromString(str string) (d Digest, err error) {
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(str)
	if err != nil {
		return d, err
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf(`attempted to decode a string which was not a Digest: "%v"`, str)
	}
	copy(d[:], decoded)
	return d, err
}

// DigestFromHex converts a hex string to a Digest
func DigestFromHex(str string) (d Digest, err error) {
	decoded, err := hex.DecodeString(str)
	if err != nil {
		return d, err
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf(`attempted to decode a string which was not a Digest: "%v"`, str)
	}
	copy(d[:], decoded)
	return d, nil
}

// Hash computes the blake2b-256 digest of data
func Hash(data []byte) Digest {
	return blake2b.Sum256(data)
}

// Hashable is an interface implemented by an object that can be represented
// with a sequence of bytes to be hashed or signed, together with a type ID
// to distinguish different types of objects.
type Hashable interface {
	ToBeHashed() (protocol.HashID, []byte)
}

// HashRep appends the correct hashid before the message to be hashed.
func HashRep(h Hashable) []byte {
	hashid, data := h.ToBeHashed()
	return append([]byte(hashid), data...)
}

// HashObj computes a hash of a Hashable object and its type
func HashObj(h Hashable) Digest {
	return Hash(HashRep(h))
}
