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

package basics

import (
	"bytes"
	"encoding/base32"
	"fmt"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/protocol"
)

type (
	// Address identifies an account chain. It is the account's public key.
	Address crypto.PublicKey
)

const (
	checksumLength = 5
)

// ToBeHashed implements crypto.Hashable for the address checksum
func (addr Address) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.AccountChecksum, addr[:]
}

// GetChecksum returns the checksum as []byte
// The checksum is the last 5 bytes of the domain separated hash of the key.
func (addr Address) GetChecksum() []byte {
	h := crypto.HashObj(addr)
	return h[len(h)-checksumLength:]
}

// UnmarshalChecksumAddress tries to unmarshal the checksummed address string.
func UnmarshalChecksumAddress(address string) (Address, error) {
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(address)
	if err != nil {
		return Address{}, fmt.Errorf("failed to decode address %s to base 32", address)
	}
	var short Address
	if len(decoded) != len(short)+checksumLength {
		return Address{}, fmt.Errorf("decoded bad addr: %s", address)
	}

	copy(short[:], decoded[:len(short)])
	if !bytes.Equal(decoded[len(short):], short.GetChecksum()) {
		return Address{}, fmt.Errorf("address %s is malformed, checksum verification failed", address)
	}

	// Validate that we had a canonical string representation
	if short.String() != address {
		return Address{}, fmt.Errorf("address %s is non-canonical", address)
	}
	return short, nil
}

// String returns a string representation of Address
func (addr Address) String() string {
	addrWithChecksum := make([]byte, 0, len(addr)+checksumLength)
	addrWithChecksum = append(addrWithChecksum, addr[:]...)
	addrWithChecksum = append(addrWithChecksum, addr.GetChecksum()...)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(addrWithChecksum)
}

// IsZero checks if an address is the zero value.
func (addr Address) IsZero() bool {
	return addr == Address{}
}

// Less orders addresses as big endian numbers, the order the ledger iterates accounts in.
func (addr Address) Less(other Address) bool {
	return bytes.Compare(addr[:], other[:]) < 0
}

// Digest reinterprets the address bytes as a digest; the root of an
// account's first block is its address.
func (addr Address) Digest() crypto.Digest {
	return crypto.Digest(addr)
}

// MarshalText returns the address string as an array of bytes
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText initializes the Address from an array of bytes.
func (addr *Address) UnmarshalText(text []byte) error {
	address, err := UnmarshalChecksumAddress(string(text))
	if err == nil {
		*addr = address
		return nil
	}
	return err
}
