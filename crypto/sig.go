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

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/hdevalence/ed25519consensus"
)

// PublicKey is an ed25519 verification key
type PublicKey [ed25519.PublicKeySize]byte

// Signature is an ed25519 signature
type Signature [ed25519.SignatureSize]byte

// Seed holds the entropy needed to generate cryptographic keys.
type Seed [ed25519.SeedSize]byte

// SignatureSecrets are used by an entity to produce unforgeable signatures over
// a message.
type SignatureSecrets struct {
	PublicKey

	sk ed25519.PrivateKey
}

// GenerateSignatureSecrets creates SignatureSecrets from a source of entropy.
func GenerateSignatureSecrets(seed Seed) *SignatureSecrets {
	sk := ed25519.NewKeyFromSeed(seed[:])
	var pk PublicKey
	copy(pk[:], sk.Public().(ed25519.PublicKey))
	return &SignatureSecrets{PublicKey: pk, sk: sk}
}

// RandomSeed fills a Seed from the system's source of randomness.
func RandomSeed() (s Seed) {
	if _, err := rand.Read(s[:]); err != nil {
		panic(err)
	}
	return
}

// Sign produces a cryptographic Signature of a Hashable message, given
// cryptographic secrets.
func (s *SignatureSecrets) Sign(message Hashable) Signature {
	return s.SignBytes(HashRep(message))
}

// SignBytes signs a message directly, without first hashing.
func (s *SignatureSecrets) SignBytes(message []byte) (sig Signature) {
	copy(sig[:], ed25519.Sign(s.sk, message))
	return
}

// Verify verifies that some Hashable signature was signed under some
// PublicKey. The consensus verification rules are used so that every node
// agrees on which signatures are valid.
func (v PublicKey) Verify(message Hashable, sig Signature) bool {
	return v.VerifyBytes(HashRep(message), sig)
}

// VerifyBytes verifies a signature over a raw message.
func (v PublicKey) VerifyBytes(message []byte, sig Signature) bool {
	return ed25519consensus.Verify(ed25519.PublicKey(v[:]), message, sig[:])
}
