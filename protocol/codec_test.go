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

package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/test/partitiontest"
)

type codecRecord struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Height  uint64   `codec:"h"`
	Digest  [32]byte `codec:"d"`
	Flags   []bool   `codec:"f"`
	Comment string   `codec:"c"`
}

func TestEncodeOmitsEmpty(t *testing.T) {
	partitiontest.PartitionTest(t)

	require.Equal(t, []byte{0x80}, Encode(codecRecord{}))

	full := codecRecord{Height: 7, Flags: []bool{true}, Comment: "x"}
	full.Digest[0] = 1
	var out codecRecord
	require.NoError(t, Decode(Encode(full), &out))
	require.Equal(t, full, out)
}

func TestEncodeIsCanonical(t *testing.T) {
	partitiontest.PartitionTest(t)

	a := map[string]int{"b": 1, "a": 2, "c": 3}
	b := map[string]int{"c": 3, "a": 2, "b": 1}
	require.True(t, bytes.Equal(Encode(a), Encode(b)))
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	partitiontest.PartitionTest(t)

	enc := Encode(map[string]int{"zz": 1})
	var out codecRecord
	require.Error(t, Decode(enc, &out))
}
