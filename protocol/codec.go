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
	"sync"

	"github.com/algorand/go-codec/codec"
)

// CodecHandle encodes ledger records, block and vote payloads. Encoding is
// canonical so equal values always hash the same, and decoding fails on
// fields the target does not know.
var CodecHandle *codec.MsgpackHandle

func init() {
	CodecHandle = new(codec.MsgpackHandle)
	CodecHandle.ErrorIfNoField = true
	CodecHandle.ErrorIfNoArrayExpand = true
	CodecHandle.Canonical = true
	CodecHandle.RecursiveEmptyCheck = true
	CodecHandle.WriteExt = true
	CodecHandle.PositiveIntUnsigned = true
	CodecHandle.Raw = true
}

type encoder struct {
	enc *codec.Encoder
	buf []byte
}

var encoders = sync.Pool{
	New: func() interface{} {
		return &encoder{enc: codec.NewEncoderBytes(nil, CodecHandle)}
	},
}

// records are small; most ledger entries fit without growing
const recordBufSize = 256

// Encode returns the msgpack encoding of obj.
func Encode(obj interface{}) []byte {
	e := encoders.Get().(*encoder)
	e.buf = make([]byte, 0, recordBufSize)
	e.enc.ResetBytes(&e.buf)
	e.enc.MustEncode(obj)
	out := e.buf
	encoders.Put(e)
	return out
}

// Decode decodes the msgpack encoding b into objptr.
func Decode(b []byte, objptr interface{}) error {
	return codec.NewDecoderBytes(b, CodecHandle).Decode(objptr)
}
