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

// BlockDetails classifies a state block by the balance change it makes. The
// work threshold a block must meet depends on it.
type BlockDetails struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch     Epoch `codec:"epoch"`
	IsSend    bool  `codec:"send"`
	IsReceive bool  `codec:"recv"`
	IsEpoch   bool  `codec:"epch"`
}
