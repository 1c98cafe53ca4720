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

// Epoch is the ledger epoch a block was created under. Epoch upgrades change
// the work threshold a block must meet.
type Epoch uint8

const (
	// EpochInvalid is the zero value.
	EpochInvalid Epoch = iota
	// EpochUnspecified marks blocks whose epoch is not known yet.
	EpochUnspecified
	// Epoch0 is the genesis epoch.
	Epoch0
	// Epoch1 introduced state blocks.
	Epoch1
	// Epoch2 introduced separate send and receive work thresholds.
	Epoch2
)

// EpochBegin is the first real epoch.
const EpochBegin = Epoch0

// EpochMax is the newest epoch.
const EpochMax = Epoch2

func (e Epoch) String() string {
	switch e {
	case EpochInvalid:
		return "invalid"
	case EpochUnspecified:
		return "unspecified"
	case Epoch0:
		return "epoch_0"
	case Epoch1:
		return "epoch_1"
	case Epoch2:
		return "epoch_2"
	}
	return "unknown"
}
