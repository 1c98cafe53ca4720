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

package elections

import (
	"time"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// StatusType classifies how an election ended.
type StatusType uint8

const (
	// StatusOngoing elections have not ended.
	StatusOngoing StatusType = iota
	// StatusActiveConfirmedQuorum elections confirmed by reaching quorum.
	StatusActiveConfirmedQuorum
	// StatusActiveConfirmationHeight elections confirmed because the ledger
	// cemented their winner first.
	StatusActiveConfirmationHeight
	// StatusInactiveConfirmationHeight marks blocks cemented without any election.
	StatusInactiveConfirmationHeight
	// StatusStopped elections expired without confirming.
	StatusStopped
)

func (t StatusType) String() string {
	switch t {
	case StatusOngoing:
		return "ongoing"
	case StatusActiveConfirmedQuorum:
		return "active_confirmed_quorum"
	case StatusActiveConfirmationHeight:
		return "active_confirmation_height"
	case StatusInactiveConfirmationHeight:
		return "inactive_confirmation_height"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// Status is the outcome of an election. It is copied out of the election
// when it confirms and does not change afterwards.
type Status struct {
	Winner       *blocks.Block
	Tally        basics.Amount
	Start        time.Time
	Duration     time.Duration
	RequestCount uint32
	BlockCount   uint32
	VoterCount   uint32
	Type         StatusType
}

// State is the phase of an election.
type State int32

const (
	// StatePassive elections wait before soliciting votes.
	StatePassive State = iota
	// StateActive elections send confirmation requests.
	StateActive
	// StateBroadcasting elections also rebroadcast their winner.
	StateBroadcasting
	// StateConfirmed elections have a final winner.
	StateConfirmed
	// StateExpiredConfirmed elections are confirmed and ready to be erased.
	StateExpiredConfirmed
	// StateExpiredUnconfirmed elections timed out without confirming.
	StateExpiredUnconfirmed
)

func (s State) String() string {
	switch s {
	case StatePassive:
		return "passive"
	case StateActive:
		return "active"
	case StateBroadcasting:
		return "broadcasting"
	case StateConfirmed:
		return "confirmed"
	case StateExpiredConfirmed:
		return "expired_confirmed"
	case StateExpiredUnconfirmed:
		return "expired_unconfirmed"
	}
	return "unknown"
}

// validChange lists the transitions the election state machine allows.
func validChange(from, to State) bool {
	switch from {
	case StatePassive:
		return to == StateActive || to == StateConfirmed || to == StateExpiredUnconfirmed
	case StateActive:
		return to == StateBroadcasting || to == StateConfirmed || to == StateExpiredUnconfirmed
	case StateBroadcasting:
		return to == StateConfirmed || to == StateExpiredUnconfirmed
	case StateConfirmed:
		return to == StateExpiredConfirmed
	}
	return false
}

// Behavior distinguishes elections started by the frontier scheduler.
type Behavior uint8

const (
	// BehaviorNormal elections were started by blocks or votes.
	BehaviorNormal Behavior = iota
	// BehaviorOptimistic elections were started for an uncemented frontier and
	// expire sooner.
	BehaviorOptimistic
)

// VoteCode is the result of handing a vote to the manager.
type VoteCode uint8

const (
	// VoteIndeterminate votes named no election and no recently confirmed block.
	VoteIndeterminate VoteCode = iota
	// VoteReplay votes repeated what the elections already knew.
	VoteReplay
	// VoteProcessed votes changed at least one election.
	VoteProcessed
)

func (c VoteCode) String() string {
	switch c {
	case VoteIndeterminate:
		return "indeterminate"
	case VoteReplay:
		return "replay"
	case VoteProcessed:
		return "vote"
	}
	return "unknown"
}

// VoteResult is the result of applying one vote to one election.
type VoteResult struct {
	Replay    bool
	Processed bool
}

// InsertResult is the result of Insert.
type InsertResult struct {
	// Election is the election for the block's root, nil if none exists.
	Election *Election
	Inserted bool
}

// ConfirmedBlock is reported to block observers for every cemented block.
type ConfirmedBlock struct {
	Status  Status
	Account basics.Address
	Amount  basics.Amount
	IsSend  bool
}

// CleanupInfo is the part of an election needed to remove it from the
// manager's indices once the election lock is released.
type CleanupInfo struct {
	Confirmed bool
	Root      blocks.QualifiedRoot
	Winner    crypto.Digest
	Blocks    map[crypto.Digest]*blocks.Block
}
