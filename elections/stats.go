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
	"github.com/algorand/go-blocklattice/util/metrics"
)

var electionEvents = metrics.NewTagCounter("lattice_elections_{TAG}_total", "Election lifecycle events by kind")

var (
	electionsActive         = metrics.MakeGauge(metrics.ElectionsActive)
	electionsBlocks         = metrics.MakeGauge(metrics.ElectionsBlocks)
	electionsOptimistic     = metrics.MakeGauge(metrics.ElectionsOptimistic)
	electionsMultiplier     = metrics.MakeGauge(metrics.ElectionsActiveMultiplier)
	electionsInactiveCache  = metrics.MakeGauge(metrics.ElectionsInactiveVotesCache)
	electionsConfirmedTotal = metrics.MakeCounter(metrics.ElectionsConfirmedTotal)
	electionsDroppedTotal   = metrics.MakeCounter(metrics.ElectionsDroppedTotal)
)

// Event tags counted in electionEvents.
const (
	statElectionPriority         = "election_priority"
	statElectionNonPriority      = "election_non_priority"
	statElectionDrop             = "election_drop"
	statElectionRestart          = "election_restart"
	statElectionBlockConflict    = "election_block_conflict"
	statElectionDifficultyUpdate = "election_difficulty_update"
	statVoteNew                  = "vote_new"
	statVoteCached               = "vote_cached"
	statVoteReplay               = "vote_replay"
	statVoteIndeterminate        = "vote_indeterminate"
	statVoteFlooded              = "vote_flooded"
	statLateBlock                = "late_block"
	statLateBlockSeconds         = "late_block_seconds"
	statBootstrapRequested       = "bootstrap_requested"
	statFrontierConfirmation     = "frontier_confirmation_successful"
	statFrontierConfirmationFail = "frontier_confirmation_failed"
	statGeneratorBroadcasts      = "generator_broadcasts"
	statConfirmReqsSent          = "confirm_req_sent"
	statBlocksRebroadcast        = "blocks_rebroadcast"
)

func stat(tag string) {
	electionEvents.Add(tag, 1)
}

// EventCount returns how often the named election event happened in this
// process.
func EventCount(tag string) uint64 {
	return electionEvents.GetValue(tag)
}
