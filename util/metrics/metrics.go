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

// Package metrics keeps process-wide counters and gauges and renders them in
// the Prometheus exposition format.
package metrics

// MetricName describes the name and description of a single metric
type MetricName struct {
	Name        string
	Description string
}

var (
	// ElectionsActive Number of elections currently held by the active elections manager
	ElectionsActive = MetricName{Name: "lattice_elections_active", Description: "Number of live elections"}
	// ElectionsBlocks Number of candidate blocks indexed by live elections
	ElectionsBlocks = MetricName{Name: "lattice_elections_blocks", Description: "Number of candidate blocks in live elections"}
	// ElectionsOptimistic Number of live elections started by frontier confirmation
	ElectionsOptimistic = MetricName{Name: "lattice_elections_optimistic", Description: "Number of live optimistic elections"}
	// ElectionsActiveMultiplier Trended work multiplier of prioritized elections
	ElectionsActiveMultiplier = MetricName{Name: "lattice_elections_active_multiplier", Description: "Trended active work multiplier"}
	// ElectionsInactiveVotesCache Number of entries in the inactive votes cache
	ElectionsInactiveVotesCache = MetricName{Name: "lattice_elections_inactive_votes_cache", Description: "Entries in the inactive votes cache"}
	// ElectionsConfirmedTotal Total number of elections confirmed
	ElectionsConfirmedTotal = MetricName{Name: "lattice_elections_confirmed_total", Description: "Total number of confirmed elections"}
	// ElectionsDroppedTotal Total number of elections erased before confirmation
	ElectionsDroppedTotal = MetricName{Name: "lattice_elections_dropped_total", Description: "Total number of elections erased before confirmation"}
	// LedgerBlockCount Number of blocks in the ledger
	LedgerBlockCount = MetricName{Name: "lattice_ledger_blocks", Description: "Number of blocks in the ledger"}
	// LedgerCementedCount Number of cemented blocks in the ledger
	LedgerCementedCount = MetricName{Name: "lattice_ledger_cemented_blocks", Description: "Number of cemented blocks in the ledger"}
	// VotesGeneratedTotal Total number of votes signed by local representatives
	VotesGeneratedTotal = MetricName{Name: "lattice_votes_generated_total", Description: "Total number of locally generated votes"}
	// BlocksProcessedTotal Total number of blocks processed into the ledger
	BlocksProcessedTotal = MetricName{Name: "lattice_blocks_processed_total", Description: "Total number of blocks processed into the ledger"}
	// DuplicateNetworkFilterReceivedTotal Total number of messages dropped by the publish filter
	DuplicateNetworkFilterReceivedTotal = MetricName{Name: "lattice_network_duplicate_filter_received_total", Description: "Total number of duplicate messages dropped by the publish filter"}
	// OutgoingNetworkMessageDroppedTotal Total number of messages dropped because the send queue was full
	OutgoingNetworkMessageDroppedTotal = MetricName{Name: "lattice_network_message_dropped_total", Description: "Total number of outgoing messages dropped under backpressure"}
	// OnlineStake Estimated online voting weight, in Gxrb
	OnlineStake = MetricName{Name: "lattice_online_stake", Description: "Estimated online voting weight, in Gxrb"}
	// OnlineRepresentatives Number of representatives seen voting recently
	OnlineRepresentatives = MetricName{Name: "lattice_online_representatives", Description: "Number of representatives seen voting recently"}
	// BlockProcessorQueued Number of blocks waiting in the block processor
	BlockProcessorQueued = MetricName{Name: "lattice_block_processor_queued", Description: "Number of blocks waiting in the block processor"}
)
