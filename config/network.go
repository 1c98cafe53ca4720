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

package config

import (
	"fmt"
	"time"

	"github.com/algorand/go-blocklattice/data/work"
)

// Network identifies which network a node participates in
type Network string

const (
	// Dev is the local development network; all timings are shortened for tests.
	Dev Network = "dev"
	// Beta is the public beta network
	Beta Network = "beta"
	// Live is the real-money network
	Live Network = "live"
	// Test is the public test network
	Test Network = "test"
)

// ParseNetwork maps a network name onto a Network
func ParseNetwork(s string) (Network, error) {
	switch n := Network(s); n {
	case Dev, Beta, Live, Test:
		return n, nil
	}
	return "", fmt.Errorf("invalid network %q, valid values are live, test, beta and dev", s)
}

// NetworkParams are the protocol constants that vary by network.
type NetworkParams struct {
	Network Network

	// Thresholds are the work thresholds blocks are measured against.
	Thresholds work.Thresholds

	// BaseLatency is the unit election timings are expressed in.
	BaseLatency time.Duration

	// RequestInterval is the period of the confirmation request loop.
	RequestInterval time.Duration

	// CheckAllElectionsPeriod is how often the request loop visits every election
	// rather than only the prioritized ones.
	CheckAllElectionsPeriod time.Duration

	// ElectionTimeToLive is how long an election is protected from being dropped
	// when the container overflows.
	ElectionTimeToLive time.Duration

	// OptimisticExpiration is the age at which an optimistic election expires.
	OptimisticExpiration time.Duration

	// PrincipalWeightFactor divides the online stake into the minimum weight of a
	// principal representative.
	PrincipalWeightFactor uint64

	// BootstrapWeightMaxBlocks is the ledger size below which the node is considered
	// to be bootstrapping.
	BootstrapWeightMaxBlocks uint64

	// ConfirmReqHashesMax is the number of hashes one confirm_req carries.
	ConfirmReqHashesMax int

	// MaxConfirmReqBatches is the number of confirm_req messages queued per channel
	// per request loop pass.
	MaxConfirmReqBatches int

	// MaxBlockBroadcasts is the number of winner broadcasts per request loop pass.
	MaxBlockBroadcasts int

	// Fanout is the number of peers a flood reaches.
	Fanout int

	// ProcessConfirmedInterval is how long a confirmed winner missing from the
	// ledger is waited for between retries.
	ProcessConfirmedInterval time.Duration

	// VoteHistorySize is the number of (root, hash) votes the generator keeps for
	// replay.
	VoteHistorySize int
}

// IsDevNetwork reports whether these are the development network parameters
func (p NetworkParams) IsDevNetwork() bool {
	return p.Network == Dev
}

// ParamsFor returns the parameters of network n
func ParamsFor(n Network) NetworkParams {
	p := NetworkParams{
		Network:                  n,
		Thresholds:               work.FullThresholds,
		BaseLatency:              time.Second,
		RequestInterval:          500 * time.Millisecond,
		CheckAllElectionsPeriod:  5 * time.Second,
		ElectionTimeToLive:       2 * time.Second,
		OptimisticExpiration:     60 * time.Second,
		PrincipalWeightFactor:    1000,
		BootstrapWeightMaxBlocks: 1,
		ConfirmReqHashesMax:      7,
		MaxConfirmReqBatches:     20,
		MaxBlockBroadcasts:       30,
		Fanout:                   8,
		ProcessConfirmedInterval: 500 * time.Millisecond,
		VoteHistorySize:          128 * 1024,
	}
	switch n {
	case Dev:
		p.Thresholds = work.DevThresholds
		p.BaseLatency = 25 * time.Millisecond
		p.RequestInterval = 20 * time.Millisecond
		p.CheckAllElectionsPeriod = 10 * time.Millisecond
		p.ElectionTimeToLive = 0
		p.OptimisticExpiration = 500 * time.Millisecond
		p.MaxConfirmReqBatches = 1
		p.MaxBlockBroadcasts = 4
		p.ProcessConfirmedInterval = 50 * time.Millisecond
		p.VoteHistorySize = 256
	case Beta:
		p.Thresholds = work.BetaThresholds
	}
	return p
}
