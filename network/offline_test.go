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

package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/protocol"
	"github.com/algorand/go-blocklattice/test/partitiontest"
	"github.com/algorand/go-blocklattice/voting"
)

func testBlock(i uint64) *blocks.Block {
	return &blocks.Block{
		Account: basics.Address(crypto.Hash([]byte("account"))),
		Balance: basics.NewAmount(i),
		Work:    i,
	}
}

func TestOfflineImplementsInterfaces(t *testing.T) {
	partitiontest.PartitionTest(t)

	var _ elections.Network = &Offline{}
	var _ voting.Flooder = &Offline{}
}

func TestOfflineCountsAndFilter(t *testing.T) {
	partitiontest.PartitionTest(t)

	n := MakeOffline(logging.TestingLog(t), MakePublishFilter(64), nil)
	n.Start()
	defer n.Stop()

	reps := []elections.Representative{{Channel: "a"}, {Channel: "b"}}
	n.SetRepresentatives(reps)
	reps[0].Channel = "changed"
	require.Equal(t, "a", n.PrincipalRepresentatives()[0].Channel)

	blk := testBlock(1)
	require.False(t, n.Publish(blk))
	require.True(t, n.Publish(blk))
	n.ClearPublishFilter(blk)
	require.False(t, n.Publish(blk))

	// flooding our own block marks it as seen
	other := testBlock(2)
	n.FloodBlock(other, 1)
	require.True(t, n.Publish(other))

	n.SendConfirmReq("a", []elections.HashRoot{{}})
	n.SendBlock("a", blk)
	n.FloodVote(&voting.Vote{}, 0.5)
	n.FloodVotePR(&voting.Vote{})
	require.Equal(t, uint64(1), n.Sent(protocol.ConfirmReqTag))
	require.Equal(t, uint64(2), n.Sent(protocol.PublishTag))
	require.Equal(t, uint64(1), n.Sent(protocol.VoteFloodTag))
	require.Equal(t, uint64(1), n.Sent(protocol.VotePrincipalTag))
}

func TestOfflineLoopback(t *testing.T) {
	partitiontest.PartitionTest(t)

	got := make(chan *voting.Vote, 2)
	n := MakeOffline(logging.TestingLog(t), nil, func(v *voting.Vote) { got <- v })
	n.Start()
	defer n.Stop()

	v := &voting.Vote{Sequence: 7}
	n.FloodVote(v, 1)
	select {
	case out := <-got:
		require.Same(t, v, out)
	case <-time.After(5 * time.Second):
		t.Fatal("vote was not looped back")
	}
}

func TestOfflineLoopbackDrops(t *testing.T) {
	partitiontest.PartitionTest(t)

	// not started, so nothing drains the queue
	n := MakeOffline(logging.TestingLog(t), nil, func(*voting.Vote) {})
	before := outgoingNetworkMessageDroppedTotal.GetUint64Value()
	for i := 0; i < loopbackQueueSize+3; i++ {
		n.FloodVotePR(&voting.Vote{})
	}
	require.Equal(t, before+3, outgoingNetworkMessageDroppedTotal.GetUint64Value())
	n.Stop()
}
