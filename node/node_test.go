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

package node

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/test/partitiontest"
	"github.com/algorand/go-blocklattice/voting"
)

func testNodeConfig(voting bool) config.Local {
	cfg := config.GetDefaultLocal()
	cfg.EnableVoting = voting
	cfg.DebugAssertions = true
	cfg.FrontiersConfirmation = config.FrontiersConfirmationDisabled
	cfg.VoteGeneratorDelay = 5 * time.Millisecond
	return cfg
}

func makeTestNode(t *testing.T, cfg config.Local, rootDir string) *Node {
	node, err := MakeNode(logging.TestingLog(t), cfg, config.ParamsFor(config.Dev), rootDir, ledgertesting.Genesis())
	require.NoError(t, err)
	return node
}

func genesisSend(i byte) *blocks.Block {
	genesis := ledgertesting.Genesis()
	dest := ledgertesting.Addr(ledgertesting.Key(100 + i))
	return ledgertesting.Send(ledgertesting.GenesisKey(), &genesis.Block, dest, basics.GxrbRatio, config.ParamsFor(config.Dev).Thresholds)
}

func TestNodeInvalidConfig(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := testNodeConfig(false)
	cfg.OnlineWeightQuorum = 101
	_, err := MakeNode(logging.TestingLog(t), cfg, config.ParamsFor(config.Dev), "", ledgertesting.Genesis())
	require.Error(t, err)
}

func TestNodeConfirmation(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(true), "")
	node.Wallets().Insert(walletID(1), ledgertesting.GenesisKey())
	confirmed := make(chan blocks.QualifiedRoot, 4)
	node.Active().AddBlockObserver(func(cb elections.ConfirmedBlock) {
		confirmed <- cb.Status.Winner.QualifiedRoot()
	})
	node.Start()
	defer node.Stop()

	send := genesisSend(1)
	node.ProcessBlock(send)
	require.Eventually(t, func() bool {
		return node.Ledger().BlockConfirmed(send.Hash())
	}, 10*time.Second, 10*time.Millisecond)

	select {
	case root := <-confirmed:
		require.Equal(t, send.QualifiedRoot(), root)
	case <-time.After(5 * time.Second):
		t.Fatal("no confirmation reported")
	}
	require.Eventually(t, func() bool {
		return node.Wallets().WatchedCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// the genesis representative voted, so its whole weight counts as online
	genesisWeight := node.Ledger().Weight(ledgertesting.Genesis().Account())
	require.Equal(t, ledgertesting.GenesisAmount.Sub(basics.GxrbRatio), genesisWeight)
	require.Equal(t, genesisWeight, node.OnlineReps().OnlineStake())
	require.Equal(t, 1, node.Wallets().Reps().Voting)
}

func TestNodeReceiveBlock(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(false), "")
	node.Start()
	defer node.Stop()

	send := genesisSend(1)
	require.True(t, node.ReceiveBlock(send))
	require.False(t, node.ReceiveBlock(send))
	node.Flush()

	require.True(t, node.Ledger().BlockExists(send.Hash()))
	report, ok := node.Election(send.Root())
	require.True(t, ok)
	require.Equal(t, send.Root().Hex(), report.Root)
	require.Equal(t, send.Previous.Hex(), report.Previous)
	require.Equal(t, send.Hash().Hex(), report.Winner)
	require.False(t, report.Confirmed)
	require.Len(t, report.Tally, 0)

	_, ok = node.Election(send.Hash())
	require.False(t, ok)
}

func TestNodeBadVoteDiscarded(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(false), "")
	node.Start()
	defer node.Stop()

	send := genesisSend(1)
	node.ProcessBlock(send)
	node.Flush()

	v := voting.MakeVote(ledgertesting.GenesisKey(), 1, []crypto.Digest{send.Hash()})
	v.Sequence = 2
	node.ReceiveVote(v)
	good := voting.MakeVote(ledgertesting.Key(5), 1, []crypto.Digest{send.Hash()})
	node.ReceiveVote(good)

	require.Eventually(t, func() bool {
		report, ok := node.Election(send.Root())
		return ok && report.Voters == 1
	}, 5*time.Second, 10*time.Millisecond)
	report, _ := node.Election(send.Root())
	require.False(t, report.Confirmed)
}

func TestNodeStatus(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(false), "")
	node.Start()
	defer node.Stop()

	node.ProcessBlock(genesisSend(1))
	node.Flush()

	s, err := node.Status()
	require.NoError(t, err)
	require.Equal(t, config.Dev, s.Network)
	require.Equal(t, ledgertesting.Genesis().Block.Hash().Hex(), s.GenesisHash)
	require.Equal(t, uint64(2), s.BlockCount)
	require.Equal(t, uint64(1), s.CementedCount)
	require.Equal(t, 1, s.Elections)
	require.Equal(t, 1, s.WatchedRoots)
	require.Equal(t, node.Config().OnlineWeightMinimum, s.OnlineStake)

	enc, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(enc, &decoded))
	require.Contains(t, decoded, "containers")
	require.Contains(t, decoded, "difficulty_trend")
}

func TestNodeDataDir(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	send := genesisSend(1)

	node := makeTestNode(t, testNodeConfig(false), dir)
	node.Start()
	node.ProcessBlock(send)
	node.Flush()
	node.Stop()

	node = makeTestNode(t, testNodeConfig(false), dir)
	defer node.Stop()
	require.True(t, node.Ledger().BlockExists(send.Hash()))
	require.Equal(t, uint64(2), node.Ledger().BlockCount())
}

func TestNodeStopWithoutStart(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(true), "")
	node.Stop()
}

func TestNodeRepCrawler(t *testing.T) {
	partitiontest.PartitionTest(t)

	node := makeTestNode(t, testNodeConfig(false), "")
	defer node.Stop()

	node.crawlReps()
	require.Empty(t, node.Network().PrincipalRepresentatives())

	node.OnlineReps().Observe(ledgertesting.Genesis().Account())
	node.crawlReps()
	reps := node.Network().PrincipalRepresentatives()
	require.Len(t, reps, 1)
	require.Equal(t, ledgertesting.Genesis().Account(), reps[0].Account)
}
