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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func destination(i byte) basics.Address {
	return ledgertesting.Addr(ledgertesting.Key(100 + i))
}

func TestElectionSimpleConfirmation(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := testConfig()
	cfg.OnlineWeightQuorum = 80
	h := makeHarness(t, cfg, false)
	h.online.stake = weight(105)

	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	var actions atomic.Int32
	res := h.m.Insert(blk, InsertParams{ConfirmationAction: func(b *blocks.Block) {
		require.Equal(t, blk.Hash(), b.Hash())
		actions.Add(1)
	}})
	require.True(t, res.Inserted)
	e := res.Election
	hash := blk.Hash()

	v1 := h.voter(1, weight(40))
	v2 := h.voter(2, weight(35))
	v3 := h.voter(3, weight(30))

	require.Equal(t, VoteProcessed, h.m.Vote(testVote(v1, 1, hash)))
	require.False(t, e.Confirmed())
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(v2, 2, hash)))
	require.False(t, e.Confirmed())
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(v3, 3, hash)))
	require.True(t, e.Confirmed())
	require.Equal(t, StateConfirmed, e.State())

	status := e.Status()
	require.Equal(t, hash, status.Winner.Hash())
	require.Equal(t, StatusActiveConfirmedQuorum, status.Type)
	require.Equal(t, weight(105), status.Tally)
	require.Equal(t, uint32(3), status.VoterCount)
	require.Equal(t, uint32(1), status.BlockCount)

	require.Eventually(t, func() bool { return actions.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	h.m.tasks.Wait()
	require.Equal(t, int32(1), actions.Load())
	require.Equal(t, 1, h.m.ContainerInfo().ElectionWinnerDetails)
}

func TestElectionConfirmOnceIdempotent(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	var actions atomic.Int32
	res := h.m.Insert(blk, InsertParams{ConfirmationAction: func(*blocks.Block) { actions.Add(1) }})
	require.True(t, res.Inserted)
	e := res.Election

	h.m.mu.Lock()
	e.confirmOnce(StatusActiveConfirmedQuorum)
	first := e.status
	h.clock.Advance(time.Second)
	e.confirmOnce(StatusActiveConfirmationHeight)
	second := e.status
	h.m.mu.Unlock()

	require.Equal(t, first, second)
	h.m.tasks.Wait()
	require.Equal(t, int32(1), actions.Load())
	require.Equal(t, 1, electionsRecentlyConfirmed(h.m))
}

func electionsRecentlyConfirmed(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentlyConfirmed.size()
}

func TestElectionVoteReplay(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	res := h.m.Insert(blk, InsertParams{})
	e := res.Election
	hash := blk.Hash()
	rep := h.voter(1, weight(1))

	require.Equal(t, VoteProcessed, h.m.Vote(testVote(rep, 5, hash)))
	require.Equal(t, VoteReplay, h.m.Vote(testVote(rep, 5, hash)))

	// lower sequences stay replays however much time passes
	h.clock.Advance(time.Hour)
	require.Equal(t, VoteReplay, h.m.Vote(testVote(rep, 4, hash)))
	require.Equal(t, uint64(5), e.Votes()[rep].Sequence)
}

func TestElectionVoteCooldown(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	e := h.m.Insert(blk, InsertParams{}).Election
	hash := blk.Hash()

	// 1% to 5% of the online stake waits 5s between tally moves
	rep := h.voter(1, weight(1))
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(rep, 1, hash)))
	h.clock.Advance(time.Second)
	h.m.Vote(testVote(rep, 2, hash))
	require.Equal(t, uint64(1), e.Votes()[rep].Sequence)

	h.clock.Advance(5 * time.Second)
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(rep, 3, hash)))
	require.Equal(t, uint64(3), e.Votes()[rep].Sequence)

	require.Equal(t, 15*time.Second, cooldown(weight(0), weight(100)))
	require.Equal(t, 5*time.Second, cooldown(weight(1), weight(100)))
	require.Equal(t, time.Second, cooldown(weight(5), weight(100)))
}

func TestElectionForkResolution(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := testConfig()
	cfg.OnlineWeightQuorum = 60
	cfg.EnableVoting = true
	h := makeHarness(t, cfg, true)

	a := h.send(h.genesis, destination(1), basics.NewAmount(1))
	b := h.fork(h.genesis, destination(2), basics.NewAmount(2))
	require.Equal(t, a.QualifiedRoot(), b.QualifiedRoot())

	e := h.m.Insert(a, InsertParams{}).Election
	require.False(t, h.m.Publish(b))
	require.Len(t, e.Blocks(), 2)
	checkIndices(t, h.m)

	local := h.voter(1, weight(30))
	v2 := h.voter(2, weight(25))
	v3 := h.voter(3, weight(35))

	localVote := testVote(local, 1, a.Hash())
	h.m.generator.History().Add(a.Root(), a.Hash(), localVote)
	h.m.Vote(localVote)
	h.m.Vote(testVote(v2, 1, a.Hash()))
	h.m.Vote(testVote(v3, 1, b.Hash()))
	require.Equal(t, a.Hash(), e.Winner().Hash())
	require.Empty(t, h.bp.snapshot())

	h.clock.Advance(2 * time.Second)
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(v2, 2, b.Hash())))

	require.Equal(t, b.Hash(), e.Winner().Hash())
	require.False(t, e.Confirmed())
	forced := h.bp.snapshot()
	require.Len(t, forced, 1)
	require.Equal(t, b.Hash(), forced[0].Hash())

	votes := e.Votes()
	require.NotContains(t, votes, local)
	require.Equal(t, b.Hash(), votes[v2].Hash)
	require.False(t, h.m.generator.History().Exists(a.Root()))
	require.Equal(t, b.Hash(), h.m.Winner(a.Hash()).Hash())
}

func TestElectionInactiveVotesFolded(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	rep := h.voter(1, weight(10))

	require.Equal(t, VoteIndeterminate, h.m.Vote(testVote(rep, 1, blk.Hash())))
	cached, ok := h.m.FindInactiveVotesCache(blk.Hash())
	require.True(t, ok)
	require.Equal(t, []basics.Address{rep}, cached.Voters)

	e := h.m.Insert(blk, InsertParams{}).Election
	votes := e.Votes()
	require.Contains(t, votes, rep)
	require.Equal(t, blk.Hash(), votes[rep].Hash)

	tally := e.Tally()
	require.Len(t, tally, 1)
	require.Equal(t, weight(10), tally[0].Weight)
}

func TestElectionExpiry(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	h.m.Vote(testVote(h.voter(1, weight(10)), 1, blk.Hash()))
	e := h.m.Insert(blk, InsertParams{}).Election
	root := blk.QualifiedRoot()

	h.m.mu.Lock()
	h.m.requestConfirm()
	h.m.mu.Unlock()
	require.True(t, h.m.Active(root))

	h.clock.Advance(electionExpiry + time.Second)
	h.m.mu.Lock()
	h.m.requestConfirm()
	dropped := h.m.recentlyDropped.find(root)
	h.m.mu.Unlock()

	require.False(t, h.m.Active(root))
	require.Equal(t, StateExpiredUnconfirmed, e.State())
	require.Equal(t, StatusStopped, e.Status().Type)
	require.False(t, dropped.IsZero())
	checkIndices(t, h.m)

	_, cached := h.m.FindInactiveVotesCache(blk.Hash())
	require.False(t, cached)
	require.Eventually(t, func() bool { return h.net.clearedCount() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestElectionStateMachine(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	h.net.reps = []Representative{{Account: h.voter(9, weight(20)), Weight: weight(20), Channel: "pr"}}
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	e := h.m.Insert(blk, InsertParams{}).Election
	require.Equal(t, StatePassive, e.State())

	pass := func() {
		h.m.mu.Lock()
		h.m.requestConfirm()
		h.m.mu.Unlock()
	}

	// passive elections wait five base latencies before soliciting
	pass()
	require.Equal(t, StatePassive, e.State())
	h.clock.Advance(6 * h.m.params.BaseLatency)
	pass()
	require.Equal(t, StateActive, e.State())

	for i := 1; i <= 3; i++ {
		pass()
		require.Equal(t, i, h.net.confirmReqCount("pr"))
		require.Equal(t, uint32(i), e.Status().RequestCount)
		// a second pass within five base latencies sends nothing
		pass()
		require.Equal(t, i, h.net.confirmReqCount("pr"))
		h.clock.Advance(6 * h.m.params.BaseLatency)
	}
	require.Equal(t, StateBroadcasting, e.State())

	h.clock.Advance(16 * h.m.params.BaseLatency)
	pass()
	h.net.mu.Lock()
	directed := len(h.net.sentBlocks["pr"])
	flooded := len(h.net.floodBlocks)
	h.net.mu.Unlock()
	require.Equal(t, 1, directed)
	require.Equal(t, 1, flooded)
}

func TestElectionForkFloodGuard(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	first := h.send(h.genesis, destination(0), basics.NewAmount(1))
	e := h.m.Insert(first, InsertParams{}).Election
	for i := byte(1); i < forkFloodCandidates; i++ {
		require.False(t, h.m.Publish(h.fork(h.genesis, destination(i), basics.NewAmount(1))))
	}
	require.Len(t, e.Blocks(), forkFloodCandidates)

	// lightly voted candidates are refused once the fork flood limit is hit
	extra := h.fork(h.genesis, destination(50), basics.NewAmount(1))
	require.True(t, h.m.Publish(extra))
	require.Len(t, e.Blocks(), forkFloodCandidates)

	// republishing a known candidate is not a new candidate
	require.True(t, h.m.Publish(first))
	checkIndices(t, h.m)
}
