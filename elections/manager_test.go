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
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/ledger"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/test/partitiontest"
)

var genesisAccount = ledgertesting.Addr(ledgertesting.GenesisKey())

// confirm votes blk through with a single overwhelming representative.
func (h *harness) confirm(blk *blocks.Block) {
	rep := h.voter(200, weight(90))
	require.Equal(h.t, VoteProcessed, h.m.Vote(testVote(rep, 1, blk.Hash())))
}

func TestManagerInsertExisting(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))

	first := h.m.Insert(blk, InsertParams{})
	require.True(t, first.Inserted)
	require.NotNil(t, first.Election)
	require.Equal(t, BehaviorNormal, first.Election.Behavior())

	again := h.m.Insert(blk, InsertParams{Behavior: BehaviorOptimistic})
	require.False(t, again.Inserted)
	require.Same(t, first.Election, again.Election)
	require.Equal(t, 1, h.m.Size())
	require.True(t, h.m.ActiveBlock(blk))
	require.Same(t, first.Election, h.m.Election(blk.QualifiedRoot()))
	checkIndices(t, h.m)
}

func TestManagerRecentlyConfirmedRefused(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	e := h.m.Insert(blk, InsertParams{}).Election
	h.confirm(blk)
	require.True(t, e.Confirmed())

	h.m.Erase(blk)
	require.True(t, h.m.Empty())

	res := h.m.Insert(blk, InsertParams{})
	require.False(t, res.Inserted)
	require.Nil(t, res.Election)

	// votes for a recently confirmed block are replays
	rep := h.voter(3, weight(5))
	require.Equal(t, VoteReplay, h.m.Vote(testVote(rep, 1, blk.Hash())))
	_, cached := h.m.FindInactiveVotesCache(blk.Hash())
	require.False(t, cached)

	h.m.EraseRecentlyConfirmed(blk.Hash())
	require.Equal(t, VoteIndeterminate, h.m.Vote(testVote(rep, 2, blk.Hash())))
}

func TestManagerVoteCodes(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	rep := h.voter(1, weight(10))
	unknown := crypto.Hash([]byte("unknown"))

	require.Equal(t, VoteIndeterminate, h.m.Vote(testVote(rep, 1, unknown)))
	h.m.Insert(blk, InsertParams{})
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(rep, 2, blk.Hash(), unknown)))
	require.Equal(t, 1, h.net.floodedVotes())
	require.Equal(t, VoteReplay, h.m.Vote(testVote(rep, 2, blk.Hash())))
	require.Equal(t, 1, h.net.floodedVotes())

	// nodes with a local principal representative do not relay votes
	h.wallets.counts.HalfPrincipal = 1
	h.clock.Advance(time.Minute)
	require.Equal(t, VoteProcessed, h.m.Vote(testVote(rep, 3, blk.Hash())))
	require.Equal(t, 1, h.net.floodedVotes())
}

func TestManagerEraseNotifies(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	fork := h.fork(h.genesis, destination(2), basics.NewAmount(1))

	var mu sync.Mutex
	stopped := make(map[crypto.Digest]bool)
	h.m.AddActiveStoppedObserver(func(hash crypto.Digest) {
		mu.Lock()
		defer mu.Unlock()
		stopped[hash] = true
	})

	h.m.Insert(blk, InsertParams{})
	require.False(t, h.m.Publish(fork))
	require.Equal(t, blk.Hash(), h.m.Winner(fork.Hash()).Hash())

	h.m.Erase(blk)
	h.m.Erase(blk)
	require.True(t, h.m.Empty())
	require.Nil(t, h.m.Winner(blk.Hash()))
	checkIndices(t, h.m)

	h.m.tasks.Wait()
	mu.Lock()
	require.True(t, stopped[blk.Hash()])
	require.True(t, stopped[fork.Hash()])
	mu.Unlock()
	require.Equal(t, 2, h.net.clearedCount())

	info := h.m.ContainerInfo()
	require.Equal(t, 1, info.RecentlyDropped)
	require.Zero(t, info.Roots)
	require.Zero(t, info.Blocks)
}

func TestManagerPublishWithoutElection(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	fork := h.fork(h.genesis, destination(2), basics.NewAmount(1))
	require.True(t, h.m.Publish(fork))
	require.False(t, h.m.UpdateDifficulty(fork))
	require.True(t, h.m.Empty())
}

func TestManagerActivate(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	require.False(t, h.m.Activate(genesisAccount).Inserted)
	require.False(t, h.m.Activate(destination(1)).Inserted)

	send1 := h.send(h.genesis, destination(1), basics.NewAmount(1))
	h.send(send1, destination(1), basics.NewAmount(1))

	res := h.m.Activate(genesisAccount)
	require.True(t, res.Inserted)
	require.Equal(t, send1.Hash(), res.Election.Winner().Hash())
	require.Equal(t, StateActive, res.Election.State())

	again := h.m.Activate(genesisAccount)
	require.False(t, again.Inserted)
	require.Same(t, res.Election, again.Election)
}

func TestManagerRestart(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))

	var harder *blocks.Block
	for nonce := blk.Work + 1; nonce < blk.Work+1<<20; nonce++ {
		if c := blk.WithWork(nonce); c.Difficulty() > blk.Difficulty() {
			harder = c
			break
		}
	}
	require.NotNil(t, harder)

	restart := func(b *blocks.Block) (ok bool) {
		require.NoError(t, h.ledger.Update(func(tx *ledger.WriteTxn) error {
			ok = h.m.Restart(b, tx)
			return nil
		}))
		return
	}

	// never dropped
	require.False(t, restart(harder))

	h.m.Insert(blk, InsertParams{})
	h.m.Erase(blk)
	require.False(t, restart(blk))
	require.True(t, restart(harder))

	e := h.m.Election(blk.QualifiedRoot())
	require.NotNil(t, e)
	require.Equal(t, StateActive, e.State())
	require.Equal(t, harder.Work, e.Winner().Work)

	stored, err := h.ledger.Block(blk.Hash())
	require.NoError(t, err)
	require.Equal(t, harder.Work, stored.Work)

	// restarts only happen shortly after the drop
	h.m.Erase(blk)
	h.clock.Advance(restartWindow + time.Second)
	require.False(t, restart(blk))
}

func TestManagerUpdateDifficulty(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	h.m.Insert(blk, InsertParams{})

	require.False(t, h.m.UpdateDifficulty(blk))
	var harder *blocks.Block
	for nonce := blk.Work + 1; nonce < blk.Work+1<<20; nonce++ {
		if c := blk.WithWork(nonce); c.Difficulty() > blk.Difficulty() {
			harder = c
			break
		}
	}
	require.NotNil(t, harder)
	require.True(t, h.m.UpdateDifficulty(harder))
	require.False(t, h.m.UpdateDifficulty(harder))
	checkIndices(t, h.m)
}

func TestManagerActiveDifficulty(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := testConfig()
	cfg.MaxWorkGenerateMultiplier = 2
	h := makeHarness(t, cfg, false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))

	base := h.m.params.Thresholds.Base()
	require.Equal(t, 1.0, h.m.ActiveMultiplier())
	require.InEpsilon(t, float64(-base), float64(-h.m.ActiveDifficulty()), 1e-9)
	require.LessOrEqual(t, h.m.LimitedActiveDifficulty(blk), h.m.ActiveDifficulty())

	limit := h.m.LimitedActiveDifficulty(blk)
	h.m.trendedMultiplier.Store(math.Float64bits(1000))
	require.Greater(t, h.m.ActiveDifficulty(), base)
	require.GreaterOrEqual(t, h.m.LimitedActiveDifficulty(blk), limit)
	require.LessOrEqual(t, h.m.LimitedActiveDifficulty(blk), h.m.ActiveDifficulty())

	trend := h.m.DifficultyTrend()
	require.Len(t, trend, trendWindow)
	for _, s := range trend {
		require.Equal(t, 1.0, s)
	}
}

func TestManagerCemented(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	send1 := h.send(h.genesis, destination(1), basics.NewAmount(7))
	send2 := h.send(send1, destination(2), basics.NewAmount(1))

	var mu sync.Mutex
	var confirmed []ConfirmedBlock
	balances := make(map[basics.Address]bool)
	h.m.AddBlockObserver(func(b ConfirmedBlock) {
		mu.Lock()
		defer mu.Unlock()
		confirmed = append(confirmed, b)
	})
	h.m.AddAccountBalanceObserver(func(account basics.Address, pending bool) {
		mu.Lock()
		defer mu.Unlock()
		balances[account] = pending
	})
	h.cementer.Start()

	h.m.Insert(send1, InsertParams{})
	h.confirm(send1)

	require.Eventually(t, func() bool { return h.ledger.BlockConfirmed(send1.Hash()) }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.m.RecentlyCemented()) == 1 }, 5*time.Second, 10*time.Millisecond)

	cemented := h.m.RecentlyCemented()[0]
	require.Equal(t, send1.Hash(), cemented.Winner.Hash())

	mu.Lock()
	require.Len(t, confirmed, 1)
	require.Equal(t, genesisAccount, confirmed[0].Account)
	require.Equal(t, basics.NewAmount(7), confirmed[0].Amount)
	require.True(t, confirmed[0].IsSend)
	require.Equal(t, StatusActiveConfirmedQuorum, confirmed[0].Status.Type)
	require.False(t, balances[genesisAccount])
	require.True(t, balances[destination(1)])
	mu.Unlock()

	require.Eventually(t, func() bool { return h.m.ContainerInfo().ElectionWinnerDetails == 0 }, 5*time.Second, 10*time.Millisecond)

	// the next block of the account is activated once its predecessor is cemented
	require.Eventually(t, func() bool { return h.m.Active(send2.QualifiedRoot()) }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, StateActive, h.m.Election(send2.QualifiedRoot()).State())
}

func TestManagerCementedWithoutElection(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	send1 := h.send(h.genesis, destination(1), basics.NewAmount(3))
	send2 := h.send(send1, destination(2), basics.NewAmount(1))

	done := make(chan ConfirmedBlock, 1)
	h.m.AddBlockObserver(func(b ConfirmedBlock) { done <- b })
	h.cementer.Start()
	h.cementer.Add(send2.Hash())

	select {
	case b := <-done:
		require.Equal(t, StatusInactiveConfirmationHeight, b.Status.Type)
		require.Equal(t, send1.Hash(), b.Status.Winner.Hash())
		require.Equal(t, basics.NewAmount(3), b.Amount)
		require.True(t, b.IsSend)
	case <-time.After(5 * time.Second):
		t.Fatal("block was not reported")
	}
	h.cementer.WaitIdle()
	require.True(t, h.ledger.BlockConfirmed(send2.Hash()))
	require.True(t, h.m.Empty())
}

func TestManagerConfirmationHeightBeforeQuorum(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	send1 := h.send(h.genesis, destination(1), basics.NewAmount(3))
	send2 := h.send(send1, destination(2), basics.NewAmount(1))
	var actions sync.WaitGroup
	actions.Add(1)
	e := h.m.Insert(send1, InsertParams{ConfirmationAction: func(*blocks.Block) { actions.Done() }}).Election

	done := make(chan ConfirmedBlock, 2)
	h.m.AddBlockObserver(func(b ConfirmedBlock) { done <- b })
	h.cementer.Start()
	// send1 is cemented as a dependency of send2, before its election
	// reached quorum
	h.cementer.Add(send2.Hash())

	select {
	case b := <-done:
		require.Equal(t, send1.Hash(), b.Status.Winner.Hash())
		require.Equal(t, StatusActiveConfirmationHeight, b.Status.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("block was not reported")
	}
	require.True(t, e.Confirmed())
	require.Equal(t, StatusActiveConfirmationHeight, e.Status().Type)
	actions.Wait()
}

func TestManagerContainerInfo(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), true)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	h.m.Vote(testVote(h.voter(1, weight(10)), 1, crypto.Hash([]byte("x"))))
	h.m.Insert(blk, InsertParams{})

	info := h.m.ContainerInfo()
	require.Equal(t, 1, info.Roots)
	require.Equal(t, 1, info.Blocks)
	require.Equal(t, 1, info.InactiveVotesCache)

	out, err := json.Marshal(info)
	require.NoError(t, err)
	var fields map[string]int
	require.NoError(t, json.Unmarshal(out, &fields))
	require.Equal(t, 1, fields["roots"])
	require.Contains(t, fields, "election_winner_details")
	require.Contains(t, fields, "priority_cementable_frontiers")
}

func TestManagerStopClears(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := testConfig()
	cfg.DisableRequestLoop = false
	h := makeHarness(t, cfg, false)
	blk := h.send(h.genesis, destination(1), basics.NewAmount(1))
	h.m.Start()
	h.m.Insert(blk, InsertParams{})
	h.m.Stop()

	require.True(t, h.m.Empty())
	res := h.m.Insert(blk, InsertParams{})
	require.False(t, res.Inserted)
	require.Nil(t, res.Election)
}

// TestManagerIndicesProperty applies random sequences of operations and
// checks that the root index, hash index and arena stay in agreement.
func TestManagerIndicesProperty(t *testing.T) {
	partitiontest.PartitionTest(t)

	h := makeHarness(t, testConfig(), false)
	var stored []*blocks.Block
	forks := make(map[int][]*blocks.Block)
	prev := h.genesis
	for i := 0; i < 3; i++ {
		blk := h.send(prev, destination(byte(i)), basics.NewAmount(1))
		stored = append(stored, blk)
		for j := 0; j < 3; j++ {
			forks[i] = append(forks[i], h.fork(prev, destination(byte(10+10*i+j)), basics.NewAmount(2)))
		}
		prev = blk
	}
	reps := []basics.Address{h.voter(1, weight(20)), h.voter(2, weight(30)), h.voter(3, weight(45))}

	rapid.Check(t, func(rt *rapid.T) {
		h.reset()
		seq := uint64(0)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			i := rapid.IntRange(0, len(stored)-1).Draw(rt, "root")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				h.m.Insert(stored[i], InsertParams{})
			case 1:
				h.m.Publish(forks[i][rapid.IntRange(0, 2).Draw(rt, "fork")])
			case 2:
				h.m.Erase(stored[i])
			case 3:
				candidates := append([]*blocks.Block{stored[i]}, forks[i]...)
				target := candidates[rapid.IntRange(0, len(candidates)-1).Draw(rt, "candidate")]
				seq++
				h.clock.Advance(20 * time.Second)
				h.m.Vote(testVote(reps[rapid.IntRange(0, len(reps)-1).Draw(rt, "rep")], seq, target.Hash()))
			}
			checkIndices(rt, h.m)
			require.LessOrEqual(rt, h.m.Size(), len(stored))

			info := h.m.ContainerInfo()
			require.LessOrEqual(rt, info.InactiveVotesCache, h.m.cfg.InactiveVotesCacheSize)
			require.LessOrEqual(rt, info.RecentlyCemented, h.m.cfg.ConfirmationHistorySize)
		}
	})
}
