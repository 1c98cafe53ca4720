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

package ledger_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/ledger"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/test/partitiontest"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	l, err := ledger.OpenLedger(logging.TestingLog(t), t.Name(), true, ledgertesting.Genesis(), ledgertesting.DevParams())
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func genesisBlock(t *testing.T, l *ledger.Ledger) *blocks.Block {
	blk, err := l.Block(l.GenesisHash())
	require.NoError(t, err)
	return blk
}

func process(t *testing.T, l *ledger.Ledger, blk *blocks.Block) *blocks.Block {
	out, err := l.Process(blk)
	require.NoError(t, err)
	return out
}

func TestLedgerGenesis(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	gk := ledgertesting.GenesisKey()

	require.Equal(t, uint64(1), l.BlockCount())
	require.Equal(t, uint64(1), l.CementedCount())
	require.Equal(t, ledgertesting.GenesisAmount, l.Weight(ledgertesting.Addr(gk)))
	require.True(t, l.BlockConfirmed(l.GenesisHash()))

	g := genesisBlock(t, l)
	require.Equal(t, uint64(1), g.Sideband.Height)
	require.Equal(t, basics.Epoch0, g.Sideband.Details.Epoch)

	info, err := l.AccountInfo(ledgertesting.Addr(gk))
	require.NoError(t, err)
	require.Equal(t, l.GenesisHash(), info.Head)
	require.Equal(t, l.GenesisHash(), info.OpenBlock)

	_, err = l.AccountInfo(ledgertesting.Addr(ledgertesting.Key(9)))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestLedgerSendReceive(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	amount := basics.GxrbRatio.Mul64(100)

	send := ledgertesting.Send(gk, genesisBlock(t, l), ledgertesting.Addr(k1), amount, th)
	sent := process(t, l, send)
	require.Equal(t, uint64(2), sent.Sideband.Height)
	require.True(t, sent.Sideband.Details.IsSend)
	require.Equal(t, ledgertesting.Addr(k1), l.BlockDestination(sent))
	require.Equal(t, send.Hash(), l.Successor(l.GenesisHash()))

	pending, ok := l.Pending(ledgertesting.Addr(k1), send.Hash())
	require.True(t, ok)
	require.Equal(t, amount, pending.Amount)
	require.Equal(t, ledgertesting.Addr(gk), pending.Source)

	_, err := l.Process(send)
	require.ErrorIs(t, err, ledger.ErrOld)

	open := ledgertesting.Receive(k1, nil, send, amount, th)
	opened := process(t, l, open)
	require.True(t, opened.Sideband.Details.IsReceive)
	require.Equal(t, uint64(1), opened.Sideband.Height)
	require.Equal(t, send.Hash(), l.BlockSource(opened))

	_, ok = l.Pending(ledgertesting.Addr(k1), send.Hash())
	require.False(t, ok)
	require.Equal(t, amount, l.Weight(ledgertesting.Addr(k1)))
	require.Equal(t, ledgertesting.GenesisAmount.Sub(amount), l.Weight(ledgertesting.Addr(gk)))
	require.Equal(t, amount, l.AccountBalance(ledgertesting.Addr(k1)))
	require.Equal(t, uint64(3), l.BlockCount())

	// the open block depends on an uncemented send
	require.False(t, l.DependentsConfirmed(opened))
	require.True(t, l.DependentsConfirmed(sent))

	conf, err := l.ConfirmationHeight(ledgertesting.Addr(k1))
	require.NoError(t, err)
	require.Zero(t, conf.Height)
}

func TestLedgerProcessErrors(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	k2 := ledgertesting.Key(2)
	amount := basics.GxrbRatio
	genesis := genesisBlock(t, l)

	send := process(t, l, ledgertesting.Send(gk, genesis, ledgertesting.Addr(k1), amount, th))

	fork := ledgertesting.Send(gk, genesis, ledgertesting.Addr(k2), amount, th)
	_, err := l.Process(fork)
	require.ErrorIs(t, err, ledger.ErrFork)

	orphan := ledgertesting.Send(gk, genesis, ledgertesting.Addr(k2), amount, th)
	orphan.Previous = crypto.Hash([]byte("missing"))
	orphan.Sign(gk)
	orphan = ledgertesting.Solve(orphan, th)
	_, err = l.Process(orphan)
	require.ErrorIs(t, err, ledger.ErrGapPrevious)

	unknownSource := ledgertesting.Receive(k2, nil, fork, amount, th)
	_, err = l.Process(unknownSource)
	require.ErrorIs(t, err, ledger.ErrGapSource)

	wrongAmount := ledgertesting.Receive(k1, nil, send, amount.Mul64(2), th)
	_, err = l.Process(wrongAmount)
	require.ErrorIs(t, err, ledger.ErrBalanceMismatch)

	notForMe := ledgertesting.Receive(k2, nil, send, amount, th)
	_, err = l.Process(notForMe)
	require.ErrorIs(t, err, ledger.ErrUnreceivable)

	badSig := ledgertesting.Receive(k1, nil, send, amount, th)
	badSig.Signature[0] ^= 1
	_, err = l.Process(badSig)
	require.ErrorIs(t, err, ledger.ErrBadSignature)

	lowWork := ledgertesting.Receive(k1, nil, send, amount, th)
	for lowWork.Difficulty() >= th.Entry() {
		lowWork.Work++
	}
	_, err = l.Process(lowWork)
	require.ErrorIs(t, err, ledger.ErrInsufficientWork)

	open := process(t, l, ledgertesting.Receive(k1, nil, send, amount, th))
	twice := ledgertesting.Receive(k1, open, send, amount, th)
	_, err = l.Process(twice)
	require.ErrorIs(t, err, ledger.ErrUnreceivable)

	require.Equal(t, uint64(3), l.BlockCount())
}

func TestLedgerChangeMovesWeight(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	rep := ledgertesting.Addr(ledgertesting.Key(7))

	change := process(t, l, ledgertesting.Change(gk, genesisBlock(t, l), rep, th))
	require.False(t, change.Sideband.Details.IsSend)
	require.False(t, change.Sideband.Details.IsReceive)
	require.Equal(t, ledgertesting.GenesisAmount, l.Weight(rep))
	require.True(t, l.Weight(ledgertesting.Addr(gk)).IsZero())
}

func TestLedgerEpochUpgrade(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	genesis := genesisBlock(t, l)

	skip := ledgertesting.Epoch(ledgertesting.Addr(gk), genesis, basics.Epoch2, th)
	_, err := l.Process(skip)
	require.ErrorIs(t, err, ledger.ErrBlockPosition)

	e1 := process(t, l, ledgertesting.Epoch(ledgertesting.Addr(gk), genesis, basics.Epoch1, th))
	require.True(t, e1.Sideband.Details.IsEpoch)
	require.Equal(t, basics.Epoch1, e1.Sideband.Details.Epoch)

	again := ledgertesting.Epoch(ledgertesting.Addr(gk), e1, basics.Epoch1, th)
	_, err = l.Process(again)
	require.ErrorIs(t, err, ledger.ErrBlockPosition)

	e2 := process(t, l, ledgertesting.Epoch(ledgertesting.Addr(gk), e1, basics.Epoch2, th))
	info, err := l.AccountInfo(ledgertesting.Addr(gk))
	require.NoError(t, err)
	require.Equal(t, basics.Epoch2, info.Epoch)
	require.Equal(t, ledgertesting.GenesisAmount, info.Balance)

	// an account with nothing receivable cannot be opened by an epoch block
	empty := ledgertesting.Epoch(ledgertesting.Addr(k1), nil, basics.Epoch2, th)
	_, err = l.Process(empty)
	require.ErrorIs(t, err, ledger.ErrBlockPosition)

	send := process(t, l, ledgertesting.Send(gk, e2, ledgertesting.Addr(k1), basics.GxrbRatio, th))
	require.Equal(t, basics.Epoch2, send.Sideband.Details.Epoch)
	opened := process(t, l, ledgertesting.Epoch(ledgertesting.Addr(k1), nil, basics.Epoch2, th))
	require.True(t, opened.Sideband.Details.IsEpoch)

	// the receive keeps the epoch of the chain
	recv := process(t, l, ledgertesting.Receive(k1, opened, send, basics.GxrbRatio, th))
	require.Equal(t, basics.Epoch2, recv.Sideband.Details.Epoch)
}

func TestLedgerRollbackReceivedSend(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	amount := basics.GxrbRatio

	send := process(t, l, ledgertesting.Send(gk, genesisBlock(t, l), ledgertesting.Addr(k1), amount, th))
	open := process(t, l, ledgertesting.Receive(k1, nil, send, amount, th))
	require.Equal(t, uint64(3), l.BlockCount())

	list, err := l.Rollback(send.Hash())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, open.Hash(), list[0].Hash())
	require.Equal(t, send.Hash(), list[1].Hash())

	require.Equal(t, uint64(1), l.BlockCount())
	require.False(t, l.BlockExists(send.Hash()))
	require.False(t, l.BlockExists(open.Hash()))
	require.True(t, l.Successor(l.GenesisHash()).IsZero())
	require.Equal(t, ledgertesting.GenesisAmount, l.Weight(ledgertesting.Addr(gk)))
	require.True(t, l.Weight(ledgertesting.Addr(k1)).IsZero())
	_, err = l.AccountInfo(ledgertesting.Addr(k1))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, ok := l.Pending(ledgertesting.Addr(k1), send.Hash())
	require.False(t, ok)

	// the chain can be extended again after the rollback
	process(t, l, send)
}

func TestLedgerRollbackRestoresPending(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	amount := basics.GxrbRatio

	send := process(t, l, ledgertesting.Send(gk, genesisBlock(t, l), ledgertesting.Addr(k1), amount, th))
	open := process(t, l, ledgertesting.Receive(k1, nil, send, amount, th))

	list, err := l.Rollback(open.Hash())
	require.NoError(t, err)
	require.Len(t, list, 1)

	pending, ok := l.Pending(ledgertesting.Addr(k1), send.Hash())
	require.True(t, ok)
	require.Equal(t, amount, pending.Amount)
	require.Equal(t, ledgertesting.GenesisAmount.Sub(amount), l.Weight(ledgertesting.Addr(gk)))
}

func TestCementerDependencyOrder(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	k1 := ledgertesting.Key(1)
	amount := basics.GxrbRatio

	send := process(t, l, ledgertesting.Send(gk, genesisBlock(t, l), ledgertesting.Addr(k1), amount, th))
	open := process(t, l, ledgertesting.Receive(k1, nil, send, amount, th))

	c := ledger.MakeCementer(l, logging.TestingLog(t))
	var mu sync.Mutex
	var cemented []crypto.Digest
	var already []crypto.Digest
	var addedDuringCallback []bool
	c.AddCementedObserver(func(blk *blocks.Block) {
		mu.Lock()
		defer mu.Unlock()
		cemented = append(cemented, blk.Hash())
		addedDuringCallback = append(addedDuringCallback, c.IsProcessingAddedBlock(blk.Hash()))
	})
	c.AddBlockAlreadyCementedObserver(func(h crypto.Digest) {
		mu.Lock()
		defer mu.Unlock()
		already = append(already, h)
	})
	c.Start()
	defer c.Stop()

	c.Add(open.Hash())
	c.WaitIdle()

	mu.Lock()
	require.Equal(t, []crypto.Digest{send.Hash(), open.Hash()}, cemented)
	require.Equal(t, []bool{false, true}, addedDuringCallback)
	mu.Unlock()

	require.Equal(t, uint64(3), l.CementedCount())
	require.True(t, l.BlockConfirmed(send.Hash()))
	require.True(t, l.BlockConfirmed(open.Hash()))
	require.True(t, l.DependentsConfirmed(open))
	require.False(t, c.IsProcessingBlock(open.Hash()))
	require.Zero(t, c.AwaitingProcessingSize())

	conf, err := l.ConfirmationHeight(ledgertesting.Addr(k1))
	require.NoError(t, err)
	require.Equal(t, uint64(1), conf.Height)
	require.Equal(t, open.Hash(), conf.Frontier)

	c.Add(send.Hash())
	c.WaitIdle()
	mu.Lock()
	require.Equal(t, []crypto.Digest{send.Hash()}, already)
	mu.Unlock()

	_, err = l.Rollback(open.Hash())
	var cementedErr ledger.ErrRollbackCemented
	require.True(t, errors.As(err, &cementedErr))
	require.Equal(t, uint64(1), cementedErr.Height)
}

func TestLedgerUpdateSetsWork(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	send := process(t, l, ledgertesting.Send(gk, genesisBlock(t, l), ledgertesting.Addr(ledgertesting.Key(1)), basics.GxrbRatio, th))

	better := work.Generate(send.Root(), th.Base(), send.Work+1)
	err := l.Update(func(tx *ledger.WriteTxn) error {
		require.False(t, tx.BlockConfirmed(send.Hash()))
		require.Equal(t, send.Balance, tx.Balance(send.Hash()))
		return tx.SetBlockWork(send.Hash(), better)
	})
	require.NoError(t, err)

	stored, err := l.Block(send.Hash())
	require.NoError(t, err)
	require.Equal(t, better, stored.Work)

	// a failing update leaves the ledger untouched
	err = l.Update(func(tx *ledger.WriteTxn) error {
		require.NoError(t, tx.SetBlockWork(send.Hash(), 0))
		return errors.New("abort")
	})
	require.Error(t, err)
	stored, err = l.Block(send.Hash())
	require.NoError(t, err)
	require.Equal(t, better, stored.Work)
}

func TestLedgerReopen(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	log := logging.TestingLog(t)
	l, err := ledger.OpenLedger(log, dir, false, ledgertesting.Genesis(), ledgertesting.DevParams())
	require.NoError(t, err)

	th := l.Thresholds()
	k1 := ledgertesting.Key(1)
	g, err := l.Block(l.GenesisHash())
	require.NoError(t, err)
	process(t, l, ledgertesting.Send(ledgertesting.GenesisKey(), g, ledgertesting.Addr(k1), basics.GxrbRatio, th))
	l.Close()

	l, err = ledger.OpenLedger(log, dir, false, ledgertesting.Genesis(), ledgertesting.DevParams())
	require.NoError(t, err)
	require.Equal(t, uint64(2), l.BlockCount())
	require.Equal(t, uint64(1), l.CementedCount())
	require.Equal(t, ledgertesting.GenesisAmount.Sub(basics.GxrbRatio), l.Weight(ledgertesting.Addr(ledgertesting.GenesisKey())))
	l.Close()

	other := ledger.MakeGenesis(ledgertesting.Key(3), ledgertesting.GenesisAmount)
	_, err = ledger.OpenLedger(log, dir, false, other, ledgertesting.DevParams())
	require.Error(t, err)
}

func TestLedgerAccountsIteration(t *testing.T) {
	partitiontest.PartitionTest(t)

	l := openTestLedger(t)
	th := l.Thresholds()
	gk := ledgertesting.GenesisKey()
	head := genesisBlock(t, l)
	for i := byte(1); i <= 4; i++ {
		k := ledgertesting.Key(i)
		send := process(t, l, ledgertesting.Send(gk, head, ledgertesting.Addr(k), basics.GxrbRatio, th))
		process(t, l, ledgertesting.Receive(k, nil, send, basics.GxrbRatio, th))
		head = send
	}

	all, err := l.Accounts(basics.Address{}, 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].Address.Less(all[i].Address))
	}

	page, err := l.Accounts(all[2].Address, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, all[2].Address, page[0].Address)
}
