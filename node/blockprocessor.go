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
	"errors"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/util/metrics"
	"github.com/algorand/go-blocklattice/util/timers"
	"github.com/algorand/go-blocklattice/voting"
)

const (
	// uncheckedSize bounds the blocks held back until a missing previous or
	// source block arrives.
	uncheckedSize = 16 * 1024
	// forkAccountAge is how long an account must have been untouched before
	// its block may enter a fork election with unconfirmed dependencies.
	forkAccountAge = 300 * time.Second
)

var blockProcessorQueued = metrics.MakeGauge(metrics.BlockProcessorQueued)
var blockProcessorResults = metrics.NewTagCounter("lattice_block_processor_{TAG}_total", "Number of blocks processed with result {TAG}")

type blockFlooder interface {
	FloodBlock(blk *blocks.Block, scale float64)
}

type blockOrigin uint8

const (
	originRemote blockOrigin = iota
	originLocal
)

type queuedBlock struct {
	blk    *blocks.Block
	origin blockOrigin
}

// BlockProcessor writes incoming blocks into the ledger on a single
// goroutine and starts or feeds the elections for them. Forced blocks go
// first and replace whatever the ledger holds for their root.
type BlockProcessor struct {
	log      logging.Logger
	ledger   *ledger.Ledger
	cementer elections.Cementer
	active   *elections.Manager
	net      blockFlooder
	wallets  *Wallets
	history  *voting.History
	clock    timers.Clock

	unchecked *lru.Cache[crypto.Digest, []queuedBlock]

	mu      deadlock.Mutex
	cond    *sync.Cond
	blocks  []queuedBlock
	forced  []*blocks.Block
	busy    bool
	running bool
	closed  chan struct{}
}

// MakeBlockProcessor creates a stopped block processor. The elections it
// feeds are attached with setActive before Start.
func MakeBlockProcessor(log logging.Logger, l *ledger.Ledger, cementer elections.Cementer, net blockFlooder, wallets *Wallets, history *voting.History, clock timers.Clock) *BlockProcessor {
	if clock == nil {
		clock = timers.MakeMonotonicClock()
	}
	unchecked, err := lru.New[crypto.Digest, []queuedBlock](uncheckedSize)
	if err != nil {
		log.Panicf("MakeBlockProcessor: %v", err)
	}
	bp := &BlockProcessor{
		log:       log,
		ledger:    l,
		cementer:  cementer,
		net:       net,
		wallets:   wallets,
		history:   history,
		clock:     clock,
		unchecked: unchecked,
	}
	bp.cond = sync.NewCond(&bp.mu)
	return bp
}

func (bp *BlockProcessor) setActive(m *elections.Manager) {
	bp.active = m
}

// Start launches the processing goroutine
func (bp *BlockProcessor) Start() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.running {
		return
	}
	bp.running = true
	bp.closed = make(chan struct{})
	go bp.run()
}

// Stop waits for the block being processed and stops the goroutine. Queued
// blocks are dropped.
func (bp *BlockProcessor) Stop() {
	bp.mu.Lock()
	if !bp.running {
		bp.mu.Unlock()
		return
	}
	bp.running = false
	bp.cond.Broadcast()
	closed := bp.closed
	bp.mu.Unlock()
	<-closed
}

// Add queues a block received from the network.
func (bp *BlockProcessor) Add(blk *blocks.Block) {
	bp.enqueue(queuedBlock{blk: blk, origin: originRemote})
}

// AddLocal queues a block created by a local wallet. Its root is watched
// until the block is confirmed.
func (bp *BlockProcessor) AddLocal(blk *blocks.Block) {
	bp.enqueue(queuedBlock{blk: blk, origin: originLocal})
}

func (bp *BlockProcessor) enqueue(qb queuedBlock) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.blocks = append(bp.blocks, qb)
	bp.updateGauge()
	bp.cond.Broadcast()
}

// Force queues blk to replace the block the ledger holds for its root. It
// only queues, so it is safe to call with the elections locked.
func (bp *BlockProcessor) Force(blk *blocks.Block) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.forced = append(bp.forced, blk)
	bp.updateGauge()
	bp.cond.Broadcast()
}

// Size is the number of queued blocks
func (bp *BlockProcessor) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.blocks) + len(bp.forced)
}

// UncheckedSize is the number of missing blocks that queued blocks wait for.
func (bp *BlockProcessor) UncheckedSize() int {
	return bp.unchecked.Len()
}

// Flush blocks until every queued block has been processed.
func (bp *BlockProcessor) Flush() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for bp.running && (len(bp.blocks) > 0 || len(bp.forced) > 0 || bp.busy) {
		bp.cond.Wait()
	}
}

func (bp *BlockProcessor) updateGauge() {
	blockProcessorQueued.Set(float64(len(bp.blocks) + len(bp.forced)))
}

func (bp *BlockProcessor) run() {
	defer close(bp.closed)
	bp.mu.Lock()
	for {
		for bp.running && len(bp.blocks) == 0 && len(bp.forced) == 0 {
			bp.cond.Wait()
		}
		if !bp.running {
			bp.mu.Unlock()
			return
		}

		var forced *blocks.Block
		var next queuedBlock
		if len(bp.forced) > 0 {
			forced = bp.forced[0]
			bp.forced = bp.forced[1:]
		} else {
			next = bp.blocks[0]
			bp.blocks = bp.blocks[1:]
		}
		bp.busy = true
		bp.updateGauge()
		bp.mu.Unlock()

		if forced != nil {
			bp.processForced(forced)
		} else {
			bp.processOne(next)
		}

		bp.mu.Lock()
		bp.busy = false
		bp.cond.Broadcast()
	}
}

// processForced rolls back the ledger's block for the root of blk, and
// everything built on it, before processing blk.
func (bp *BlockProcessor) processForced(blk *blocks.Block) {
	hash := blk.Hash()
	successor := bp.forkedBlock(blk)
	if successor != nil && successor.Hash() != hash {
		successorHash := successor.Hash()
		bp.log.Infof("rolling back %v and replacing with %v", successorHash.Hex(), hash.Hex())
		list, err := bp.ledger.Rollback(successorHash)
		if err != nil {
			bp.log.Errorf("failed to roll back %v because it or a successor was confirmed: %v", successorHash.Hex(), err)
		} else {
			bp.log.Infof("%d blocks rolled back", len(list))
		}
		for _, rolled := range list {
			if bp.history != nil {
				bp.history.Erase(rolled.Root())
			}
			bp.wallets.Unwatch(rolled.QualifiedRoot())
			// the election deciding this root stays
			if rolled.Hash() != successorHash {
				bp.active.Erase(rolled)
			}
		}
	}
	bp.processOne(queuedBlock{blk: blk, origin: originRemote})
}

func (bp *BlockProcessor) processOne(qb queuedBlock) {
	blk := qb.blk
	out, err := bp.ledger.Process(blk)
	switch {
	case err == nil:
		blockProcessorResults.Add("progress", 1)
		bp.processLive(out, qb.origin)
		bp.releaseUnchecked(out.Hash())
	case errors.Is(err, ledger.ErrOld):
		blockProcessorResults.Add("old", 1)
		bp.processOld(blk, qb.origin)
	case errors.Is(err, ledger.ErrFork):
		blockProcessorResults.Add("fork", 1)
		bp.processFork(blk)
	case errors.Is(err, ledger.ErrGapPrevious):
		blockProcessorResults.Add("gap_previous", 1)
		bp.holdUnchecked(blk.Previous, qb)
	case errors.Is(err, ledger.ErrGapSource):
		blockProcessorResults.Add("gap_source", 1)
		bp.holdUnchecked(blk.Link, qb)
	default:
		blockProcessorResults.Add("rejected", 1)
		h := blk.Hash()
		bp.log.Debugf("block %v rejected: %v", h.Hex(), err)
	}
}

// processLive starts an election for a block that was just written, or lets
// cached votes start one if its dependencies are not cemented yet.
func (bp *BlockProcessor) processLive(blk *blocks.Block, origin blockOrigin) {
	local := origin == originLocal
	if local {
		bp.wallets.Watch(blk.QualifiedRoot())
	}
	if local || bp.ledger.DependentsConfirmed(blk) {
		bp.active.Insert(blk, elections.InsertParams{})
	} else {
		bp.active.TriggerInactiveVotesCacheElection(blk)
	}
	bp.net.FloodBlock(blk, 1)
}

// processOld lets a known block carrying more work raise its election's
// difficulty, or restart the election if it was dropped recently.
func (bp *BlockProcessor) processOld(blk *blocks.Block, origin blockOrigin) {
	updated := bp.active.UpdateDifficulty(blk)
	restarted := false
	if !updated {
		err := bp.ledger.Update(func(tx *ledger.WriteTxn) error {
			restarted = bp.active.Restart(blk, tx)
			return nil
		})
		if err != nil {
			bp.log.Warnf("restarting election for %v: %v", blk.Hash().Hex(), err)
		}
	}
	if (updated || restarted) && origin == originLocal {
		bp.net.FloodBlock(blk, 1)
	}
}

// processFork starts an election for the ledger's block at the root of blk,
// when that block may still lose, and offers blk to it.
func (bp *BlockProcessor) processFork(blk *blocks.Block) {
	ledgerBlock := bp.forkedBlock(blk)
	if ledgerBlock != nil {
		ledgerHash := ledgerBlock.Hash()
		if !bp.ledger.BlockConfirmed(ledgerHash) && !bp.cementer.IsProcessingBlock(ledgerHash) &&
			(bp.ledger.DependentsConfirmed(ledgerBlock) || bp.accountIdle(ledgerBlock)) {
			result := bp.active.Insert(ledgerBlock, elections.InsertParams{})
			if result.Inserted {
				bp.log.Infof("resolving fork between our block %v and block %v both with root %v", ledgerHash.Hex(), blk.Hash().Hex(), blk.QualifiedRoot())
				result.Election.TransitionActive()
			}
		}
	}
	bp.active.Publish(blk)
}

func (bp *BlockProcessor) accountIdle(blk *blocks.Block) bool {
	info, err := bp.ledger.AccountInfo(blk.Account)
	if err != nil {
		return false
	}
	return info.Modified < bp.clock.Now().Add(-forkAccountAge).Unix()
}

// forkedBlock returns the ledger's block occupying the qualified root of blk.
func (bp *BlockProcessor) forkedBlock(blk *blocks.Block) *blocks.Block {
	var hash crypto.Digest
	if blk.IsOpen() {
		info, err := bp.ledger.AccountInfo(blk.Account)
		if err != nil {
			return nil
		}
		hash = info.OpenBlock
	} else {
		hash = bp.ledger.Successor(blk.Previous)
	}
	if hash.IsZero() {
		return nil
	}
	out, err := bp.ledger.Block(hash)
	if err != nil {
		return nil
	}
	return out
}

func (bp *BlockProcessor) holdUnchecked(dependency crypto.Digest, qb queuedBlock) {
	waiting, _ := bp.unchecked.Get(dependency)
	hash := qb.blk.Hash()
	for _, w := range waiting {
		if w.blk.Hash() == hash {
			return
		}
	}
	bp.unchecked.Add(dependency, append(waiting, qb))
}

// releaseUnchecked requeues the blocks that were waiting for hash.
func (bp *BlockProcessor) releaseUnchecked(hash crypto.Digest) {
	waiting, ok := bp.unchecked.Peek(hash)
	if !ok {
		return
	}
	bp.unchecked.Remove(hash)
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.blocks = append(bp.blocks, waiting...)
	bp.updateGauge()
}
