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

package ledger

import (
	"sync"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/logging"
)

// cement raises confirmation heights so that h and everything it depends on
// is cemented. It returns the newly cemented blocks in dependency order, and
// already=true if h was cemented before the call.
func (l *Ledger) cement(h crypto.Digest) (list []*blocks.Block, already bool, err error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx := l.newWriteTxn()
	if !tx.blockExists(h) {
		return nil, false, ErrBlockNotFound{Hash: h}
	}
	if tx.blockConfirmed(h) {
		return nil, true, nil
	}
	err = cementVisit(tx, h, &list)
	if err != nil {
		return nil, false, err
	}
	tx.cementedDelta = int64(len(list))
	err = l.commit(tx)
	if err != nil {
		return nil, false, err
	}
	return list, false, nil
}

// cementVisit cements the uncemented part of the chain ending at h, visiting
// the source of every receive before the receive itself.
func cementVisit(tx *txn, h crypto.Digest, list *[]*blocks.Block) error {
	top, err := tx.block(h)
	if err != nil {
		return err
	}
	account := top.Block.Account
	conf, err := tx.confirmationHeight(account)
	if err != nil {
		return err
	}
	if top.Sideband.Height <= conf.Height {
		return nil
	}

	chain := []*storedBlock{top}
	hashes := []crypto.Digest{h}
	for cur := top; cur.Sideband.Height > conf.Height+1; {
		prevHash := cur.Block.Previous
		cur, err = tx.block(prevHash)
		if err != nil {
			return err
		}
		chain = append(chain, cur)
		hashes = append(hashes, prevHash)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		sb := chain[i]
		if sb.Sideband.Details.IsReceive && !sb.Block.Link.IsZero() {
			err = cementVisit(tx, sb.Block.Link, list)
			if err != nil {
				return err
			}
		}
		tx.putConfirmationHeight(account, ConfirmationHeightInfo{Height: sb.Sideband.Height, Frontier: hashes[i]})
		*list = append(*list, sb.withSideband())
	}
	return nil
}

// Cementer raises confirmation heights in the background for blocks whose
// elections were confirmed, and reports every block it cements.
type Cementer struct {
	l   *Ledger
	log logging.Logger

	mu       deadlock.Mutex
	cond     *sync.Cond
	queue    []crypto.Digest
	queued   map[crypto.Digest]struct{}
	current  crypto.Digest
	busy     bool
	inflight map[crypto.Digest]struct{}
	running  bool
	closed   chan struct{}

	cementedObservers        []func(*blocks.Block)
	alreadyCementedObservers []func(crypto.Digest)
}

// MakeCementer creates a cementer for l. Observers must be added before Start.
func MakeCementer(l *Ledger, log logging.Logger) *Cementer {
	c := &Cementer{
		l:        l,
		log:      log,
		queued:   make(map[crypto.Digest]struct{}),
		inflight: make(map[crypto.Digest]struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// AddCementedObserver registers fn to be called for every newly cemented block.
func (c *Cementer) AddCementedObserver(fn func(*blocks.Block)) {
	c.cementedObservers = append(c.cementedObservers, fn)
}

// AddBlockAlreadyCementedObserver registers fn to be called when a block
// passed to Add turns out to be cemented already.
func (c *Cementer) AddBlockAlreadyCementedObserver(fn func(crypto.Digest)) {
	c.alreadyCementedObservers = append(c.alreadyCementedObservers, fn)
}

// Start launches the cementing goroutine
func (c *Cementer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.closed = make(chan struct{})
	go c.syncer()
}

// Stop waits for the block being cemented, if any, and stops the goroutine.
// Queued blocks are dropped.
func (c *Cementer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cond.Broadcast()
	closed := c.closed
	c.mu.Unlock()
	<-closed
}

// Add queues h for cementing
func (c *Cementer) Add(h crypto.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[h]; ok {
		return
	}
	c.queued[h] = struct{}{}
	c.queue = append(c.queue, h)
	c.cond.Broadcast()
}

// IsProcessingBlock reports whether h is queued or being cemented
func (c *Cementer) IsProcessingBlock(h crypto.Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[h]; ok {
		return true
	}
	if _, ok := c.inflight[h]; ok {
		return true
	}
	return c.busy && c.current == h
}

// IsProcessingAddedBlock reports whether h is the block passed to Add that is
// being cemented right now, as opposed to one of its dependencies.
func (c *Cementer) IsProcessingAddedBlock(h crypto.Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy && c.current == h
}

// AwaitingProcessingSize is the number of queued blocks
func (c *Cementer) AwaitingProcessingSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// WaitIdle blocks until the queue is empty and nothing is being cemented.
func (c *Cementer) WaitIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.running && (len(c.queue) > 0 || c.busy) {
		c.cond.Wait()
	}
}

func (c *Cementer) syncer() {
	defer close(c.closed)
	c.mu.Lock()
	for {
		for c.running && len(c.queue) == 0 {
			c.cond.Wait()
		}
		if !c.running {
			c.mu.Unlock()
			return
		}

		h := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.queued, h)
		c.current = h
		c.busy = true
		c.mu.Unlock()

		list, already, err := c.l.cement(h)

		c.mu.Lock()
		for _, blk := range list {
			c.inflight[blk.Hash()] = struct{}{}
		}
		c.mu.Unlock()

		switch {
		case err != nil:
			c.log.Warnf("Cementer.syncer: could not cement %v: %v", h, err)
		case already:
			for _, fn := range c.alreadyCementedObservers {
				fn(h)
			}
		default:
			for _, blk := range list {
				for _, fn := range c.cementedObservers {
					fn(blk)
				}
			}
		}

		c.mu.Lock()
		for _, blk := range list {
			delete(c.inflight, blk.Hash())
		}
		c.busy = false
		c.current = crypto.Digest{}
		c.cond.Broadcast()
	}
}
