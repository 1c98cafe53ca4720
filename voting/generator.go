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

package voting

import (
	"sync"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/util/condvar"
	"github.com/algorand/go-blocklattice/util/metrics"
	"github.com/algorand/go-blocklattice/util/timers"
)

var votesGenerated = metrics.MakeCounter(metrics.VotesGeneratedTotal)

// Ledger is what the generator reads before voting for a block.
type Ledger interface {
	Block(h crypto.Digest) (*blocks.Block, error)
	DependentsConfirmed(blk *blocks.Block) bool
}

// Representatives lists the keys of the local representatives allowed to vote.
type Representatives interface {
	VotingSecrets() []*crypto.SignatureSecrets
}

// Flooder spreads generated votes to the network.
type Flooder interface {
	// FloodVotePR sends v to the principal representatives.
	FloodVotePR(v *Vote)
	// FloodVote sends v to a scale-sized fraction of the peers.
	FloodVote(v *Vote, scale float64)
}

// Sink receives every vote the generator produces or replays, so that the
// node's own elections see them. It must not block.
type Sink func(v *Vote)

type candidate struct {
	root crypto.Digest
	hash crypto.Digest
}

// Generator batches (root, hash) pairs and signs them into votes for every
// local voting representative. Votes are remembered in a History so that a
// root is never voted for twice with different hashes by this node.
type Generator struct {
	log       logging.Logger
	ledger    Ledger
	reps      Representatives
	net       Flooder
	sink      Sink
	history   *History
	clock     timers.Clock
	delay     time.Duration
	threshold int

	mu         deadlock.Mutex
	cond       *sync.Cond
	candidates []candidate
	running    bool
	closed     chan struct{}

	seqMu     deadlock.Mutex
	sequences map[basics.Address]uint64
}

// GeneratorParams configures a Generator.
type GeneratorParams struct {
	Log       logging.Logger
	Ledger    Ledger
	Reps      Representatives
	Net       Flooder
	Sink      Sink
	History   *History
	Clock     timers.Clock
	Delay     time.Duration
	Threshold int
}

// MakeGenerator creates a stopped generator.
func MakeGenerator(p GeneratorParams) *Generator {
	if p.Clock == nil {
		p.Clock = timers.MakeMonotonicClock()
	}
	if p.Threshold <= 0 || p.Threshold > MaxHashes {
		p.Threshold = MaxHashes
	}
	g := &Generator{
		log:       p.Log,
		ledger:    p.Ledger,
		reps:      p.Reps,
		net:       p.Net,
		sink:      p.Sink,
		history:   p.History,
		clock:     p.Clock,
		delay:     p.Delay,
		threshold: p.Threshold,
		sequences: make(map[basics.Address]uint64),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Start launches the batching goroutine
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	g.closed = make(chan struct{})
	go g.run()
}

// Stop stops the batching goroutine. Queued candidates are dropped.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.cond.Broadcast()
	closed := g.closed
	g.mu.Unlock()
	<-closed
}

// Add queues a vote for hash under root. It never blocks on the ledger or
// the network; the checks happen on the generator's goroutine.
func (g *Generator) Add(root, hash crypto.Digest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candidates = append(g.candidates, candidate{root: root, hash: hash})
	if len(g.candidates) >= MaxHashes {
		g.cond.Broadcast()
	}
}

// Candidates is the number of queued (root, hash) pairs
func (g *Generator) Candidates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.candidates)
}

// History returns the generator's vote history.
func (g *Generator) History() *History {
	return g.history
}

func (g *Generator) run() {
	g.mu.Lock()
	defer func() {
		close(g.closed)
		g.mu.Unlock()
	}()
	for g.running {
		if len(g.candidates) >= MaxHashes {
			g.broadcast()
			continue
		}
		condvar.TimedWait(g.cond, g.delay)
		if !g.running {
			return
		}
		if n := len(g.candidates); n >= g.threshold && n < MaxHashes {
			condvar.TimedWait(g.cond, g.delay)
			if !g.running {
				return
			}
		}
		if len(g.candidates) > 0 {
			g.broadcast()
		}
	}
}

// broadcast takes up to MaxHashes candidates and votes for them. g.mu is held
// on entry and exit and released while voting.
func (g *Generator) broadcast() {
	n := len(g.candidates)
	if n > MaxHashes {
		n = MaxHashes
	}
	batch := make([]candidate, n)
	copy(batch, g.candidates)
	g.candidates = append(g.candidates[:0], g.candidates[n:]...)
	g.mu.Unlock()
	defer g.mu.Lock()

	replayed := make(map[crypto.Digest]struct{})
	var hashes, roots []crypto.Digest
	for _, c := range batch {
		cached := g.history.VotesFor(c.root, c.hash)
		if len(cached) > 0 {
			for _, v := range cached {
				h := v.Hash()
				if _, ok := replayed[h]; ok {
					continue
				}
				replayed[h] = struct{}{}
				g.broadcastAction(v)
			}
			continue
		}
		blk, err := g.ledger.Block(c.hash)
		if err != nil || !g.ledger.DependentsConfirmed(blk) {
			g.log.Debugf("not voting for %v: block missing or dependents unconfirmed", c.hash.ShortString())
			continue
		}
		hashes = append(hashes, c.hash)
		roots = append(roots, c.root)
	}
	if len(hashes) > 0 {
		g.vote(hashes, roots)
	}
}

func (g *Generator) vote(hashes, roots []crypto.Digest) {
	for _, secrets := range g.reps.VotingSecrets() {
		v := MakeVote(secrets, g.nextSequence(basics.Address(secrets.PublicKey)), hashes)
		for i := range hashes {
			g.history.Add(roots[i], hashes[i], v)
		}
		votesGenerated.Inc()
		g.broadcastAction(v)
	}
}

func (g *Generator) broadcastAction(v *Vote) {
	if g.net != nil {
		g.net.FloodVotePR(v)
		g.net.FloodVote(v, 2.0)
	}
	if g.sink != nil {
		g.sink(v)
	}
}

// nextSequence returns a sequence number greater than every earlier one for
// account, tracking the clock so that a restarted node keeps increasing.
func (g *Generator) nextSequence(account basics.Address) uint64 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	seq := g.sequences[account] + 1
	if now := uint64(g.clock.Now().UnixMilli()); now > seq {
		seq = now
	}
	g.sequences[account] = seq
	return seq
}

// Session collects the votes to generate during one pass of the request loop
// and hands them to the generator at once.
type Session struct {
	g     *Generator
	items []candidate
}

// NewSession starts an empty session
func (g *Generator) NewSession() *Session {
	return &Session{g: g}
}

// Add queues a vote for hash under root in the session.
func (s *Session) Add(root, hash crypto.Digest) {
	s.items = append(s.items, candidate{root: root, hash: hash})
}

// Flush passes the session's candidates to the generator.
func (s *Session) Flush() {
	for _, c := range s.items {
		s.g.Add(c.root, c.hash)
	}
	s.items = nil
}
