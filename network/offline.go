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
	"sync"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/protocol"
	"github.com/algorand/go-blocklattice/util/metrics"
	"github.com/algorand/go-blocklattice/voting"
)

// loopbackQueueSize bounds the votes waiting to be looped back. Votes beyond
// it are dropped, like a saturated peer connection would.
const loopbackQueueSize = 1024

var networkMessageSentByTag = metrics.NewTagCounter("lattice_network_message_sent_{TAG}_total", "Number of messages sent for {TAG}")
var duplicateNetworkFilterReceivedTotal = metrics.MakeCounter(metrics.DuplicateNetworkFilterReceivedTotal)
var outgoingNetworkMessageDroppedTotal = metrics.MakeCounter(metrics.OutgoingNetworkMessageDroppedTotal)

// VoteSink receives looped back votes.
type VoteSink func(v *voting.Vote)

// Offline is the network of a node without peers. Messages are counted and
// dropped, the publish filter is kept as a connected node would keep it, and
// flooded votes may be looped back into a sink as if a peer had relayed them.
type Offline struct {
	log    logging.Logger
	filter *PublishFilter

	mu   deadlock.Mutex
	reps []elections.Representative
	sent map[protocol.Tag]uint64

	sink     VoteSink
	loopback chan *voting.Vote
	quit     chan struct{}
	wg       sync.WaitGroup
}

// MakeOffline creates an offline network. A nil sink disables loopback.
func MakeOffline(log logging.Logger, filter *PublishFilter, sink VoteSink) *Offline {
	if filter == nil {
		filter = MakePublishFilter(DefaultPublishFilterSize)
	}
	n := &Offline{
		log:    log,
		filter: filter,
		sent:   make(map[protocol.Tag]uint64),
		sink:   sink,
	}
	if sink != nil {
		n.loopback = make(chan *voting.Vote, loopbackQueueSize)
	}
	return n
}

// Start launches the loopback goroutine, if any.
func (n *Offline) Start() {
	if n.sink == nil {
		return
	}
	n.quit = make(chan struct{})
	n.wg.Add(1)
	go n.deliver()
}

// Stop waits for the loopback goroutine. Queued votes are dropped.
func (n *Offline) Stop() {
	if n.quit == nil {
		return
	}
	close(n.quit)
	n.wg.Wait()
	n.quit = nil
}

func (n *Offline) deliver() {
	defer n.wg.Done()
	for {
		select {
		case v := <-n.loopback:
			n.sink(v)
		case <-n.quit:
			return
		}
	}
}

func (n *Offline) count(tag protocol.Tag) {
	n.mu.Lock()
	n.sent[tag]++
	n.mu.Unlock()
	networkMessageSentByTag.Add(string(tag), 1)
}

// Sent returns how many messages were sent with tag.
func (n *Offline) Sent(tag protocol.Tag) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[tag]
}

// SetRepresentatives replaces the principal representatives reported to the
// elections.
func (n *Offline) SetRepresentatives(reps []elections.Representative) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reps = append([]elections.Representative(nil), reps...)
}

// PrincipalRepresentatives implements elections.Network.
func (n *Offline) PrincipalRepresentatives() []elections.Representative {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]elections.Representative(nil), n.reps...)
}

// SendConfirmReq implements elections.Network.
func (n *Offline) SendConfirmReq(channel string, req []elections.HashRoot) {
	n.count(protocol.ConfirmReqTag)
	n.log.Debugf("confirm_req with %d hashes to %s", len(req), channel)
}

// SendBlock implements elections.Network.
func (n *Offline) SendBlock(channel string, blk *blocks.Block) {
	n.count(protocol.PublishTag)
}

// FloodBlock implements elections.Network.
func (n *Offline) FloodBlock(blk *blocks.Block, scale float64) {
	n.filter.ApplyBlock(blk)
	n.count(protocol.PublishTag)
}

// FloodVote implements elections.Network and voting.Flooder.
func (n *Offline) FloodVote(v *voting.Vote, scale float64) {
	n.count(protocol.VoteFloodTag)
	n.loop(v)
}

// FloodVotePR implements voting.Flooder.
func (n *Offline) FloodVotePR(v *voting.Vote) {
	n.count(protocol.VotePrincipalTag)
	n.loop(v)
}

func (n *Offline) loop(v *voting.Vote) {
	if n.loopback == nil {
		return
	}
	select {
	case n.loopback <- v:
	default:
		outgoingNetworkMessageDroppedTotal.Inc()
	}
}

// ClearPublishFilter implements elections.Network.
func (n *Offline) ClearPublishFilter(blk *blocks.Block) {
	n.filter.ClearBlock(blk)
}

// Publish records a block received from a peer. It reports true if the
// block was seen recently and should be dropped.
func (n *Offline) Publish(blk *blocks.Block) bool {
	_, seen := n.filter.ApplyBlock(blk)
	if seen {
		duplicateNetworkFilterReceivedTotal.Inc()
	}
	return seen
}
