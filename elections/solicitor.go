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
	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/data/blocks"
)

// maxElectionRequests caps how many representatives one election asks for
// votes in one pass. Representatives that voted for a different block do not
// count against it.
const maxElectionRequests = 50

type directedBlock struct {
	channel string
	blk     *blocks.Block
}

// solicitor collects the confirmation requests and winner rebroadcasts of one
// request loop pass, and sends them once the manager lock is released.
type solicitor struct {
	net                   Network
	maxConfirmReqBatches  int
	maxBlockBroadcasts    int
	maxElectionBroadcasts int
	hashesPerRequest      int

	prepared      bool
	rebroadcasted int
	requestReps   []Representative
	broadcastReps []Representative
	requests      map[string][]HashRoot
	channels      []string
	directed      []directedBlock
	floods        []*blocks.Block
}

func makeSolicitor(net Network, params config.NetworkParams) *solicitor {
	broadcasts := params.Fanout / 2
	if broadcasts < 1 {
		broadcasts = 1
	}
	return &solicitor{
		net:                   net,
		maxConfirmReqBatches:  params.MaxConfirmReqBatches,
		maxBlockBroadcasts:    params.MaxBlockBroadcasts,
		maxElectionBroadcasts: broadcasts,
		hashesPerRequest:      params.ConfirmReqHashesMax,
	}
}

// prepare starts a pass with the given principal representatives.
func (s *solicitor) prepare(reps []Representative) {
	s.prepared = true
	s.rebroadcasted = 0
	s.requestReps = append([]Representative(nil), reps...)
	s.broadcastReps = append([]Representative(nil), reps...)
	s.requests = make(map[string][]HashRoot)
	s.channels = nil
	s.directed = nil
	s.floods = nil
}

// broadcast queues the election's winner for the representatives that have
// not voted for it, plus a partial flood. It fails once the pass used up its
// rebroadcasts.
func (s *solicitor) broadcast(e *Election) bool {
	if !s.prepared || s.rebroadcasted >= s.maxBlockBroadcasts {
		return false
	}
	s.rebroadcasted++
	winner := e.status.Winner
	hash := winner.Hash()
	count := 0
	for _, rep := range s.broadcastReps {
		if count >= s.maxElectionBroadcasts {
			break
		}
		if v, ok := e.lastVotes[rep.Account]; !ok || v.hash != hash {
			s.directed = append(s.directed, directedBlock{channel: rep.Channel, blk: winner})
			count++
		}
	}
	s.floods = append(s.floods, winner)
	return true
}

// add queues a confirmation request for the election's winner to every
// representative that has not voted for it yet. A representative whose queue
// is full is skipped for the rest of the pass. It reports whether any request
// was queued.
func (s *solicitor) add(e *Election) bool {
	if !s.prepared {
		return false
	}
	hash := e.winnerHash()
	maxChannelRequests := s.maxConfirmReqBatches * s.hashesPerRequest
	ok := false
	count := 0
	for i := 0; i < len(s.requestReps) && count < maxElectionRequests; {
		rep := s.requestReps[i]
		v, voted := e.lastVotes[rep.Account]
		different := voted && v.hash != hash
		if voted && !different {
			i++
			continue
		}
		queue, seen := s.requests[rep.Channel]
		if len(queue) >= maxChannelRequests {
			s.requestReps = append(s.requestReps[:i], s.requestReps[i+1:]...)
			continue
		}
		if !seen {
			s.channels = append(s.channels, rep.Channel)
		}
		s.requests[rep.Channel] = append(queue, HashRoot{Hash: hash, Root: e.root.Root})
		if !different {
			count++
		}
		ok = true
		i++
	}
	return ok
}

// flush sends everything queued during the pass.
func (s *solicitor) flush() {
	if !s.prepared {
		return
	}
	s.prepared = false
	for _, ch := range s.channels {
		queue := s.requests[ch]
		for len(queue) > 0 {
			n := s.hashesPerRequest
			if n > len(queue) {
				n = len(queue)
			}
			s.net.SendConfirmReq(ch, queue[:n])
			stat(statConfirmReqsSent)
			queue = queue[n:]
		}
	}
	for _, d := range s.directed {
		s.net.SendBlock(d.channel, d.blk)
	}
	for _, blk := range s.floods {
		s.net.FloodBlock(blk, 0.5)
		stat(statBlocksRebroadcast)
	}
}
