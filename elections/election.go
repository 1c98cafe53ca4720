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
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/voting"
)

const (
	// electionExpiry is the age at which a normal election gives up.
	electionExpiry = 5 * time.Minute
	// forkFloodCandidates is the number of candidates beyond which only
	// heavily voted forks are accepted.
	forkFloodCandidates = 10
	// lateBlockDelay is the age of cached votes that marks their block late.
	lateBlockDelay = 5 * time.Second
)

// VoterInfo is the last vote an election recorded for a representative.
type VoterInfo struct {
	Time     time.Time
	Sequence uint64
	Hash     crypto.Digest
}

// Election decides which of the competing blocks for one root is confirmed.
//
// Unless noted otherwise, the unexported methods must be called with the
// manager lock held. The exported accessors take it themselves.
type Election struct {
	m                  *Manager
	root               blocks.QualifiedRoot
	height             uint64
	behavior           Behavior
	confirmationAction func(*blocks.Block)

	state       atomic.Int32
	prioritized atomic.Bool

	// tpMu guards the timestamps the state machine is driven by
	tpMu          deadlock.Mutex
	stateStart    time.Time
	electionStart time.Time
	lastBlock     time.Time
	lastReq       time.Time

	status     Status
	lastVotes  map[basics.Address]voteInfo
	lastBlocks map[crypto.Digest]*blocks.Block
	lastTally  map[crypto.Digest]basics.Amount
}

func newElection(m *Manager, blk *blocks.Block, behavior Behavior, action func(*blocks.Block)) *Election {
	now := m.clock.Now()
	e := &Election{
		m:                  m,
		root:               blk.QualifiedRoot(),
		behavior:           behavior,
		confirmationAction: action,
		stateStart:         now,
		electionStart:      now,
		lastBlock:          now,
		status: Status{
			Winner:     blk,
			Start:      now,
			BlockCount: 1,
			Type:       StatusOngoing,
		},
		lastVotes:  make(map[basics.Address]voteInfo),
		lastBlocks: map[crypto.Digest]*blocks.Block{blk.Hash(): blk},
		lastTally:  make(map[crypto.Digest]basics.Amount),
	}
	if blk.HasSideband() {
		e.height = blk.Sideband.Height
	}
	e.state.Store(int32(StatePassive))
	return e
}

func (e *Election) currentState() State {
	return State(e.state.Load())
}

// stateChange moves the election from expected to desired. It fails if the
// election is not in expected; asking for a transition the state machine does
// not allow is a programming error.
func (e *Election) stateChange(expected, desired State) bool {
	if !validChange(expected, desired) {
		e.m.assertf("invalid election state change from %v to %v for %v", expected, desired, e.root)
		return false
	}
	if !e.state.CompareAndSwap(int32(expected), int32(desired)) {
		return false
	}
	e.stateStart = e.m.clock.Now()
	return true
}

func (e *Election) transitionActive() {
	e.tpMu.Lock()
	defer e.tpMu.Unlock()
	e.stateChange(StatePassive, StateActive)
}

func (e *Election) confirmed() bool {
	s := e.currentState()
	return s == StateConfirmed || s == StateExpiredConfirmed
}

func (e *Election) failed() bool {
	return e.currentState() == StateExpiredUnconfirmed
}

func (e *Election) optimistic() bool {
	return e.behavior == BehaviorOptimistic
}

func (e *Election) winnerHash() crypto.Digest {
	return e.status.Winner.Hash()
}

// sendConfirmReq asks representatives for votes, at most once every few base
// latencies. tpMu must be held.
func (e *Election) sendConfirmReq(s *solicitor) {
	factor := time.Duration(5)
	if e.optimistic() {
		factor = 10
	}
	now := e.m.clock.Now()
	if e.m.params.BaseLatency*factor < now.Sub(e.lastReq) {
		if s.add(e) {
			e.lastReq = now
			e.status.RequestCount++
		}
	}
}

// broadcastBlock rebroadcasts the winner, at most once every 15 base
// latencies. tpMu must be held.
func (e *Election) broadcastBlock(s *solicitor) {
	now := e.m.clock.Now()
	if e.m.params.BaseLatency*15 < now.Sub(e.lastBlock) {
		if s.broadcast(e) {
			e.lastBlock = now
		}
	}
}

// transitionTime advances the state machine by the time that passed. It
// returns true once the election is finished and should be erased.
func (e *Election) transitionTime(s *solicitor) bool {
	e.tpMu.Lock()
	defer e.tpMu.Unlock()

	base := e.m.params.BaseLatency
	now := e.m.clock.Now()
	result := false
	switch state := e.currentState(); state {
	case StatePassive:
		if base*5 < now.Sub(e.stateStart) {
			e.stateChange(StatePassive, StateActive)
		}
	case StateActive:
		e.sendConfirmReq(s)
		if e.status.RequestCount > 2 {
			e.stateChange(StateActive, StateBroadcasting)
		}
	case StateBroadcasting:
		e.broadcastBlock(s)
		e.sendConfirmReq(s)
	case StateConfirmed:
		if base*5 < now.Sub(e.stateStart) {
			result = true
			e.stateChange(StateConfirmed, StateExpiredConfirmed)
		}
	case StateExpiredConfirmed, StateExpiredUnconfirmed:
		e.m.assertf("election %v visited in state %v", e.root, state)
	}

	expiry := electionExpiry
	if e.optimistic() {
		expiry = e.m.params.OptimisticExpiration
	}
	if !e.confirmed() && expiry < now.Sub(e.electionStart) {
		result = true
		if state := e.currentState(); state != StateExpiredUnconfirmed {
			e.stateChange(state, StateExpiredUnconfirmed)
		}
		e.status.Type = StatusStopped
		if e.m.cfg.LogElectionExpirationTally {
			e.logVotes(e.tally(), "Election expired: ")
		}
	}
	return result
}

// tally recomputes the weight behind every candidate, heaviest first.
func (e *Election) tally() []TallyEntry {
	ordered, weights := tally(e.lastVotes, e.m.ledger.Weight, e.lastBlocks)
	e.lastTally = weights
	return ordered
}

// confirmIfQuorum switches the winner to the heaviest candidate once enough
// weight voted, and confirms it when it leads by the quorum margin.
func (e *Election) confirmIfQuorum() {
	ordered := e.tally()
	if len(ordered) == 0 {
		return
	}
	top := ordered[0]
	sum := tallySum(ordered)
	e.status.Tally = top.Weight

	minimum := e.m.cfg.OnlineWeightMinimum
	if !sum.LessThan(minimum) && top.Hash != e.winnerHash() {
		old := e.winnerHash()
		e.status.Winner = top.Block
		e.removeVotes(old)
		if e.m.blockProcessor != nil {
			e.m.blockProcessor.Force(top.Block)
		}
	}

	delta := quorumDelta(e.m.onlineReps.OnlineStake(), e.m.cfg.OnlineWeightQuorum)
	if haveQuorum(ordered, sum, minimum, delta) {
		if e.m.cfg.LogVotes || (e.m.cfg.LogElectionTally && len(e.lastBlocks) > 1) {
			e.logVotes(ordered, "")
		}
		e.confirmOnce(StatusActiveConfirmedQuorum)
	}
}

// confirmOnce confirms the current winner. Only the first call for an
// election has any effect.
func (e *Election) confirmOnce(t StatusType) {
	m := e.m
	m.winnersMu.Lock()
	prev := e.swapConfirmed()
	hash := e.winnerHash()
	_, known := m.winners[hash]
	if prev == StateConfirmed || prev == StateExpiredConfirmed || known {
		m.winnersMu.Unlock()
		return
	}
	now := m.clock.Now()
	e.stateStart = now
	e.status.Duration = now.Sub(e.electionStart)
	e.status.BlockCount = uint32(len(e.lastBlocks))
	e.status.VoterCount = uint32(len(e.lastVotes))
	e.status.Type = t
	status := e.status
	m.winners[hash] = e
	m.winnersMu.Unlock()

	electionsConfirmedTotal.Inc()
	m.recentlyConfirmed.add(e.root, hash)
	if m.cfg.LogElectionResult {
		m.log.Infof("Election confirmed: root %v winner %v tally %v requests %d after %v",
			e.root, hash.Hex(), status.Tally, status.RequestCount, status.Duration)
	}
	m.processConfirmed(status, 0)
	if action := e.confirmationAction; action != nil {
		m.dispatch(func() { action(status.Winner) })
	}
}

// swapConfirmed moves the election into StateConfirmed from whatever state it
// is in and returns the previous state.
func (e *Election) swapConfirmed() State {
	for {
		cur := e.currentState()
		if cur == StateConfirmed || cur == StateExpiredConfirmed {
			return cur
		}
		if e.state.CompareAndSwap(int32(cur), int32(StateConfirmed)) {
			return cur
		}
	}
}

// cooldown is how long a representative must wait before a new vote of
// theirs moves the tally again; lighter representatives wait longer.
func cooldown(weight, onlineStake basics.Amount) time.Duration {
	switch {
	case weight.LessThan(onlineStake.Div64(100)):
		return 15 * time.Second
	case weight.LessThan(onlineStake.Div64(20)):
		return 5 * time.Second
	}
	return time.Second
}

// vote applies rep's vote for hash.
func (e *Election) vote(rep basics.Address, sequence uint64, hash crypto.Digest) VoteResult {
	online := e.m.onlineReps.OnlineStake()
	weight := e.m.ledger.Weight(rep)
	if !e.m.params.IsDevNetwork() && !weight.GreaterThan(online.Div64(e.m.params.PrincipalWeightFactor)) {
		return VoteResult{}
	}

	now := e.m.clock.Now()
	var result VoteResult
	process := false
	last, ok := e.lastVotes[rep]
	switch {
	case !ok:
		process = true
	case sequence > last.sequence || (sequence == last.sequence && last.hash.Less(hash)):
		process = !last.time.After(now.Add(-cooldown(weight, online)))
	default:
		result.Replay = true
	}
	if process {
		stat(statVoteNew)
		e.lastVotes[rep] = voteInfo{time: now, sequence: sequence, hash: hash}
		if !e.confirmed() {
			e.confirmIfQuorum()
		}
	}
	result.Processed = process
	return result
}

// publish offers another candidate. It returns true if blk was not added as
// a new candidate.
func (e *Election) publish(blk *blocks.Block) bool {
	hash := blk.Hash()
	result := e.confirmed()
	if !result && len(e.lastBlocks) >= forkFloodCandidates {
		if e.lastTally[hash].LessThan(e.m.onlineReps.OnlineStake().Div64(10)) {
			result = true
		}
	}
	if result {
		return true
	}
	if _, ok := e.lastBlocks[hash]; ok {
		// same block, possibly with more work or a sideband
		e.lastBlocks[hash] = blk
		if e.winnerHash() == hash {
			e.status.Winner = blk
		}
		return true
	}
	e.lastBlocks[hash] = blk
	if e.insertInactiveVotesCache(hash) == 0 {
		e.confirmIfQuorum()
	}
	if e.m.net != nil {
		e.m.net.FloodBlock(blk, 1.0)
	}
	return false
}

// insertInactiveVotesCache folds the votes cached for hash before the
// election existed into the election, and returns how many there were.
func (e *Election) insertInactiveVotesCache(hash crypto.Digest) int {
	entry, ok := e.m.inactive.find(hash)
	if !ok {
		return 0
	}
	for _, rep := range entry.Voters {
		if _, ok := e.lastVotes[rep]; !ok {
			e.lastVotes[rep] = voteInfo{sequence: 0, hash: hash}
			stat(statVoteCached)
		}
	}
	if !e.confirmed() && len(entry.Voters) > 0 {
		if delay := e.m.clock.Since(entry.Arrival); delay > lateBlockDelay {
			stat(statLateBlock)
			electionEvents.Add(statLateBlockSeconds, uint64(delay.Seconds()))
		}
		e.confirmIfQuorum()
	}
	return len(entry.Voters)
}

// prioritize starts vote generation for the winner in session.
func (e *Election) prioritize(session *voting.Session) {
	if e.prioritized.Load() {
		e.m.assertf("election %v prioritized twice", e.root)
	}
	e.prioritized.Store(true)
	if session != nil {
		session.Add(e.root.Root, e.winnerHash())
	}
}

// generateVotes asks the local representatives to vote for the winner.
func (e *Election) generateVotes() {
	if e.m.votingEnabled() {
		e.m.generator.Add(e.root.Root, e.winnerHash())
	}
}

// removeVotes forgets the local representatives' votes for hash, which lost.
func (e *Election) removeVotes(hash crypto.Digest) {
	if !e.m.votingEnabled() {
		return
	}
	history := e.m.generator.History()
	for _, v := range history.VotesFor(e.root.Root, hash) {
		delete(e.lastVotes, v.Account)
	}
	history.Erase(e.root.Root)
}

func (e *Election) cleanupInfo() CleanupInfo {
	blks := make(map[crypto.Digest]*blocks.Block, len(e.lastBlocks))
	for h, b := range e.lastBlocks {
		blks[h] = b
	}
	return CleanupInfo{
		Confirmed: e.confirmed(),
		Root:      e.root,
		Winner:    e.winnerHash(),
		Blocks:    blks,
	}
}

// logVotes writes the tally and every representative's last vote.
func (e *Election) logVotes(ordered []TallyEntry, prefix string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%sVote tally for root %v", prefix, e.root)
	for _, t := range ordered {
		fmt.Fprintf(&b, "\nBlock %v weight %v", t.Hash.Hex(), t.Weight)
	}
	reps := make([]basics.Address, 0, len(e.lastVotes))
	for rep := range e.lastVotes {
		reps = append(reps, rep)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].Less(reps[j]) })
	for _, rep := range reps {
		v := e.lastVotes[rep]
		fmt.Fprintf(&b, "\n%v %d %v", rep, v.sequence, v.hash.Hex())
	}
	e.m.log.Info(b.String())
}

// Root is the slot the election decides.
func (e *Election) Root() blocks.QualifiedRoot {
	return e.root
}

// Behavior reports whether the election is optimistic.
func (e *Election) Behavior() Behavior {
	return e.behavior
}

// State returns the current state.
func (e *Election) State() State {
	return e.currentState()
}

// Confirmed reports whether a winner was confirmed.
func (e *Election) Confirmed() bool {
	return e.confirmed()
}

// Prioritized reports whether the local representatives vote in the election.
func (e *Election) Prioritized() bool {
	return e.prioritized.Load()
}

// Status returns a copy of the election's status.
func (e *Election) Status() Status {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.status
}

// Winner returns the currently leading block.
func (e *Election) Winner() *blocks.Block {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.status.Winner
}

// Blocks returns the candidates by hash.
func (e *Election) Blocks() map[crypto.Digest]*blocks.Block {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.cleanupInfo().Blocks
}

// Votes returns every representative's last recorded vote.
func (e *Election) Votes() map[basics.Address]VoterInfo {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	out := make(map[basics.Address]VoterInfo, len(e.lastVotes))
	for rep, v := range e.lastVotes {
		out[rep] = VoterInfo{Time: v.time, Sequence: v.sequence, Hash: v.hash}
	}
	return out
}

// Tally recomputes the weight behind each candidate, heaviest first.
func (e *Election) Tally() []TallyEntry {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.tally()
}

// TransitionActive starts soliciting votes for a passive election.
func (e *Election) TransitionActive() {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	e.transitionActive()
}
