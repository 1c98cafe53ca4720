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
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/data/work"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/util/execpool"
	"github.com/algorand/go-blocklattice/util/timers"
	"github.com/algorand/go-blocklattice/voting"
)

const (
	recentlyConfirmedSize = 65536
	recentlyDroppedSize   = 16384
	// restartWindow is how long after being dropped an election may be
	// restarted by a block carrying more work.
	restartWindow = 2 * time.Minute
	// maxActiveElectionsFrontierInsertion bounds the elections one frontier
	// confirmation pass starts. Next-block activation stops at half of it.
	maxActiveElectionsFrontierInsertion = 1000
	// electionStartVotersMin is the number of cached voters needed before the
	// inactive votes cache starts an election.
	electionStartVotersMin = 5
	// maxOptimisticAfterBootstrap caps live optimistic elections once the
	// ledger is past its bootstrap weight.
	maxOptimisticAfterBootstrap = 50
)

// InsertParams are the optional arguments of Insert.
type InsertParams struct {
	// PreviousBalance is the balance before the block. When nil it is read
	// from the ledger.
	PreviousBalance *basics.Amount
	Behavior        Behavior
	// ConfirmationAction runs on a worker once the election confirms.
	ConfirmationAction func(*blocks.Block)
}

// ManagerParams are the collaborators of a Manager. Generator, Backlog and
// RequestBootstrap are optional.
type ManagerParams struct {
	Log            logging.Logger
	Cfg            config.Local
	Params         config.NetworkParams
	Clock          timers.Clock
	Ledger         Ledger
	Cementer       Cementer
	BlockProcessor BlockProcessor
	Net            Network
	Wallets        Wallets
	OnlineReps     OnlineReps
	Generator      *voting.Generator
	// Backlog runs confirmation actions and observer notifications.
	Backlog execpool.BacklogPool
	// RequestBootstrap is called for blocks missing from the ledger that
	// enough cached votes point at. It runs under the manager lock and must
	// not call back into the manager.
	RequestBootstrap func(hash crypto.Digest)
}

// Manager holds the live elections. It inserts blocks into elections,
// routes votes to them, solicits votes for them from the principal
// representatives and removes them once they are cemented or expire.
type Manager struct {
	log              logging.Logger
	cfg              config.Local
	params           config.NetworkParams
	clock            timers.Clock
	ledger           Ledger
	cementer         Cementer
	blockProcessor   BlockProcessor
	net              Network
	wallets          Wallets
	onlineReps       OnlineReps
	generator        *voting.Generator
	backlog          execpool.BacklogPool
	requestBootstrap func(hash crypto.Digest)

	mu      deadlock.Mutex
	cond    *sync.Cond
	stopped atomic.Bool
	wg      sync.WaitGroup
	tasks   sync.WaitGroup

	elections         arena
	roots             rootIndex
	blocks            map[crypto.Digest]handle
	inactive          inactiveCache
	recentlyConfirmed *recentlyConfirmed
	recentlyCemented  *recentlyCemented
	recentlyDropped   *droppedElections

	prioritizedCutoff         int
	lastPrioritizedMultiplier float64
	lastCheckAllElections     time.Time
	trend                     difficultyTrend
	trendedMultiplier         atomic.Uint64

	frontierScheduler

	// winnersMu guards winners. It may be taken with mu held, never the
	// other way around.
	winnersMu deadlock.Mutex
	winners   map[crypto.Digest]*Election

	observers observers
}

// MakeManager creates a manager and registers it with the cementer. The
// request loop runs once Start is called.
func MakeManager(p ManagerParams) *Manager {
	cutoff := p.Cfg.ActiveElectionsSize / 10
	if cutoff < 1 {
		cutoff = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = timers.MakeMonotonicClock()
	}
	m := &Manager{
		log:               p.Log,
		cfg:               p.Cfg,
		params:            p.Params,
		clock:             clock,
		ledger:            p.Ledger,
		cementer:          p.Cementer,
		blockProcessor:    p.BlockProcessor,
		net:               p.Net,
		wallets:           p.Wallets,
		onlineReps:        p.OnlineReps,
		generator:         p.Generator,
		backlog:           p.Backlog,
		requestBootstrap:  p.RequestBootstrap,
		roots:             makeRootIndex(),
		blocks:            make(map[crypto.Digest]handle),
		inactive:          makeInactiveCache(p.Cfg.InactiveVotesCacheSize),
		recentlyConfirmed: makeRecentlyConfirmed(recentlyConfirmedSize),
		recentlyCemented:  makeRecentlyCemented(p.Cfg.ConfirmationHistorySize),
		recentlyDropped:   makeDroppedElections(recentlyDroppedSize),
		prioritizedCutoff: cutoff,
		trend:             makeDifficultyTrend(),
		frontierScheduler: makeFrontierScheduler(),
		winners:           make(map[crypto.Digest]*Election),
	}
	m.cond = sync.NewCond(&m.mu)
	m.trendedMultiplier.Store(math.Float64bits(1))
	m.lastCheckAllElections = clock.Now()

	m.cementer.AddCementedObserver(m.blockCemented)
	m.cementer.AddBlockAlreadyCementedObserver(m.blockAlreadyCemented)
	return m
}

// Start launches the request loop, unless it is disabled in the config.
func (m *Manager) Start() {
	if m.generator != nil {
		m.generator.Start()
	}
	if m.cfg.DisableRequestLoop {
		return
	}
	m.wg.Add(1)
	go m.requestLoop()
}

// Stop ends the request loop, waits for it and drops every election.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped.Store(true)
	m.cond.Broadcast()
	m.mu.Unlock()
	m.wg.Wait()
	if m.generator != nil {
		m.generator.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots.clear()
	m.elections.clear()
	m.blocks = make(map[crypto.Digest]handle)
	m.updateGauges()
}

// assertf reports a broken invariant. It panics when debug assertions are
// enabled.
func (m *Manager) assertf(format string, args ...interface{}) {
	if m.cfg.DebugAssertions {
		m.log.Panicf(format, args...)
	}
	m.log.Errorf(format, args...)
}

// dispatch runs fn on the backlog without waiting for it.
func (m *Manager) dispatch(fn func()) {
	if m.stopped.Load() {
		return
	}
	m.tasks.Add(1)
	run := func(interface{}) interface{} {
		defer m.tasks.Done()
		fn()
		return nil
	}
	if m.backlog == nil {
		go run(nil)
		return
	}
	go func() {
		if err := m.backlog.EnqueueBacklog(context.Background(), run, nil, nil); err != nil {
			m.tasks.Done()
		}
	}()
}

func (m *Manager) votingEnabled() bool {
	return m.generator != nil && m.cfg.EnableVoting
}

func (m *Manager) maxOptimistic() int {
	if m.ledger.CementedCount() < m.ledger.BootstrapWeightMaxBlocks() {
		return math.MaxInt
	}
	return maxOptimisticAfterBootstrap
}

// Insert starts an election for blk unless its root already has one or was
// confirmed recently. The block must carry its sideband.
func (m *Manager) Insert(blk *blocks.Block, p InsertParams) InsertResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertImpl(blk, p.PreviousBalance, p.Behavior, p.ConfirmationAction)
}

func (m *Manager) insertImpl(blk *blocks.Block, previousBalance *basics.Amount, behavior Behavior, action func(*blocks.Block)) InsertResult {
	var result InsertResult
	if m.stopped.Load() {
		return result
	}
	if !blk.HasSideband() {
		m.assertf("block %v inserted into elections without a sideband", blk.Hash().Hex())
	}
	root := blk.QualifiedRoot()
	if entry, ok := m.roots.find(root); ok {
		result.Election = m.elections.get(entry.election)
	} else if !m.recentlyConfirmed.existsRoot(root) {
		hash := blk.Hash()
		var prev basics.Amount
		if previousBalance != nil {
			prev = *previousBalance
		} else if !blk.Previous.IsZero() && m.ledger.BlockExists(blk.Previous) {
			prev = m.ledger.Balance(blk.Previous)
		}
		var epoch basics.Epoch
		if blk.HasSideband() {
			epoch = blk.Sideband.Details.Epoch
		}
		multiplier := m.normalizedMultiplier(blk, nil)
		prioritized := m.roots.size() < m.prioritizedCutoff || multiplier > m.lastPrioritizedMultiplier

		e := newElection(m, blk, behavior, action)
		e.prioritized.Store(prioritized)
		h := m.elections.alloc(e)
		m.roots.insert(&rootEntry{
			root:            root,
			multiplier:      multiplier,
			election:        h,
			epoch:           epoch,
			previousBalance: prev,
		})
		m.blocks[hash] = h
		result = InsertResult{Election: e, Inserted: true}

		e.insertInactiveVotesCache(hash)
		if prioritized {
			stat(statElectionPriority)
		} else {
			stat(statElectionNonPriority)
		}
		m.updateGauges()
	}

	// non-prioritized elections generate votes once the request loop
	// prioritizes them
	if result.Election != nil && result.Election.Prioritized() {
		result.Election.generateVotes()
	}
	return result
}

// Vote applies v to the elections of the blocks it names. Votes for blocks
// without an election are cached.
func (m *Manager) Vote(v *voting.Vote) VoteCode {
	atLeastOne := false
	recentlyConfirmed := 0
	replay := false
	processed := false

	m.mu.Lock()
	for _, hash := range v.Hashes {
		var result VoteResult
		if h, ok := m.blocks[hash]; ok {
			atLeastOne = true
			result = m.elections.get(h).vote(v.Account, v.Sequence, hash)
		} else if !m.recentlyConfirmed.existsHash(hash) {
			m.addInactiveVotesCache(hash, v.Account)
		} else {
			recentlyConfirmed++
		}
		processed = processed || result.Processed
		replay = replay || result.Replay
	}
	m.mu.Unlock()

	switch {
	case atLeastOne && processed:
		// nodes hosting a principal representative, or close to one, do
		// not relay votes
		if m.wallets.Reps().HalfPrincipal == 0 && !m.wallets.RepExists(v.Account) {
			m.net.FloodVote(v, 0.5)
			stat(statVoteFlooded)
		}
		return VoteProcessed
	case atLeastOne && replay:
		stat(statVoteReplay)
		return VoteReplay
	case atLeastOne:
		return VoteProcessed
	case recentlyConfirmed == len(v.Hashes):
		stat(statVoteReplay)
		return VoteReplay
	}
	stat(statVoteIndeterminate)
	return VoteIndeterminate
}

// Active reports whether root has a live election.
func (m *Manager) Active(root blocks.QualifiedRoot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roots.find(root)
	return ok
}

// ActiveBlock reports whether the root of blk has a live election.
func (m *Manager) ActiveBlock(blk *blocks.Block) bool {
	return m.Active(blk.QualifiedRoot())
}

// Election returns the live election for root, or nil.
func (m *Manager) Election(root blocks.QualifiedRoot) *Election {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.roots.find(root); ok {
		return m.elections.get(entry.election)
	}
	return nil
}

// Winner returns the current winner of the election hash is a candidate of,
// or nil.
func (m *Manager) Winner(hash crypto.Digest) *blocks.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.blocks[hash]; ok {
		return m.elections.get(h).status.Winner
	}
	return nil
}

// Activate starts an active election for the lowest uncemented block of
// account, provided the blocks it depends on are cemented.
func (m *Manager) Activate(account basics.Address) InsertResult {
	var result InsertResult
	info, err := m.ledger.AccountInfo(account)
	if err != nil {
		return result
	}
	conf, err := m.ledger.ConfirmationHeight(account)
	if err != nil || conf.Height >= info.BlockCount {
		return result
	}
	hash := info.OpenBlock
	if conf.Height > 0 {
		hash = m.ledger.Successor(conf.Frontier)
	}
	blk, err := m.ledger.Block(hash)
	if err != nil {
		m.log.Warnf("Activate(%v): successor of confirmed frontier %v: %v", account, conf.Frontier.Hex(), err)
		return result
	}
	if !m.ledger.DependentsConfirmed(blk) {
		return result
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	result = m.insertImpl(blk, nil, BehaviorNormal, nil)
	if result.Inserted {
		result.Election.transitionActive()
	}
	return result
}

// UpdateDifficulty raises the multiplier of the election of blk if blk
// carries more work than the election was ranked with. It reports whether
// the multiplier changed.
func (m *Manager) UpdateDifficulty(blk *blocks.Block) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.roots.find(blk.QualifiedRoot())
	if !ok {
		return false
	}
	return m.updateDifficulty(entry, blk)
}

func (m *Manager) updateDifficulty(entry *rootEntry, blk *blocks.Block) bool {
	multiplier := m.normalizedMultiplier(blk, entry)
	if multiplier <= entry.multiplier {
		return false
	}
	if m.cfg.LogActiveUpdate {
		m.log.Infof("Election %v difficulty updated with block %v from multiplier %v to %v",
			entry.root, blk.Hash().Hex(), entry.multiplier, multiplier)
	}
	m.roots.setMultiplier(entry, multiplier)
	stat(statElectionDifficultyUpdate)
	return true
}

// normalizedMultiplier ranks the work of blk against the threshold its kind
// of block must meet. Without a sideband the kind is inferred from the
// balance change recorded in entry.
func (m *Manager) normalizedMultiplier(blk *blocks.Block, entry *rootEntry) float64 {
	thresholds := m.params.Thresholds
	var threshold uint64
	switch {
	case blk.HasSideband():
		threshold = thresholds.Threshold(blk.Sideband.Details)
	case entry != nil:
		e := m.elections.get(entry.election)
		if known, ok := e.lastBlocks[blk.Hash()]; ok && known.HasSideband() {
			threshold = thresholds.Threshold(known.Sideband.Details)
		} else {
			// can be wrong during an epoch upgrade; only the ranking suffers
			threshold = thresholds.Threshold(basics.BlockDetails{
				Epoch:     entry.epoch,
				IsSend:    blk.Balance.LessThan(entry.previousBalance),
				IsReceive: entry.previousBalance.LessThan(blk.Balance),
			})
		}
	}
	multiplier := work.ToMultiplier(blk.Difficulty(), threshold)
	if !(multiplier >= 1) {
		return 1
	}
	return thresholds.NormalizedMultiplier(multiplier, threshold)
}

// Restart starts a new election for blk if its election was dropped less
// than restartWindow ago and blk carries more work than the ledger's copy.
// The ledger's copy gets the new work so the same work cannot restart the
// election again. It reports whether an election was started.
func (m *Manager) Restart(blk *blocks.Block, tx *ledger.WriteTxn) bool {
	root := blk.QualifiedRoot()
	m.mu.Lock()
	dropped := m.recentlyDropped.find(root)
	m.mu.Unlock()
	if dropped.IsZero() || !dropped.After(m.clock.Now().Add(-restartWindow)) {
		return false
	}

	hash := blk.Hash()
	stored, err := tx.Block(hash)
	if err != nil || stored.Work == blk.Work {
		return false
	}
	if tx.BlockConfirmed(hash) || m.cementer.IsProcessingBlock(hash) {
		return false
	}
	if blk.Difficulty() <= stored.Difficulty() {
		return false
	}
	// the stored block is rewritten rather than the arriving one, which may
	// not have had its signature checked
	if err := tx.SetBlockWork(hash, blk.Work); err != nil {
		m.log.Warnf("Restart(%v): %v", hash.Hex(), err)
		return false
	}
	upgraded := stored.WithWork(blk.Work)
	prev := tx.Balance(stored.Previous)

	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.insertImpl(upgraded, &prev, BehaviorNormal, nil)
	if !result.Inserted {
		return false
	}
	result.Election.transitionActive()
	m.recentlyDropped.erase(root)
	stat(statElectionRestart)
	return true
}

// ActiveMultiplier is the trended work multiplier of the prioritized
// elections.
func (m *Manager) ActiveMultiplier() float64 {
	return math.Float64frombits(m.trendedMultiplier.Load())
}

// ActiveDifficulty is the work difficulty that matches ActiveMultiplier.
func (m *Manager) ActiveDifficulty() uint64 {
	return work.FromMultiplier(m.ActiveMultiplier(), m.params.Thresholds.Base())
}

// LimitedActiveDifficulty is the difficulty a new block of blk's kind
// should carry to be ranked with the prioritized elections, capped by the
// configured work generation limit.
func (m *Manager) LimitedActiveDifficulty(blk *blocks.Block) uint64 {
	thresholds := m.params.Thresholds
	threshold := thresholds.Base()
	if blk.HasSideband() {
		threshold = thresholds.Threshold(blk.Sideband.Details)
	}
	multiplier := thresholds.DenormalizedMultiplier(m.ActiveMultiplier(), threshold)
	difficulty := work.FromMultiplier(multiplier, threshold)
	limit := work.FromMultiplier(m.cfg.MaxWorkGenerateMultiplier, thresholds.Base())
	if difficulty > limit {
		return limit
	}
	return difficulty
}

// DifficultyTrend returns the multiplier samples, newest first.
func (m *Manager) DifficultyTrend() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trend.snapshot()
}

// RecentlyCemented returns the statuses of the latest cemented elections,
// oldest first.
func (m *Manager) RecentlyCemented() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentlyCemented.list()
}

// EraseRecentlyConfirmed forgets that hash was confirmed.
func (m *Manager) EraseRecentlyConfirmed(hash crypto.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentlyConfirmed.eraseHash(hash)
}

// Erase removes the election of blk's root, if any.
func (m *Manager) Erase(blk *blocks.Block) {
	m.mu.Lock()
	entry, ok := m.roots.find(blk.QualifiedRoot())
	if !ok {
		m.mu.Unlock()
		return
	}
	m.eraseElection(entry)
	m.mu.Unlock()
	m.log.Infof("Election erased for block %v root %v", blk.Hash().Hex(), blk.Root().Hex())
}

// Publish offers blk to the election of its root as another candidate. It
// returns true if blk was not added.
func (m *Manager) Publish(blk *blocks.Block) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.roots.find(blk.QualifiedRoot())
	if !ok {
		return true
	}
	m.updateDifficulty(entry, blk)
	e := m.elections.get(entry.election)
	if e.publish(blk) {
		return true
	}
	m.blocks[blk.Hash()] = entry.election
	stat(statElectionBlockConflict)
	m.updateGauges()
	return false
}

// eraseElection removes the election of entry from every index.
func (m *Manager) eraseElection(entry *rootEntry) {
	e := m.elections.get(entry.election)
	if e.optimistic() && !e.confirmed() {
		m.optimisticCount--
	}
	m.cleanupElection(e.cleanupInfo())
	m.roots.erase(entry.root)
	m.elections.release(entry.election)
	m.updateGauges()
}

// cleanupElection drops the candidates of an erased election from the hash
// index and the inactive votes cache.
func (m *Manager) cleanupElection(info CleanupInfo) {
	var stopped []crypto.Digest
	for hash := range info.Blocks {
		if _, ok := m.blocks[hash]; !ok {
			m.assertf("candidate %v of election %v missing from the block index", hash.Hex(), info.Root)
		}
		delete(m.blocks, hash)
		m.inactive.erase(hash)
		if !info.Confirmed || hash != info.Winner {
			stopped = append(stopped, hash)
		}
	}
	if len(stopped) > 0 {
		m.dispatch(func() {
			for _, hash := range stopped {
				m.notifyActiveStopped(hash)
			}
		})
	}
	if !info.Confirmed {
		m.recentlyDropped.add(info.Root, m.clock.Now())
		electionsDroppedTotal.Inc()
		stat(statElectionDrop)
	}

	blks := info.Blocks
	m.dispatch(func() {
		for _, blk := range blks {
			m.net.ClearPublishFilter(blk)
		}
	})
}

// Size is the number of live elections.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roots.size()
}

// Empty reports whether there are no live elections.
func (m *Manager) Empty() bool {
	return m.Size() == 0
}

// ContainerInfo reports the sizes of the manager's containers.
type ContainerInfo struct {
	Roots                     int `json:"roots"`
	Blocks                    int `json:"blocks"`
	ElectionWinnerDetails     int `json:"election_winner_details"`
	RecentlyConfirmed         int `json:"recently_confirmed"`
	RecentlyCemented          int `json:"recently_cemented"`
	RecentlyDropped           int `json:"recently_dropped"`
	WalletCementableFrontiers int `json:"priority_wallet_cementable_frontiers"`
	CementableFrontiers       int `json:"priority_cementable_frontiers"`
	ExpiredOptimistic         int `json:"expired_optimistic_election_infos"`
	InactiveVotesCache        int `json:"inactive_votes_cache"`
	OptimisticCount           int `json:"optimistic_elections_count"`
	GeneratorCandidates       int `json:"generator_candidates"`
}

// ContainerInfo returns the current container sizes.
func (m *Manager) ContainerInfo() ContainerInfo {
	m.winnersMu.Lock()
	winners := len(m.winners)
	m.winnersMu.Unlock()

	m.mu.Lock()
	info := ContainerInfo{
		Roots:                     m.roots.size(),
		Blocks:                    len(m.blocks),
		ElectionWinnerDetails:     winners,
		RecentlyConfirmed:         m.recentlyConfirmed.size(),
		RecentlyCemented:          m.recentlyCemented.size(),
		RecentlyDropped:           m.recentlyDropped.size(),
		WalletCementableFrontiers: m.walletFrontiers.size(),
		CementableFrontiers:       m.ledgerFrontiers.size(),
		ExpiredOptimistic:         m.expiredOptimistic.size(),
		InactiveVotesCache:        m.inactive.size(),
		OptimisticCount:           m.optimisticCount,
	}
	m.mu.Unlock()
	if m.generator != nil {
		info.GeneratorCandidates = m.generator.Candidates()
	}
	return info
}

func (m *Manager) updateGauges() {
	electionsActive.Set(float64(m.roots.size()))
	electionsBlocks.Set(float64(len(m.blocks)))
	electionsOptimistic.Set(float64(m.optimisticCount))
	electionsInactiveCache.Set(float64(m.inactive.size()))
}
