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

// Package node wires the ledger, the elections and the vote generator into
// a running block-lattice node.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/google/uuid"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/elections"
	"github.com/algorand/go-blocklattice/ledger"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/network"
	"github.com/algorand/go-blocklattice/util/execpool"
	"github.com/algorand/go-blocklattice/voting"
)

// repCrawlLatencies is the period, in base latencies, at which the online
// weight is resampled and the principal representatives are refreshed.
const repCrawlLatencies = 20

// StatusReport represents the current basic status of the node
type StatusReport struct {
	Network              config.Network          `json:"network"`
	GenesisHash          string                  `json:"genesis_hash"`
	Instance             string                  `json:"instance"`
	BlockCount           uint64                  `json:"block_count"`
	CementedCount        uint64                  `json:"cemented_count"`
	Elections            int                     `json:"elections"`
	ActiveDifficulty     uint64                  `json:"active_difficulty"`
	ActiveMultiplier     float64                 `json:"active_multiplier"`
	DifficultyTrend      []float64               `json:"difficulty_trend"`
	OnlineStake          basics.Amount           `json:"online_stake"`
	Representatives      elections.RepCounts     `json:"local_representatives"`
	BlockProcessorQueued int                     `json:"block_processor_queued"`
	UncheckedBlocks      int                     `json:"unchecked_blocks"`
	CementerQueued       int                     `json:"cementer_queued"`
	WatchedRoots         int                     `json:"watched_roots"`
	Containers           elections.ContainerInfo `json:"containers"`
}

// ElectionReport describes one live election
type ElectionReport struct {
	Root      string             `json:"root"`
	Previous  string             `json:"previous"`
	State     string             `json:"state"`
	Behavior  elections.Behavior `json:"behavior"`
	Confirmed bool               `json:"confirmed"`
	Winner    string             `json:"winner"`
	Tally     []TallyReport      `json:"tally"`
	Voters    int                `json:"voters"`
}

// TallyReport is the weight behind one candidate of an election
type TallyReport struct {
	Hash   string        `json:"hash"`
	Weight basics.Amount `json:"weight"`
}

// Node is a block-lattice node without peers. It processes blocks into its
// ledger, runs elections for them and votes with its wallet representatives.
type Node struct {
	mu        deadlock.Mutex
	ctx       context.Context
	cancelCtx context.CancelFunc
	config    config.Local
	params    config.NetworkParams

	ledger   *ledger.Ledger
	cementer *ledger.Cementer
	net      *network.Offline

	wallets        *Wallets
	onlineReps     *OnlineReps
	history        *voting.History
	generator      *voting.Generator
	active         *elections.Manager
	blockProcessor *BlockProcessor

	rootDir     string
	genesisHash crypto.Digest
	instance    uuid.UUID

	log logging.Logger

	cryptoPool                 execpool.ExecutionPool
	voteVerificationPool       execpool.BacklogPool
	electionTaskPool           execpool.BacklogPool
	monitoringRoutinesWaitGroup sync.WaitGroup
}

// MakeNode sets up a node whose ledger lives under rootDir. An empty rootDir
// keeps the ledger in memory.
func MakeNode(log logging.Logger, cfg config.Local, params config.NetworkParams, rootDir string, genesis ledger.Genesis) (*Node, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	node := new(Node)
	node.rootDir = rootDir
	node.config = cfg
	node.params = params
	node.genesisHash = genesis.Block.Hash()
	node.instance = uuid.New()
	node.log = log.With("network", string(params.Network)).With("instance", node.instance.String())
	// Set up a context we can use to cancel goroutines on Stop()
	node.ctx, node.cancelCtx = context.WithCancel(context.Background())

	inMem := rootDir == ""
	ledgerPathnamePrefix := config.LedgerFilenamePrefix
	if !inMem {
		networkDir := filepath.Join(rootDir, string(params.Network))
		err = os.MkdirAll(networkDir, 0700)
		if err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", networkDir, err)
		}
		ledgerPathnamePrefix = filepath.Join(networkDir, config.LedgerFilenamePrefix)
	}
	node.ledger, err = ledger.OpenLedger(node.log, ledgerPathnamePrefix, inMem, genesis, params)
	if err != nil {
		log.Errorf("Cannot initialize ledger (%s): %v", ledgerPathnamePrefix, err)
		return nil, err
	}
	node.cementer = ledger.MakeCementer(node.ledger, node.log)

	node.cryptoPool = execpool.MakePool(node)
	node.voteVerificationPool = execpool.MakeBacklog(node.cryptoPool, 2*node.cryptoPool.GetParallelism(), execpool.LowPriority, node)
	node.electionTaskPool = execpool.MakeBacklog(node.cryptoPool, 2*node.cryptoPool.GetParallelism(), execpool.HighPriority, node)

	node.onlineReps = MakeOnlineReps(node.ledger, nil, cfg.OnlineWeightMinimum, 0)
	node.wallets = MakeWallets(node.ledger, node.onlineReps, cfg, params)
	node.net = network.MakeOffline(node.log, network.MakePublishFilter(network.DefaultPublishFilterSize), node.receiveVote)
	node.history = voting.MakeHistory(params.VoteHistorySize)
	node.blockProcessor = MakeBlockProcessor(node.log, node.ledger, node.cementer, node.net, node.wallets, node.history, nil)

	if cfg.EnableVoting {
		node.generator = voting.MakeGenerator(voting.GeneratorParams{
			Log:       node.log,
			Ledger:    node.ledger,
			Reps:      node.wallets,
			Net:       node.net,
			Sink:      node.processVote,
			History:   node.history,
			Delay:     cfg.VoteGeneratorDelay,
			Threshold: cfg.VoteGeneratorThreshold,
		})
	}

	node.active = elections.MakeManager(elections.ManagerParams{
		Log:            node.log,
		Cfg:            cfg,
		Params:         params,
		Ledger:         node.ledger,
		Cementer:       node.cementer,
		BlockProcessor: node.blockProcessor,
		Net:            node.net,
		Wallets:        node.wallets,
		OnlineReps:     node.onlineReps,
		Generator:      node.generator,
		Backlog:        node.electionTaskPool,
	})
	node.blockProcessor.setActive(node.active)
	node.active.AddBlockObserver(node.blockConfirmed)
	return node, nil
}

// Config returns a copy of the node's Local configuration
func (node *Node) Config() config.Local {
	return node.config
}

// Ledger exposes the node's ledger
func (node *Node) Ledger() *ledger.Ledger {
	return node.ledger
}

// Active exposes the node's elections
func (node *Node) Active() *elections.Manager {
	return node.active
}

// Wallets exposes the node's local keys
func (node *Node) Wallets() *Wallets {
	return node.wallets
}

// OnlineReps exposes the node's online weight estimate
func (node *Node) OnlineReps() *OnlineReps {
	return node.onlineReps
}

// Network exposes the node's message layer
func (node *Node) Network() *network.Offline {
	return node.net
}

// Start the node: run the cementer, the block processor and the elections.
func (node *Node) Start() {
	node.mu.Lock()
	defer node.mu.Unlock()

	node.net.Start()
	node.cementer.Start()
	node.blockProcessor.Start()
	node.active.Start()

	node.startMonitoringRoutines()
	node.log.Infof("node started: %d blocks, %d cemented", node.ledger.BlockCount(), node.ledger.CementedCount())
}

// startMonitoringRoutines starts the internal monitoring routines used by the node.
func (node *Node) startMonitoringRoutines() {
	node.monitoringRoutinesWaitGroup.Add(1)
	go node.repCrawlerThread()
}

// waitMonitoringRoutines waits for all the monitoring routines to exit. Note that
// the node.mu must not be taken, and that the node's context should have been canceled.
func (node *Node) waitMonitoringRoutines() {
	node.monitoringRoutinesWaitGroup.Wait()
}

// Stop stops running the node. Once a node is closed, it can never start again.
func (node *Node) Stop() {
	node.mu.Lock()
	defer node.mu.Unlock()

	node.cancelCtx()
	node.waitMonitoringRoutines()

	node.net.Stop()
	node.blockProcessor.Stop()
	node.active.Stop()
	node.cementer.Stop()
	node.voteVerificationPool.Shutdown()
	node.electionTaskPool.Shutdown()
	node.cryptoPool.Shutdown()
	node.ledger.Close()
}

// repCrawlerThread resamples the online weight and publishes the
// representatives holding a principal's weight to the network layer.
func (node *Node) repCrawlerThread() {
	defer node.monitoringRoutinesWaitGroup.Done()
	ticker := time.NewTicker(repCrawlLatencies * node.params.BaseLatency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			node.crawlReps()
		case <-node.ctx.Done():
			return
		}
	}
}

func (node *Node) crawlReps() {
	node.onlineReps.Sample()
	factor := node.params.PrincipalWeightFactor
	if factor == 0 {
		factor = 1
	}
	principal := node.onlineReps.OnlineStake().Div64(factor)
	node.net.SetRepresentatives(node.onlineReps.Observed(principal))
}

// ProcessBlock queues a block created by a local wallet.
func (node *Node) ProcessBlock(blk *blocks.Block) {
	node.blockProcessor.AddLocal(blk)
}

// ReceiveBlock queues a block published by a peer unless the publish filter
// has seen it already. It reports whether the block was queued.
func (node *Node) ReceiveBlock(blk *blocks.Block) bool {
	if node.net.Publish(blk) {
		return false
	}
	node.blockProcessor.Add(blk)
	return true
}

// Flush waits until the block processor is idle.
func (node *Node) Flush() {
	node.blockProcessor.Flush()
}

// ReceiveVote verifies a vote from a peer and applies it.
func (node *Node) ReceiveVote(v *voting.Vote) {
	node.receiveVote(v)
}

// receiveVote hands the signature check to the verification backlog. Votes
// arriving after Stop are dropped.
func (node *Node) receiveVote(v *voting.Vote) {
	err := node.voteVerificationPool.EnqueueBacklog(node.ctx, node.verifyVote, v, nil)
	if err != nil {
		node.log.Debugf("dropping vote %v: %v", v, err)
	}
}

func (node *Node) verifyVote(arg interface{}) interface{} {
	v := arg.(*voting.Vote)
	if !v.Verify() {
		node.log.Infof("discarding vote with bad signature from %v", v.Account)
		return nil
	}
	node.processVote(v)
	return nil
}

// processVote applies a vote that is known to be valid.
func (node *Node) processVote(v *voting.Vote) {
	node.onlineReps.Observe(v.Account)
	code := node.active.Vote(v)
	if node.config.LogVotes {
		node.log.Infof("vote %v: %v", v, code)
	}
}

func (node *Node) blockConfirmed(cb elections.ConfirmedBlock) {
	if cb.Status.Winner != nil {
		node.wallets.Unwatch(cb.Status.Winner.QualifiedRoot())
	}
}

// Status returns a StatusReport describing the ledger, the elections and the queues feeding them
func (node *Node) Status() (s StatusReport, err error) {
	s.Network = node.params.Network
	s.GenesisHash = node.genesisHash.Hex()
	s.Instance = node.instance.String()
	s.BlockCount = node.ledger.BlockCount()
	s.CementedCount = node.ledger.CementedCount()
	s.Elections = node.active.Size()
	s.ActiveDifficulty = node.active.ActiveDifficulty()
	s.ActiveMultiplier = node.active.ActiveMultiplier()
	s.DifficultyTrend = node.active.DifficultyTrend()
	s.OnlineStake = node.onlineReps.OnlineStake()
	s.Representatives = node.wallets.Reps()
	s.BlockProcessorQueued = node.blockProcessor.Size()
	s.UncheckedBlocks = node.blockProcessor.UncheckedSize()
	s.CementerQueued = node.cementer.AwaitingProcessingSize()
	s.WatchedRoots = node.wallets.WatchedCount()
	s.Containers = node.active.ContainerInfo()
	return s, nil
}

// Election reports the live election for root. For blocks that are not the
// first of their chain the root is the previous block, so a root alone is
// looked up both as such and as the root of an open block.
func (node *Node) Election(root crypto.Digest) (ElectionReport, bool) {
	e := node.active.Election(blocks.QualifiedRoot{Root: root, Previous: root})
	if e == nil {
		e = node.active.Election(blocks.QualifiedRoot{Root: root})
	}
	if e == nil {
		return ElectionReport{}, false
	}
	qr := e.Root()
	report := ElectionReport{
		Root:      qr.Root.Hex(),
		Previous:  qr.Previous.Hex(),
		State:     e.State().String(),
		Behavior:  e.Behavior(),
		Confirmed: e.Confirmed(),
		Voters:    len(e.Votes()),
	}
	if winner := e.Winner(); winner != nil {
		report.Winner = winner.Hash().Hex()
	}
	for _, entry := range e.Tally() {
		report.Tally = append(report.Tally, TallyReport{Hash: entry.Hash.Hex(), Weight: entry.Weight})
	}
	return report, true
}
