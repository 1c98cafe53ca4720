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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-blocklattice/config"
	"github.com/algorand/go-blocklattice/crypto"
	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/data/blocks"
	"github.com/algorand/go-blocklattice/ledger"
	ledgertesting "github.com/algorand/go-blocklattice/ledger/testing"
	"github.com/algorand/go-blocklattice/logging"
	"github.com/algorand/go-blocklattice/util/timers"
	"github.com/algorand/go-blocklattice/voting"
)

// unit scales test weights so the percentage arithmetic stays exact.
var unit = basics.NewAmount(1000000)

func weight(n uint64) basics.Amount {
	return unit.Mul64(n)
}

// weightedLedger is a real ledger whose representative weights are set by
// the test.
type weightedLedger struct {
	*ledger.Ledger
	mu      sync.Mutex
	weights map[basics.Address]basics.Amount
}

func (l *weightedLedger) Weight(rep basics.Address) basics.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weights[rep]
}

func (l *weightedLedger) setWeight(rep basics.Address, w basics.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.weights[rep] = w
}

type fakeNetwork struct {
	mu          sync.Mutex
	reps        []Representative
	confirmReqs map[string][][]HashRoot
	sentBlocks  map[string][]*blocks.Block
	floodBlocks []*blocks.Block
	floodVotes  []*voting.Vote
	cleared     []crypto.Digest
}

func makeFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		confirmReqs: make(map[string][][]HashRoot),
		sentBlocks:  make(map[string][]*blocks.Block),
	}
}

func (n *fakeNetwork) PrincipalRepresentatives() []Representative {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Representative(nil), n.reps...)
}

func (n *fakeNetwork) SendConfirmReq(channel string, req []HashRoot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmReqs[channel] = append(n.confirmReqs[channel], append([]HashRoot(nil), req...))
}

func (n *fakeNetwork) SendBlock(channel string, blk *blocks.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sentBlocks[channel] = append(n.sentBlocks[channel], blk)
}

func (n *fakeNetwork) FloodBlock(blk *blocks.Block, scale float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.floodBlocks = append(n.floodBlocks, blk)
}

func (n *fakeNetwork) FloodVotePR(v *voting.Vote) {
	n.FloodVote(v, 1)
}

func (n *fakeNetwork) FloodVote(v *voting.Vote, scale float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.floodVotes = append(n.floodVotes, v)
}

func (n *fakeNetwork) ClearPublishFilter(blk *blocks.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleared = append(n.cleared, blk.Hash())
}

func (n *fakeNetwork) confirmReqCount(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmReqs[channel])
}

func (n *fakeNetwork) floodedVotes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.floodVotes)
}

func (n *fakeNetwork) clearedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cleared)
}

type fakeWallets struct {
	mu       sync.Mutex
	counts   RepCounts
	reps     map[basics.Address]bool
	watched  map[blocks.QualifiedRoot]bool
	ids      []WalletID
	accounts map[WalletID][]basics.Address
}

func makeFakeWallets() *fakeWallets {
	return &fakeWallets{
		reps:     make(map[basics.Address]bool),
		watched:  make(map[blocks.QualifiedRoot]bool),
		accounts: make(map[WalletID][]basics.Address),
	}
}

func (w *fakeWallets) Reps() RepCounts {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts
}

func (w *fakeWallets) RepExists(account basics.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reps[account]
}

func (w *fakeWallets) IsWatched(root blocks.QualifiedRoot) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[root]
}

func (w *fakeWallets) WalletIDs() []WalletID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WalletID(nil), w.ids...)
}

func (w *fakeWallets) WalletAccounts(id WalletID, from basics.Address, max int) []basics.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []basics.Address
	for _, a := range w.accounts[id] {
		if len(out) >= max {
			break
		}
		if !a.Less(from) {
			out = append(out, a)
		}
	}
	return out
}

type fixedOnlineReps struct {
	mu    sync.Mutex
	stake basics.Amount
}

func (o *fixedOnlineReps) OnlineStake() basics.Amount {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stake
}

type forceRecorder struct {
	mu     sync.Mutex
	forced []*blocks.Block
}

func (f *forceRecorder) Force(blk *blocks.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = append(f.forced, blk)
}

func (f *forceRecorder) snapshot() []*blocks.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*blocks.Block(nil), f.forced...)
}

// harness wires a manager to an in-memory ledger, a stopped cementer and
// fakes for everything else. The request loop is disabled; tests drive it.
type harness struct {
	t        *testing.T
	m        *Manager
	ledger   *weightedLedger
	cementer *ledger.Cementer
	net      *fakeNetwork
	wallets  *fakeWallets
	online   *fixedOnlineReps
	bp       *forceRecorder
	clock    *timers.Frozen
	genesis  *blocks.Block
	params   ManagerParams
}

func testConfig() config.Local {
	cfg := config.GetDefaultLocal()
	cfg.DisableRequestLoop = true
	cfg.DebugAssertions = true
	cfg.OnlineWeightMinimum = weight(51)
	cfg.OnlineWeightQuorum = 50
	cfg.ActiveElectionsSize = 100
	cfg.InactiveVotesCacheSize = 64
	cfg.ConfirmationHistorySize = 16
	return cfg
}

func makeHarness(t *testing.T, cfg config.Local, generator bool) *harness {
	params := ledgertesting.DevParams()
	l, err := ledger.OpenLedger(logging.TestingLog(t), t.Name(), true, ledgertesting.Genesis(), params)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	genesis, err := l.Block(l.GenesisHash())
	require.NoError(t, err)

	h := &harness{
		t:        t,
		ledger:   &weightedLedger{Ledger: l, weights: make(map[basics.Address]basics.Amount)},
		cementer: ledger.MakeCementer(l, logging.TestingLog(t)),
		net:      makeFakeNetwork(),
		wallets:  makeFakeWallets(),
		online:   &fixedOnlineReps{stake: weight(100)},
		bp:       &forceRecorder{},
		clock:    timers.MakeFrozenClock(time.Unix(1700000000, 0)),
		genesis:  genesis,
	}
	p := ManagerParams{
		Log:            logging.TestingLog(t),
		Cfg:            cfg,
		Params:         params,
		Clock:          h.clock,
		Ledger:         h.ledger,
		Cementer:       h.cementer,
		BlockProcessor: h.bp,
		Net:            h.net,
		Wallets:        h.wallets,
		OnlineReps:     h.online,
	}
	if generator {
		p.Generator = voting.MakeGenerator(voting.GeneratorParams{
			Log:     logging.TestingLog(t),
			Ledger:  l,
			Reps:    noReps{},
			Net:     h.net,
			Sink:    func(*voting.Vote) {},
			History: voting.MakeHistory(256),
			Clock:   h.clock,
			Delay:   time.Hour,
		})
	}
	h.params = p
	h.m = MakeManager(p)
	t.Cleanup(func() {
		h.m.Stop()
		h.cementer.Stop()
		h.m.tasks.Wait()
	})
	return h
}

// reset replaces the manager with a fresh one over the same ledger.
func (h *harness) reset() {
	h.m.Stop()
	h.m.tasks.Wait()
	h.m = MakeManager(h.params)
}

type noReps struct{}

func (noReps) VotingSecrets() []*crypto.SignatureSecrets {
	return nil
}

// send processes a send from genesis into the ledger and returns it with its
// sideband.
func (h *harness) send(prev *blocks.Block, dest basics.Address, amount basics.Amount) *blocks.Block {
	blk := ledgertesting.Send(ledgertesting.GenesisKey(), prev, dest, amount, h.ledger.Thresholds())
	out, err := h.ledger.Process(blk)
	require.NoError(h.t, err)
	return out
}

// fork builds a send competing with the one after prev, without storing it.
func (h *harness) fork(prev *blocks.Block, dest basics.Address, amount basics.Amount) *blocks.Block {
	return ledgertesting.Send(ledgertesting.GenesisKey(), prev, dest, amount, h.ledger.Thresholds())
}

// voter returns test account i with weight w.
func (h *harness) voter(i byte, w basics.Amount) basics.Address {
	a := ledgertesting.Addr(ledgertesting.Key(i))
	h.ledger.setWeight(a, w)
	return a
}

func testVote(rep basics.Address, sequence uint64, hashes ...crypto.Digest) *voting.Vote {
	return &voting.Vote{Account: rep, Sequence: sequence, Hashes: hashes}
}

// checkIndices verifies that every candidate reachable from the root index
// is in the hash index, pointing at its election, and nothing else is.
func checkIndices(t require.TestingT, m *Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidates := 0
	for root, entry := range m.roots.byRoot {
		require.Equal(t, root, entry.root)
		e := m.elections.get(entry.election)
		require.NotNil(t, e)
		require.Equal(t, root, e.root)
		for hash := range e.lastBlocks {
			h, ok := m.blocks[hash]
			require.True(t, ok, "candidate %v missing from the hash index", hash)
			require.Equal(t, entry.election, h)
			candidates++
		}
	}
	require.Equal(t, candidates, len(m.blocks))
	require.Equal(t, m.roots.size(), m.elections.size())
	require.Equal(t, m.roots.size(), m.roots.byMultiplier.Len())
}
