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
	"sort"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-blocklattice/data/basics"
	"github.com/algorand/go-blocklattice/elections"
	"github.com/algorand/go-blocklattice/util/metrics"
	"github.com/algorand/go-blocklattice/util/timers"
)

// onlineWeightWindow is how long a representative counts as online after
// its last vote.
const onlineWeightWindow = 5 * time.Minute

var onlineStakeGauge = metrics.MakeGauge(metrics.OnlineStake)
var onlineRepresentativesGauge = metrics.MakeGauge(metrics.OnlineRepresentatives)

// OnlineReps estimates the online voting weight from the representatives
// seen voting within a trailing window. The estimate never falls below the
// configured minimum.
type OnlineReps struct {
	ledger  weightLedger
	clock   timers.Clock
	minimum basics.Amount
	window  time.Duration

	mu     deadlock.Mutex
	seen   map[basics.Address]time.Time
	online basics.Amount
}

// MakeOnlineReps creates a tracker with no observed representatives. A zero
// window selects onlineWeightWindow.
func MakeOnlineReps(l weightLedger, clock timers.Clock, minimum basics.Amount, window time.Duration) *OnlineReps {
	if clock == nil {
		clock = timers.MakeMonotonicClock()
	}
	if window == 0 {
		window = onlineWeightWindow
	}
	return &OnlineReps{
		ledger:  l,
		clock:   clock,
		minimum: minimum,
		window:  window,
		seen:    make(map[basics.Address]time.Time),
	}
}

// Observe records a vote by rep. Accounts without weight are ignored.
func (o *OnlineReps) Observe(rep basics.Address) {
	if o.ledger.Weight(rep).IsZero() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, known := o.seen[rep]
	o.seen[rep] = o.clock.Now()
	if !known {
		o.sampleLocked()
	}
}

// Sample forgets representatives silent for longer than the window and
// recomputes the online weight from the current ledger weights.
func (o *OnlineReps) Sample() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sampleLocked()
}

func (o *OnlineReps) sampleLocked() {
	cutoff := o.clock.Now().Add(-o.window)
	var total basics.Amount
	for rep, last := range o.seen {
		if last.Before(cutoff) {
			delete(o.seen, rep)
			continue
		}
		total = total.Add(o.ledger.Weight(rep))
	}
	o.online = total
	onlineStakeGauge.Set(basics.MaxAmount(total, o.minimum).Float64() / basics.GxrbRatio.Float64())
	onlineRepresentativesGauge.Set(float64(len(o.seen)))
}

// OnlineStake is the larger of the observed online weight and the minimum
func (o *OnlineReps) OnlineStake() basics.Amount {
	o.mu.Lock()
	defer o.mu.Unlock()
	return basics.MaxAmount(o.online, o.minimum)
}

// Observed returns the representatives seen within the window whose weight
// is at least minWeight, heaviest first.
func (o *OnlineReps) Observed(minWeight basics.Amount) []elections.Representative {
	o.mu.Lock()
	cutoff := o.clock.Now().Add(-o.window)
	accounts := make([]basics.Address, 0, len(o.seen))
	for rep, last := range o.seen {
		if !last.Before(cutoff) {
			accounts = append(accounts, rep)
		}
	}
	o.mu.Unlock()

	var reps []elections.Representative
	for _, account := range accounts {
		weight := o.ledger.Weight(account)
		if weight.IsZero() || weight.LessThan(minWeight) {
			continue
		}
		reps = append(reps, elections.Representative{Account: account, Weight: weight, Channel: account.String()})
	}
	sort.Slice(reps, func(i, j int) bool {
		if c := reps[i].Weight.Cmp(reps[j].Weight); c != 0 {
			return c > 0
		}
		return reps[i].Account.Less(reps[j].Account)
	})
	return reps
}
