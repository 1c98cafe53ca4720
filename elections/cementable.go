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
	"bytes"
	"time"

	"github.com/google/btree"

	"github.com/algorand/go-blocklattice/data/basics"
)

// cementableAccount is an account with blocks above its confirmation height.
type cementableAccount struct {
	account    basics.Address
	uncemented uint64
}

func mostUncementedFirst(a, b *cementableAccount) bool {
	if a.uncemented != b.uncemented {
		return a.uncemented > b.uncemented
	}
	return bytes.Compare(a.account[:], b.account[:]) < 0
}

// cementableAccounts is a bounded set of accounts ordered by how many blocks
// they have uncemented. When full, the account with the fewest is evicted.
type cementableAccounts struct {
	byAccount map[basics.Address]*cementableAccount
	ordered   *btree.BTreeG[*cementableAccount]
	capacity  int
}

func makeCementableAccounts(capacity int) *cementableAccounts {
	return &cementableAccounts{
		byAccount: make(map[basics.Address]*cementableAccount),
		ordered:   btree.NewG(defaultTreeDegree, mostUncementedFirst),
		capacity:  capacity,
	}
}

func (c *cementableAccounts) contains(a basics.Address) bool {
	_, ok := c.byAccount[a]
	return ok
}

// put records that a has uncemented blocks. It reports whether a new entry
// was created.
func (c *cementableAccounts) put(a basics.Address, uncemented uint64) bool {
	if e, ok := c.byAccount[a]; ok {
		c.ordered.Delete(e)
		e.uncemented = uncemented
		c.ordered.ReplaceOrInsert(e)
		return false
	}
	if len(c.byAccount) >= c.capacity {
		least, ok := c.ordered.Max()
		if !ok || least.uncemented >= uncemented {
			return false
		}
		c.erase(least.account)
	}
	e := &cementableAccount{account: a, uncemented: uncemented}
	c.byAccount[a] = e
	c.ordered.ReplaceOrInsert(e)
	return true
}

func (c *cementableAccounts) erase(a basics.Address) {
	if e, ok := c.byAccount[a]; ok {
		delete(c.byAccount, a)
		c.ordered.Delete(e)
	}
}

// pop removes and returns the account with the most uncemented blocks.
func (c *cementableAccounts) pop() (cementableAccount, bool) {
	e, ok := c.ordered.DeleteMin()
	if !ok {
		return cementableAccount{}, false
	}
	delete(c.byAccount, e.account)
	return *e, true
}

func (c *cementableAccounts) size() int {
	return len(c.byAccount)
}

// expiredOptimistic records an account whose optimistic election expired and
// which is retried pessimistically.
type expiredOptimistic struct {
	account         basics.Address
	expired         time.Time
	electionStarted bool
}

func oldestExpiredFirst(a, b *expiredOptimistic) bool {
	if !a.expired.Equal(b.expired) {
		return a.expired.Before(b.expired)
	}
	return bytes.Compare(a.account[:], b.account[:]) < 0
}

// expiredOptimisticInfos is ordered by expiry time and unique by account.
type expiredOptimisticInfos struct {
	byAccount map[basics.Address]*expiredOptimistic
	ordered   *btree.BTreeG[*expiredOptimistic]
}

func makeExpiredOptimisticInfos() *expiredOptimisticInfos {
	return &expiredOptimisticInfos{
		byAccount: make(map[basics.Address]*expiredOptimistic),
		ordered:   btree.NewG(defaultTreeDegree, oldestExpiredFirst),
	}
}

func (x *expiredOptimisticInfos) contains(a basics.Address) bool {
	_, ok := x.byAccount[a]
	return ok
}

// add records that a's optimistic election expired at now. The oldest entry
// is dropped beyond capacity.
func (x *expiredOptimisticInfos) add(a basics.Address, now time.Time, capacity int) {
	if e, ok := x.byAccount[a]; ok {
		x.ordered.Delete(e)
		e.expired = now
		e.electionStarted = false
		x.ordered.ReplaceOrInsert(e)
		return
	}
	e := &expiredOptimistic{account: a, expired: now}
	x.byAccount[a] = e
	x.ordered.ReplaceOrInsert(e)
	if len(x.byAccount) > capacity {
		if oldest, ok := x.ordered.DeleteMin(); ok {
			delete(x.byAccount, oldest.account)
		}
	}
}

func (x *expiredOptimisticInfos) erase(a basics.Address) {
	if e, ok := x.byAccount[a]; ok {
		delete(x.byAccount, a)
		x.ordered.Delete(e)
	}
}

// pruneBefore drops the entries that expired before cutoff.
func (x *expiredOptimisticInfos) pruneBefore(cutoff time.Time) {
	for {
		oldest, ok := x.ordered.Min()
		if !ok || !oldest.expired.Before(cutoff) {
			return
		}
		x.ordered.DeleteMin()
		delete(x.byAccount, oldest.account)
	}
}

// pending returns the entries whose retry has not started, oldest first.
func (x *expiredOptimisticInfos) pending() []*expiredOptimistic {
	var out []*expiredOptimistic
	x.ordered.Ascend(func(e *expiredOptimistic) bool {
		if !e.electionStarted {
			out = append(out, e)
		}
		return true
	})
	return out
}

func (x *expiredOptimisticInfos) size() int {
	return len(x.byAccount)
}
