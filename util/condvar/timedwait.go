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

// Package condvar adds a timed wait to sync.Cond.
package condvar

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimedWait waits for sync.Cond c to be signaled, with a timeout.
// As with c.Wait(), the caller must hold c.L, and TimedWait returns
// with c.L held. Like c.Wait(), spurious wakeups are possible, so the
// caller re-checks its condition in a loop.
func TimedWait(c *sync.Cond, timeout time.Duration) {
	var done atomic.Bool
	go func() {
		<-time.After(timeout)
		for !done.Load() {
			c.Broadcast()
			// The waiter may not have reached c.Wait() yet.
			time.Sleep(time.Millisecond)
		}
	}()
	c.Wait()
	done.Store(true)
}
