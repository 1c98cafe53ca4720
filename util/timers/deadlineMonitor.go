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

package timers

import (
	"time"
)

// DeadlineMonitor reports whether a time box has run out.
type DeadlineMonitor struct {
	clock    Clock
	deadline time.Time
	expired  bool
}

// MakeDeadlineMonitor starts a time box of length expiration on clock.
func MakeDeadlineMonitor(clock Clock, expiration time.Duration) *DeadlineMonitor {
	return &DeadlineMonitor{
		clock:    clock,
		deadline: clock.Now().Add(expiration),
	}
}

// Expired return true if the deadline has passed, or false otherwise.
// Once expired, it stays expired.
func (m *DeadlineMonitor) Expired() bool {
	if m.expired {
		return true
	}
	if !m.clock.Now().Before(m.deadline) {
		m.expired = true
	}
	return m.expired
}
