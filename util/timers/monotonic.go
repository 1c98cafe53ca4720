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

// Monotonic reads the system clock. Values returned by Now carry a monotonic
// reading, so Since is immune to wall clock adjustments.
type Monotonic struct{}

// MakeMonotonicClock creates a new monotonic clock.
func MakeMonotonicClock() Clock {
	return Monotonic{}
}

// Now implements Clock.Now.
func (Monotonic) Now() time.Time {
	return time.Now()
}

// Since implements Clock.Since.
func (Monotonic) Since(t time.Time) time.Duration {
	return time.Since(t)
}
