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

// trendWindow is the number of multiplier samples averaged into the trend.
const trendWindow = 20

// difficultyTrend is a moving average of the median work multiplier among the
// prioritized elections, sampled once per request loop pass.
type difficultyTrend struct {
	samples [trendWindow]float64
	head    int
	trended float64
}

func makeDifficultyTrend() difficultyTrend {
	var t difficultyTrend
	for i := range t.samples {
		t.samples[i] = 1
	}
	t.trended = 1
	return t
}

// push records a sample, replacing the oldest, and returns the new average.
// Samples below 1 count as 1: no block may do less work than the minimum.
func (t *difficultyTrend) push(multiplier float64) float64 {
	if multiplier < 1 {
		multiplier = 1
	}
	t.samples[t.head] = multiplier
	t.head = (t.head + 1) % trendWindow
	var sum float64
	for _, s := range t.samples {
		sum += s
	}
	t.trended = sum / trendWindow
	return t.trended
}

func (t *difficultyTrend) value() float64 {
	return t.trended
}

// snapshot returns the samples, newest first.
func (t *difficultyTrend) snapshot() []float64 {
	out := make([]float64, 0, trendWindow)
	for i := 1; i <= trendWindow; i++ {
		out = append(out, t.samples[(t.head-i+trendWindow)%trendWindow])
	}
	return out
}
