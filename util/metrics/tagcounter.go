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

package metrics

import (
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/algorand/go-deadlock"
)

// NewTagCounter makes a set of metrics under rootName for tagged counting.
// "{TAG}" in rootName is replaced by the tag, otherwise "_{TAG}" is appended.
func NewTagCounter(rootName, desc string) *TagCounter {
	tc := &TagCounter{Name: rootName, Description: desc}
	DefaultRegistry().Register(tc)
	return tc
}

// TagCounter holds a set of counters
type TagCounter struct {
	Name        string
	Description string

	// a read only race-free snapshot of tags
	tagptr atomic.Pointer[map[string]*atomic.Uint64]

	tagLock deadlock.Mutex
}

// Add t[tag] += val, fast and multithread safe
func (tc *TagCounter) Add(tag string, val uint64) {
	if count := tc.lookup(tag); count != nil {
		count.Add(val)
		return
	}

	tc.tagLock.Lock()
	defer tc.tagLock.Unlock()
	var old map[string]*atomic.Uint64
	if p := tc.tagptr.Load(); p != nil {
		old = *p
	}
	count, ok := old[tag]
	if !ok {
		// copy on write so readers never race with us
		next := make(map[string]*atomic.Uint64, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		count = new(atomic.Uint64)
		next[tag] = count
		tc.tagptr.Store(&next)
	}
	count.Add(val)
}

// GetValue returns the count for tag
func (tc *TagCounter) GetValue(tag string) uint64 {
	if count := tc.lookup(tag); count != nil {
		return count.Load()
	}
	return 0
}

func (tc *TagCounter) lookup(tag string) *atomic.Uint64 {
	p := tc.tagptr.Load()
	if p == nil {
		return nil
	}
	return (*p)[tag]
}

func (tc *TagCounter) seriesName(tag string) string {
	if strings.Contains(tc.Name, "{TAG}") {
		return sanitizePrometheusName(strings.ReplaceAll(tc.Name, "{TAG}", tag))
	}
	return sanitizePrometheusName(tc.Name + "_" + tag)
}

func (tc *TagCounter) snapshot() (tags []string, counts map[string]*atomic.Uint64) {
	p := tc.tagptr.Load()
	if p == nil {
		return nil, nil
	}
	counts = *p
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, counts
}

// WriteMetric is part of the Metric interface
func (tc *TagCounter) WriteMetric(buf *strings.Builder, parentLabels string) {
	tags, counts := tc.snapshot()
	for _, tag := range tags {
		name := tc.seriesName(tag)
		writeHeader(buf, name, tc.Description, "counter")
		writeSample(buf, name, parentLabels, strconv.FormatUint(counts[tag].Load(), 10))
	}
}

// AddMetric is part of the Metric interface
func (tc *TagCounter) AddMetric(values map[string]float64) {
	tags, counts := tc.snapshot()
	for _, tag := range tags {
		values[tc.seriesName(tag)] = float64(counts[tag].Load())
	}
}
