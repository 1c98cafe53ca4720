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
	"strconv"
	"strings"
	"sync/atomic"
)

// Counter represent a single monotonically increasing counter.
type Counter struct {
	name        string
	description string
	value       atomic.Uint64
}

// MakeCounter create a new counter with the provided name and description
// and registers it with the default registry.
func MakeCounter(metric MetricName) *Counter {
	c := &Counter{name: metric.Name, description: metric.Description}
	c.Register(nil)
	return c
}

// NewCounter is a shortcut to MakeCounter in one shorter line.
func NewCounter(name, desc string) *Counter {
	return MakeCounter(MetricName{Name: name, Description: desc})
}

// Register registers the counter with the default/specific registry
func (counter *Counter) Register(reg *Registry) {
	if reg == nil {
		DefaultRegistry().Register(counter)
	} else {
		reg.Register(counter)
	}
}

// Deregister deregisters the counter with the default/specific registry
func (counter *Counter) Deregister(reg *Registry) {
	if reg == nil {
		DefaultRegistry().Deregister(counter)
	} else {
		reg.Deregister(counter)
	}
}

// Inc increases counter by 1
func (counter *Counter) Inc() {
	counter.value.Add(1)
}

// AddUint64 increases counter by x
func (counter *Counter) AddUint64(x uint64) {
	counter.value.Add(x)
}

// GetUint64Value returns the value of the counter.
func (counter *Counter) GetUint64Value() uint64 {
	return counter.value.Load()
}

// WriteMetric writes the metric into the output stream
func (counter *Counter) WriteMetric(buf *strings.Builder, parentLabels string) {
	name := sanitizePrometheusName(counter.name)
	writeHeader(buf, name, counter.description, "counter")
	writeSample(buf, name, parentLabels, strconv.FormatUint(counter.value.Load(), 10))
}

// AddMetric adds the metric into the map
func (counter *Counter) AddMetric(values map[string]float64) {
	values[sanitizePrometheusName(counter.name)] = float64(counter.value.Load())
}

func writeHeader(buf *strings.Builder, name, description, kind string) {
	buf.WriteString("# HELP ")
	buf.WriteString(name)
	buf.WriteString(" ")
	buf.WriteString(description)
	buf.WriteString("\n# TYPE ")
	buf.WriteString(name)
	buf.WriteString(" ")
	buf.WriteString(kind)
	buf.WriteString("\n")
}

func writeSample(buf *strings.Builder, name, labels, value string) {
	buf.WriteString(name)
	if labels != "" {
		buf.WriteString("{")
		buf.WriteString(labels)
		buf.WriteString("}")
	}
	buf.WriteString(" ")
	buf.WriteString(value)
	buf.WriteString("\n")
}
