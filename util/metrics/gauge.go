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
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Gauge represent a single gauge variable.
type Gauge struct {
	name        string
	description string
	bits        atomic.Uint64
}

// MakeGauge create a new gauge with the provided name and description
// and registers it with the default registry.
func MakeGauge(metric MetricName) *Gauge {
	g := &Gauge{name: metric.Name, description: metric.Description}
	g.Register(nil)
	return g
}

// Register registers the gauge with the default/specific registry
func (gauge *Gauge) Register(reg *Registry) {
	if reg == nil {
		DefaultRegistry().Register(gauge)
	} else {
		reg.Register(gauge)
	}
}

// Deregister deregisters the gauge with the default/specific registry
func (gauge *Gauge) Deregister(reg *Registry) {
	if reg == nil {
		DefaultRegistry().Deregister(gauge)
	} else {
		reg.Deregister(gauge)
	}
}

// Set sets gauge to x
func (gauge *Gauge) Set(x float64) {
	gauge.bits.Store(math.Float64bits(x))
}

// Add increases gauge by x
func (gauge *Gauge) Add(x float64) {
	for {
		old := gauge.bits.Load()
		if gauge.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+x)) {
			return
		}
	}
}

// Get returns the current value
func (gauge *Gauge) Get() float64 {
	return math.Float64frombits(gauge.bits.Load())
}

// WriteMetric writes the metric into the output stream
func (gauge *Gauge) WriteMetric(buf *strings.Builder, parentLabels string) {
	name := sanitizePrometheusName(gauge.name)
	writeHeader(buf, name, gauge.description, "gauge")
	writeSample(buf, name, parentLabels, strconv.FormatFloat(gauge.Get(), 'g', -1, 64))
}

// AddMetric adds the metric into the map
func (gauge *Gauge) AddMetric(values map[string]float64) {
	values[sanitizePrometheusName(gauge.name)] = gauge.Get()
}
