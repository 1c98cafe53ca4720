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
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes a Registry through a prometheus.Registerer so
// the standard promhttp handler can serve it alongside the Go runtime
// collectors.
type PrometheusCollector struct {
	registry *Registry
}

// MakePrometheusCollector wraps reg, or the default registry when reg is nil.
func MakePrometheusCollector(reg *Registry) *PrometheusCollector {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &PrometheusCollector{registry: reg}
}

// Describe is part of prometheus.Collector. The series set changes as tags
// appear, so the collector is unchecked and describes nothing.
func (pc *PrometheusCollector) Describe(chan<- *prometheus.Desc) {}

// Collect is part of prometheus.Collector
func (pc *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	values := make(map[string]float64)
	pc.registry.AddMetrics(values)
	for name, value := range values {
		desc := prometheus.NewDesc(name, name, nil, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.UntypedValue, value)
		if err != nil {
			continue
		}
		ch <- m
	}
}
