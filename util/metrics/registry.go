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
	"regexp"
	"strings"

	"github.com/algorand/go-deadlock"
)

// Metric represent any collectable metric
type Metric interface {
	// WriteMetric adds metrics in Prometheus exposition format to buf, including parentLabels tags if provided.
	WriteMetric(buf *strings.Builder, parentLabels string)
	// AddMetric adds the current value of every series to values, keyed by series name.
	AddMetric(values map[string]float64)
}

// Registry represents a single set of metrics registry
type Registry struct {
	metrics   []Metric
	metricsMu deadlock.Mutex
}

var defaultRegistry = MakeRegistry()

// DefaultRegistry returns the process-wide registry
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// MakeRegistry creates a new, empty registry
func MakeRegistry() *Registry {
	return &Registry{}
}

// Register adds metric to the registry
func (r *Registry) Register(metric Metric) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	r.metrics = append(r.metrics, metric)
}

// Deregister removes metric from the registry
func (r *Registry) Deregister(metric Metric) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	for i, m := range r.metrics {
		if m == metric {
			r.metrics = append(r.metrics[:i], r.metrics[i+1:]...)
			return
		}
	}
}

// WriteMetrics renders every registered metric into buf
func (r *Registry) WriteMetrics(buf *strings.Builder, parentLabels string) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	for _, m := range r.metrics {
		m.WriteMetric(buf, parentLabels)
	}
}

// AddMetrics collects the current value of every registered series
func (r *Registry) AddMetrics(values map[string]float64) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	for _, m := range r.metrics {
		m.AddMetric(values)
	}
}

var sanitizeCharactersRegexp = regexp.MustCompile("(^[^a-zA-Z_]|[^a-zA-Z0-9_])")

// sanitizePrometheusName ensures a metric name doesn't contain any
// non-alphanumeric characters (apart from _) and doesn't start with a number.
func sanitizePrometheusName(name string) string {
	return sanitizeCharactersRegexp.ReplaceAllString(name, "_")
}
