// Copyright 2021 hardcore-os Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License")
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lsm

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "compactkv"

var compactionDurationBuckets = prometheus.ExponentialBuckets(0.001, 4, 10)

type compactionMetrics struct {
	duration          prometheus.Histogram
	compactions       *prometheus.CounterVec
	tablesWritten     prometheus.Counter
	bytesWritten      prometheus.Counter
	entriesMerged     prometheus.Counter
	tombstonesDropped prometheus.Counter
}

// newCompactionMetrics registers on reg when it is not nil. Registering twice on
// the same registry reuses the existing collectors.
func newCompactionMetrics(reg prometheus.Registerer) (*compactionMetrics, error) {
	m := &compactionMetrics{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "compaction_duration_seconds",
			Help:      "Duration of compaction runs",
			Buckets:   compactionDurationBuckets,
		}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compactions_total",
			Help:      "Compaction runs by result",
		}, []string{"result"}),
		tablesWritten:     newCounter("tables_written_total", "Output tables written by compactions"),
		bytesWritten:      newCounter("bytes_written_total", "Bytes of output tables written by compactions"),
		entriesMerged:     newCounter("entries_merged_total", "Distinct entries emitted by the merge iterator"),
		tombstonesDropped: newCounter("tombstones_dropped_total", "Tombstones dropped by bottom level compactions"),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.compactions, err = register(reg, m.compactions); err != nil {
		return nil, err
	}
	for _, c := range []*prometheus.Counter{&m.tablesWritten, &m.bytesWritten, &m.entriesMerged, &m.tombstonesDropped} {
		if *c, err = register(reg, *c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			if existing, ok := e.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register compaction metrics")
	}
	return c, nil
}

func (m *compactionMetrics) observe(result string, seconds float64) {
	m.compactions.WithLabelValues(result).Inc()
	if result == "success" {
		m.duration.Observe(seconds)
	}
}
