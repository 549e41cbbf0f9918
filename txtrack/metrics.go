// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package txtrack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type trackerMetrics struct {
	queueDepth  prometheus.Gauge
	confirmed   prometheus.Counter
	deadLetters prometheus.Counter
}

func (m *trackerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.queueDepth = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "campusd_txtrack_queue_depth",
		Help: "transactions waiting for a tracking worker",
	})
	m.confirmed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "campusd_txtrack_confirmed_total",
		Help: "tracked transactions confirmed",
	})
	m.deadLetters = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "campusd_txtrack_dead_letters_total",
		Help: "tracked transactions moved to the dead-letter table",
	})
}
