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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	round        prometheus.Gauge
	calls        *prometheus.CounterVec
	reverts      *prometheus.CounterVec
	txsConfirmed prometheus.Counter
	appsDeployed prometheus.Counter
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.round = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "campusd_ledger_round",
		Help: "current open ledger round",
	})
	m.calls = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusd_ledger_calls_total",
			Help: "application calls committed, by method",
		},
		[]string{"method"},
	)
	m.reverts = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusd_ledger_reverts_total",
			Help: "application calls reverted, by method",
		},
		[]string{"method"},
	)
	m.txsConfirmed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "campusd_ledger_txs_confirmed_total",
		Help: "transactions confirmed by sealed rounds",
	})
	m.appsDeployed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "campusd_ledger_apps_deployed_total",
		Help: "applications deployed",
	})
}
