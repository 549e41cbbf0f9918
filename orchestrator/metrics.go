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

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type orchestratorMetrics struct {
	plans      *prometheus.CounterVec
	executions *prometheus.CounterVec
}

func (m *orchestratorMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.plans = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusd_orchestrator_plans_total",
			Help: "plans created, by action type",
		},
		[]string{"action_type"},
	)
	m.executions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusd_orchestrator_executions_total",
			Help: "execution attempts, by resulting status",
		},
		[]string{"status"},
	)
}
