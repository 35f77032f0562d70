// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
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

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zhaojp0411/twemproxy/common"
)

var (
	uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "uptime",
		Help:      "proxy uptime in seconds",
	})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "build_info",
		Help:      "program build information",
	}, []string{"version", "git_hash", "time"})

	connsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "client_connections_total",
		Help:      "client connections accepted",
	})

	connsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "client_connections_active",
		Help:      "client connections currently open",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "requests_total",
		Help:      "requests parsed from clients, by command",
	}, []string{"command"})

	fragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "fragmented_requests_total",
		Help:      "multi-key requests split across shards",
	})

	parseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "parse_errors_total",
		Help:      "requests rejected for failing to parse",
	})

	backendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "backend_errors_total",
		Help:      "backend I/O or parse failures, by shard",
	}, []string{"shard"})
)

// recordMetrics refreshes the gauges that are only worth computing at
// scrape time.
func recordMetrics() {
	uptime.Set(float64(time.Now().Unix() - common.Started()))
	bi := common.GetBuildInfo()
	buildInfo.WithLabelValues(bi.Version, bi.GitHash, bi.Time).Set(1)
}
