/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter periodically scrapes a Stats snapshot into a
// prometheus.Registry and serves it over HTTP. Grounded on
// ptp/sptp/stats.PrometheusExporter, simplified from its HTTP-fetch
// model (sptp scrapes its own sibling process) to a direct in-process
// snapshot, since sde.Engine and the exporter share one address space.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	source     Stats
	listenAddr string
	interval   time.Duration
}

// NewPrometheusExporter builds an exporter that scrapes source every
// interval and serves the result on listenAddr's "/metrics".
func NewPrometheusExporter(source Stats, listenAddr string, interval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		source:     source,
		listenAddr: listenAddr,
		interval:   interval,
	}
}

// Start scrapes once immediately, then launches the periodic scrape loop
// and blocks serving "/metrics". Callers that need Start to return
// should run it in its own goroutine, matching the teacher's
// fire-and-forget daemon idiom.
func (e *PrometheusExporter) Start() error {
	e.scrape()
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for range ticker.C {
			e.scrape()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	return http.ListenAndServe(e.listenAddr, mux)
}

func (e *PrometheusExporter) scrape() {
	for key, value := range e.source.Snapshot() {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "llsec_" + flattenKey(key),
			Help: key,
		})
		if err := e.registry.Register(gauge); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.WithError(err).WithField("metric", key).Error("failed to register metric")
				continue
			}
		}
		gauge.Set(float64(value))
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
