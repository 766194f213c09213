// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package telemetry exposes the Leader's Prometheus metrics. All metrics
// are package-global counters/gauges/histograms registered once in init(), the same
// shape the rate limiter's churn package uses: no unbounded label
// cardinality, safe to scrape from a single process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ppm_leader_reports_uploaded_total",
		Help: "Reports accepted by UploadHandler and enqueued for aggregation",
	})
	ReportsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppm_leader_reports_rejected_total",
		Help: "Reports rejected by UploadHandler, by problem kind",
	}, []string{"kind"})

	PendingQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ppm_leader_pending_queue_depth",
		Help: "Number of reports currently awaiting an aggregate round",
	})

	AggregateRoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppm_leader_aggregate_rounds_total",
		Help: "Aggregate rounds run, by outcome (ok, helper_error, protocol_error)",
	}, []string{"outcome"})
	AggregateRoundReports = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ppm_leader_aggregate_round_reports",
		Help:    "Reports drained per aggregate round",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})
	ProofFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ppm_leader_invalid_proofs_total",
		Help: "Reports dropped for a malformed verification message or an invalid proof at prepare_finish (non-fatal, §4.8 step 4)",
	})

	CollectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppm_leader_collects_total",
		Help: "Collect requests, by outcome",
	}, []string{"outcome"})
	PrivacyBudgetExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ppm_leader_privacy_budget_exceeded_total",
		Help: "Collect requests that hit a bucket already at max_batch_lifetime",
	})

	EndpointLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ppm_leader_endpoint_latency_seconds",
		Help:    "Handler latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(
		ReportsUploaded,
		ReportsRejected,
		PendingQueueDepth,
		AggregateRoundsTotal,
		AggregateRoundReports,
		ProofFailuresTotal,
		CollectsTotal,
		PrivacyBudgetExceededTotal,
		EndpointLatency,
	)
}

// Handler returns the /metrics HTTP handler for wiring into a mux.
func Handler() http.Handler { return promhttp.Handler() }
