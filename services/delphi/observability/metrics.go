// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the delphi service.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"
const delphiSubsystem = "delphi"

// Metrics holds all Prometheus metrics for the aggregation endpoints.
// Initialize once at startup via InitMetrics; registering twice panics.
type Metrics struct {
	// RequestsTotal counts aggregation requests by endpoint and status.
	// Labels: endpoint (topics, proximity, hierarchy, stats, reports,
	// moderate), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// StoreErrorsTotal counts store failures by table and kind.
	// Labels: table, kind (not_provisioned, unavailable)
	StoreErrorsTotal *prometheus.CounterVec

	// FetchPages measures how many pages a single fetch walked.
	// Labels: table
	FetchPages *prometheus.HistogramVec

	// RecordsFetched counts records returned by the store.
	// Labels: table
	RecordsFetched *prometheus.CounterVec

	// RecordsSkipped counts records dropped at the parse boundary.
	// Labels: table
	RecordsSkipped *prometheus.CounterVec

	// EventSubscribers tracks connected moderation-event websockets.
	EventSubscribers prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *Metrics

// InitMetrics creates and registers all delphi metrics on the default
// registry. Call once at application startup.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "requests_total",
				Help:      "Total aggregation requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		StoreErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "store_errors_total",
				Help:      "Total store failures by table and error kind",
			},
			[]string{"table", "kind"},
		),

		FetchPages: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "fetch_pages",
				Help:      "Pages walked per record fetch",
				Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
			},
			[]string{"table"},
		),

		RecordsFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "records_fetched_total",
				Help:      "Total records returned by store queries",
			},
			[]string{"table"},
		),

		RecordsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "records_skipped_total",
				Help:      "Total records dropped at the parse boundary",
			},
			[]string{"table"},
		),

		EventSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: delphiSubsystem,
				Name:      "event_subscribers",
				Help:      "Connected moderation event websocket clients",
			},
		),
	}
	return DefaultMetrics
}

// RecordRequest records a completed aggregation request.
func (m *Metrics) RecordRequest(endpoint string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordStoreError records a store failure.
func (m *Metrics) RecordStoreError(table, kind string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(table, kind).Inc()
}

// RecordFetch records the page and record counts of one fetch.
func (m *Metrics) RecordFetch(table string, pages, records int) {
	if m == nil {
		return
	}
	m.FetchPages.WithLabelValues(table).Observe(float64(pages))
	m.RecordsFetched.WithLabelValues(table).Add(float64(records))
}

// RecordSkipped records records dropped during parsing.
func (m *Metrics) RecordSkipped(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RecordsSkipped.WithLabelValues(table).Add(float64(n))
}

// SubscriberConnected increments the websocket subscriber gauge.
func (m *Metrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.EventSubscribers.Inc()
}

// SubscriberDisconnected decrements the websocket subscriber gauge.
func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.EventSubscribers.Dec()
}
