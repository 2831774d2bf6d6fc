// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"github.com/qiaobaojoe/house-file-courier/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsEmittedTotal tracks events accepted by the emitter
	EventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "emitted_total",
		Help:      "Total number of library events emitted",
	}, []string{"event"}) // event: "fileUploaded", "fileDeleted"

	// EventsDroppedTotal tracks events dropped before delivery
	EventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Total number of library events dropped",
	}, []string{"reason"}) // reason: "queue_full", "closed", "marshal"

	EventsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Total number of events delivered to publishers",
	}, []string{"publisher"})

	EventsDeliveryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "delivery_errors_total",
		Help:      "Total number of event delivery errors",
	}, []string{"publisher"})

	EventsDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "delivery_duration_seconds",
		Help:      "Time spent delivering events to publishers",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"publisher"})

	// EventsQueueDepth tracks events waiting for fan-out
	EventsQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Current number of events pending delivery",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "courier",
		Subsystem: "notify",
		Name:      "websocket_clients",
		Help:      "Currently connected websocket listeners",
	})
)

func init() {
	debug.Registry().MustRegister(
		EventsEmittedTotal,
		EventsDroppedTotal,
		EventsDeliveredTotal,
		EventsDeliveryErrorsTotal,
		EventsDeliveryDuration,
		EventsQueueDepth,
		WebsocketClients,
	)
}
