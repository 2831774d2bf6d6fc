// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/qiaobaojoe/house-file-courier/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route and status",
	}, []string{"method", "route", "code"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of API requests rejected by the per-client rate limit",
	})
)

func init() {
	debug.Registry().MustRegister(RequestsTotal, RequestDuration, RateLimitedTotal)
}
