// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package debug serves the operational endpoints: Prometheus metrics, liveness,
// readiness and pprof. Packages register their collectors on Registry() from init.
package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	checksMu sync.RWMutex
	checks   = make(map[string]func() error)

	globalRegistry = prometheus.NewRegistry()
)

func init() {
	globalRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// AddReadyCheck registers a named readiness probe. /ready fails while any
// probe returns an error.
func AddReadyCheck(name string, check func() error) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = check
}

// FailingChecks returns the names of readiness probes that currently fail.
func FailingChecks() []string {
	checksMu.RLock()
	defer checksMu.RUnlock()

	var failing []string
	for name, check := range checks {
		if err := check(); err != nil {
			failing = append(failing, name+": "+err.Error())
		}
	}
	sort.Strings(failing)
	return failing
}

func IsReady() bool {
	return ready.Load() && len(FailingChecks()) == 0
}

// Registry returns the Prometheus registry for registering custom metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer exposes the registry for tests that assert on metric values.
func Gatherer() prometheus.Gatherer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(globalRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		failing := FailingChecks()
		if ready.Load() && len(failing) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"ready":  ready.Load(),
			"checks": failing,
		})
	})

	return mux
}
