// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"github.com/qiaobaojoe/house-file-courier/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "upload",
		Name:      "chunks_total",
		Help:      "Total number of chunks stored",
	})

	ChunkBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "upload",
		Name:      "chunk_bytes_total",
		Help:      "Total bytes of chunk data stored",
	})

	// ChunkErrorsTotal tracks rejected chunks by error code
	ChunkErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "upload",
		Name:      "chunk_errors_total",
		Help:      "Total number of rejected or failed chunk uploads",
	}, []string{"code"}) // code: "validation", "storage", "assembly"

	AssembliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "upload",
		Name:      "assemblies_total",
		Help:      "Total number of file assemblies",
	}, []string{"result"}) // result: "success", "failure"

	AssemblyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "upload",
		Name:      "assembly_duration_seconds",
		Help:      "Time spent assembling files from chunks",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	})
)

func init() {
	debug.Registry().MustRegister(
		ChunksTotal,
		ChunkBytesTotal,
		ChunkErrorsTotal,
		AssembliesTotal,
		AssemblyDuration,
	)
}
