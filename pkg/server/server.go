// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the upload engine and the file library over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/qiaobaojoe/house-file-courier/pkg/library"
	"github.com/qiaobaojoe/house-file-courier/pkg/upload"

	"github.com/gorilla/mux"
)

// maxMemory is how much of a multipart body is kept in memory before the
// rest is spooled to temp files.
const maxMemory = 8 << 20

// formOverhead is allowed on top of MaxChunkSize for the non-file fields.
const formOverhead = 64 << 10

// Config holds the dependencies of the HTTP server.
type Config struct {
	Upload  upload.Service
	Library *library.Library

	// Listeners is the websocket endpoint served at /ws. Optional.
	Listeners http.Handler

	// PublicDir is served at / when set.
	PublicDir string

	// MaxChunkSize caps a chunk upload's file part. Zero means no limit.
	MaxChunkSize int64

	// MaxUploadSize caps a single-shot upload. Zero means no limit.
	MaxUploadSize int64

	// RateLimit is the sustained API requests per second allowed per client IP.
	// Zero disables limiting. RateBurst defaults to RateLimit.
	RateLimit float64
	RateBurst int
}

// Server routes HTTP requests to the upload service and file library.
type Server struct {
	upload        upload.Service
	library       *library.Library
	maxChunkSize  int64
	maxUploadSize int64
	handler       http.Handler
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Upload == nil {
		return nil, errors.New("Upload is required")
	}
	if cfg.Library == nil {
		return nil, errors.New("Library is required")
	}

	s := &Server{
		upload:        cfg.Upload,
		library:       cfg.Library,
		maxChunkSize:  cfg.MaxChunkSize,
		maxUploadSize: cfg.MaxUploadSize,
	}

	r := mux.NewRouter()
	r.Use(accessLog)

	api := r.PathPrefix("/api").Subrouter()
	if limiter := newClientLimiter(cfg.RateLimit, cfg.RateBurst); limiter != nil {
		api.Use(limiter.middleware)
	}
	api.HandleFunc("/upload/progress/{identifier}", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/upload/chunk", s.handleChunk).Methods(http.MethodPost)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/files", s.handleListFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{filename}", s.handleDeleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/download/{filename}", s.handleDownload).Methods(http.MethodGet)

	r.HandleFunc("/uploads/{filename}", s.handleServeFile).Methods(http.MethodGet, http.MethodHead)

	if cfg.Listeners != nil {
		r.Handle("/ws", cfg.Listeners)
	}
	if cfg.PublicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.PublicDir))).Methods(http.MethodGet, http.MethodHead)
	}

	s.handler = recoverPanics(withRequestID(cors(r)))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
