// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
	"github.com/qiaobaojoe/house-file-courier/pkg/upload"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Msg("failed to write response")
	}
}

func writeMessage(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusOK, messageResponse{Message: msg})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeUploadError answers with the error's client message only; internals
// were already logged by the service.
func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var uerr *upload.Error
	if errors.As(err, &uerr) {
		writeError(w, r, uerr.HTTPStatus(), uerr.Message)
		return
	}
	logger.Ctx(r.Context()).Error().Err(err).Msg("unexpected upload error")
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
