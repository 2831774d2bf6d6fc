// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/qiaobaojoe/house-file-courier/pkg/library"
	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
	"github.com/qiaobaojoe/house-file-courier/pkg/upload"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

type progressResponse struct {
	ReceivedChunks []int `json:"receivedChunks"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.upload.Progress(r.Context(), mux.Vars(r)["identifier"])
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, progressResponse{ReceivedChunks: chunks})
}

// parseForm reads a multipart body of at most limit bytes (0 = unlimited).
// It returns a client-facing message on failure.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) (string, bool) {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Sprintf("request exceeds %s limit", humanize.IBytes(uint64(tooLarge.Limit))), false
		}
		logger.Ctx(r.Context()).Debug().Err(err).Msg("invalid multipart body")
		return "invalid multipart form", false
	}
	return "", true
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	if files := r.MultipartForm.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func formInt(r *http.Request, field string) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	return n, nil
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	limit := int64(0)
	if s.maxChunkSize > 0 {
		limit = s.maxChunkSize + formOverhead
	}
	if msg, ok := parseForm(w, r, limit); !ok {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh := formFile(r, "chunk")
	if fh == nil {
		writeError(w, r, http.StatusBadRequest, "no chunk data")
		return
	}
	if s.maxChunkSize > 0 && fh.Size > s.maxChunkSize {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("chunk exceeds %s limit", humanize.IBytes(uint64(s.maxChunkSize))))
		return
	}

	chunkNumber, err := formInt(r, "chunkNumber")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	totalChunks, err := formInt(r, "totalChunks")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	f, err := fh.Open()
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("failed to open chunk part")
		writeError(w, r, http.StatusInternalServerError, "failed to store chunk")
		return
	}
	defer f.Close()

	res, err := s.upload.ReceiveChunk(r.Context(), &upload.ChunkRequest{
		Identifier:  r.FormValue("identifier"),
		Filename:    r.FormValue("filename"),
		ChunkNumber: chunkNumber,
		TotalChunks: totalChunks,
		Body:        f,
	})
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	if res.Complete {
		writeMessage(w, r, "upload complete")
		return
	}
	writeMessage(w, r, "chunk accepted")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseForm(w, r, s.maxUploadSize); !ok {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh := formFile(r, "file")
	if fh == nil {
		writeError(w, r, http.StatusBadRequest, "no file selected")
		return
	}

	f, err := fh.Open()
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("failed to open file part")
		writeError(w, r, http.StatusInternalServerError, "failed to save file")
		return
	}
	defer f.Close()

	sf, err := s.library.Save(r.Context(), fh.Filename, f)
	if err != nil {
		if errors.Is(err, utils.ErrUnsafeName) {
			writeError(w, r, http.StatusBadRequest, "invalid filename")
			return
		}
		logger.Ctx(r.Context()).Error().Err(err).Str("name", fh.Filename).Msg("single-shot upload failed")
		writeError(w, r, http.StatusInternalServerError, "failed to save file")
		return
	}

	logger.Ctx(r.Context()).Info().
		Str("name", sf.Name).
		Str("size", humanize.IBytes(uint64(sf.Size))).
		Msg("file uploaded")
	writeMessage(w, r, "file uploaded")
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.library.List(r.Context())
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("failed to list files")
		writeError(w, r, http.StatusInternalServerError, "failed to list files")
		return
	}
	writeJSON(w, r, http.StatusOK, files)
}

// libraryError answers a failed library operation.
func libraryError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "file not found")
	case errors.Is(err, utils.ErrUnsafeName):
		writeError(w, r, http.StatusBadRequest, "invalid filename")
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("failed to " + action)
		writeError(w, r, http.StatusInternalServerError, "failed to "+action)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Delete(r.Context(), mux.Vars(r)["filename"]); err != nil {
		libraryError(w, r, err, "delete file")
		return
	}
	writeMessage(w, r, "file deleted")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, true)
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, false)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, attachment bool) {
	name := mux.Vars(r)["filename"]
	f, sf, err := s.library.Open(r.Context(), name)
	if err != nil {
		libraryError(w, r, err, "read file")
		return
	}
	defer f.Close()

	if attachment {
		w.Header().Set("Content-Disposition", contentDisposition(sf.Name))
	}
	info, err := f.Stat()
	if err != nil {
		libraryError(w, r, err, "read file")
		return
	}
	http.ServeContent(w, r, sf.Name, info.ModTime(), f)
}

// contentDisposition builds an attachment header that survives non-ASCII names.
func contentDisposition(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, url.PathEscape(name))
}
