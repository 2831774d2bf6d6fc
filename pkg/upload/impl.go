// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/library"
	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
	"github.com/qiaobaojoe/house-file-courier/pkg/progress"
	"github.com/qiaobaojoe/house-file-courier/pkg/staging"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Config holds configuration for the upload service
type Config struct {
	Staging  staging.Area
	Progress progress.Store
	Library  *library.Library
}

// serviceImpl implements the Service interface.
//
// Per identifier, chunk blob writes hold the read side of a striped lock so
// distinct chunks stream in parallel, while record, completion check,
// assembly and cleanup hold the write side. Only one request can therefore
// observe a complete session and assemble it.
type serviceImpl struct {
	staging  staging.Area
	progress progress.Store
	library  *library.Library
	locks    *utils.KeyedMutex
}

// NewService creates a new upload service
func NewService(cfg Config) (Service, error) {
	if cfg.Staging == nil {
		return nil, errors.New("Staging is required")
	}
	if cfg.Progress == nil {
		return nil, errors.New("Progress is required")
	}
	if cfg.Library == nil {
		return nil, errors.New("Library is required")
	}

	return &serviceImpl{
		staging:  cfg.Staging,
		progress: cfg.Progress,
		library:  cfg.Library,
		locks:    utils.NewKeyedMutex(),
	}, nil
}

func validateRequest(req *ChunkRequest) *Error {
	if err := utils.CheckIdentifier(req.Identifier); err != nil {
		return validationError("invalid identifier", err)
	}
	if err := library.CheckName(req.Filename); err != nil {
		return validationError("invalid filename", err)
	}
	if req.TotalChunks < 1 {
		return validationError("totalChunks must be a positive integer", nil)
	}
	if req.ChunkNumber < 1 || req.ChunkNumber > req.TotalChunks {
		return validationError(fmt.Sprintf("chunkNumber must be between 1 and %d", req.TotalChunks), nil)
	}
	if req.Body == nil {
		return validationError("missing chunk data", nil)
	}
	return nil
}

func (s *serviceImpl) ReceiveChunk(ctx context.Context, req *ChunkRequest) (*ChunkResult, error) {
	if verr := validateRequest(req); verr != nil {
		ChunkErrorsTotal.WithLabelValues(verr.Code.String()).Inc()
		return nil, verr
	}

	log := logger.Ctx(ctx).With().
		Str("identifier", req.Identifier).
		Int("chunk", req.ChunkNumber).
		Int("total", req.TotalChunks).
		Logger()

	res, err := s.receiveChunk(ctx, req, &log)
	if err != nil {
		code := CodeOf(err)
		ChunkErrorsTotal.WithLabelValues(code.String()).Inc()
		if code == ErrCodeValidation {
			log.Debug().Err(err).Msg("chunk rejected")
		} else {
			log.Error().Err(err).Msg("chunk upload failed")
		}
	}
	return res, err
}

func (s *serviceImpl) receiveChunk(ctx context.Context, req *ChunkRequest, log *zerolog.Logger) (*ChunkResult, error) {
	pending, err := s.stageBlob(ctx, req)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.Identifier)
	defer unlock()

	// Recheck: the session may have been started with another total while
	// we were between locks. The staged bytes must not replace a blob the
	// session already recorded.
	if verr := s.checkDeclaredTotal(ctx, req); verr != nil {
		if err := pending.Discard(); err != nil {
			log.Warn().Err(err).Msg("failed to discard staged chunk")
		}
		return nil, verr
	}

	if err := pending.Commit(); err != nil {
		// The staging area is gone only if a concurrent request assembled
		// the session and cleaned up while we waited for the lock.
		if errors.Is(err, staging.ErrChunkNotFound) {
			log.Debug().Msg("session already assembled by a concurrent request")
			return &ChunkResult{Complete: true, TotalChunks: req.TotalChunks}, nil
		}
		return nil, storageError("failed to store chunk", err)
	}
	ChunksTotal.Inc()
	ChunkBytesTotal.Add(float64(pending.Size()))

	rec, err := s.progress.RecordChunk(ctx, progress.Session{
		Identifier:  req.Identifier,
		Filename:    req.Filename,
		TotalChunks: req.TotalChunks,
	}, req.ChunkNumber)
	if err != nil {
		return nil, storageError("failed to record chunk", err)
	}

	if !isComplete(rec) {
		log.Debug().
			Int("received", len(rec.ReceivedChunks)).
			Msg("chunk accepted")
		return &ChunkResult{ReceivedChunks: len(rec.ReceivedChunks), TotalChunks: rec.TotalChunks}, nil
	}

	sf, err := s.assemble(context.WithoutCancel(ctx), rec, log)
	if err != nil {
		return nil, err
	}
	return &ChunkResult{Complete: true, TotalChunks: rec.TotalChunks, File: sf}, nil
}

// stageBlob reads the chunk into staging under the identifier's read lock.
// The bytes stay invisible until the caller commits them.
func (s *serviceImpl) stageBlob(ctx context.Context, req *ChunkRequest) (staging.Pending, error) {
	unlock := s.locks.RLock(req.Identifier)
	defer unlock()

	// No recording happens under a read lock, so this check is stable
	// until we release it.
	if verr := s.checkDeclaredTotal(ctx, req); verr != nil {
		return nil, verr
	}

	pending, err := s.staging.StageChunk(ctx, req.Identifier, req.ChunkNumber, req.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, validationError(fmt.Sprintf("chunk exceeds %s limit", humanize.IBytes(uint64(tooLarge.Limit))), err)
		}
		if errors.Is(err, utils.ErrLowDiskSpace) {
			return nil, storageError("insufficient storage space", err)
		}
		return nil, storageError("failed to store chunk", err)
	}
	return pending, nil
}

// checkDeclaredTotal rejects a chunk whose totalChunks disagrees with the
// value latched by the session's first chunk.
func (s *serviceImpl) checkDeclaredTotal(ctx context.Context, req *ChunkRequest) error {
	rec, err := s.progress.Get(ctx, req.Identifier)
	if err != nil {
		return storageError("failed to read upload progress", err)
	}
	if rec.TotalChunks != 0 && rec.TotalChunks != req.TotalChunks {
		return validationError(
			fmt.Sprintf("totalChunks %d does not match %d declared for this upload", req.TotalChunks, rec.TotalChunks),
			nil,
		)
	}
	return nil
}

// isComplete is the completion detector. Received chunks are distinct and
// within 1..TotalChunks, so the count alone decides.
func isComplete(rec *progress.Record) bool {
	return rec.Complete()
}

// assemble concatenates the session's chunks in index order into the library,
// then removes staging, then the progress record, then announces the file.
// On failure nothing is visible in the library and staging is kept, so any
// later chunk of the session retries.
func (s *serviceImpl) assemble(ctx context.Context, rec *progress.Record, log *zerolog.Logger) (*library.StoredFile, error) {
	start := time.Now()

	sf, err := s.concatenate(ctx, rec)
	if err != nil {
		AssembliesTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	AssembliesTotal.WithLabelValues("success").Inc()
	AssemblyDuration.Observe(time.Since(start).Seconds())

	if err := s.staging.Remove(ctx, rec.Identifier); err != nil {
		log.Warn().Err(err).Msg("failed to remove staged chunks")
	}
	if err := s.progress.Delete(ctx, rec.Identifier); err != nil {
		log.Warn().Err(err).Msg("failed to delete upload progress")
	}

	log.Info().
		Str("name", sf.Name).
		Str("size", humanize.IBytes(uint64(sf.Size))).
		Str("sha256", sf.SHA256).
		Dur("took", time.Since(start)).
		Msg("upload assembled")

	s.library.Announce(ctx, sf)
	return sf, nil
}

func (s *serviceImpl) concatenate(ctx context.Context, rec *progress.Record) (*library.StoredFile, error) {
	w, err := s.library.Create(ctx, rec.Filename)
	if err != nil {
		return nil, assemblyError("failed to create file", err)
	}

	buf := utils.CopyBufferGet()
	defer utils.CopyBufferPut(buf)

	for i := 1; i <= rec.TotalChunks; i++ {
		if err := s.appendChunk(ctx, w, rec.Identifier, i, *buf); err != nil {
			w.Abort()
			return nil, assemblyError("failed to assemble file", err)
		}
	}

	sf, err := w.Commit()
	if err != nil {
		return nil, assemblyError("failed to assemble file", err)
	}
	return sf, nil
}

func (s *serviceImpl) appendChunk(ctx context.Context, w io.Writer, identifier string, n int, buf []byte) error {
	rc, err := s.staging.OpenChunk(ctx, identifier, n)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", n, err)
	}
	defer rc.Close()

	if _, err := io.CopyBuffer(w, rc, buf); err != nil {
		return fmt.Errorf("chunk %d: %w", n, err)
	}
	return nil
}

func (s *serviceImpl) Progress(ctx context.Context, identifier string) ([]int, error) {
	if err := utils.CheckIdentifier(identifier); err != nil {
		return nil, validationError("invalid identifier", err)
	}
	rec, err := s.progress.Get(ctx, identifier)
	if err != nil {
		return nil, storageError("failed to read upload progress", err)
	}
	if rec.ReceivedChunks == nil {
		return []int{}, nil
	}
	return rec.ReceivedChunks, nil
}
