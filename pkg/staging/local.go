// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"
)

// Local keeps chunks on the local filesystem as <root>/<identifier>/<chunkNumber>.
type Local struct {
	root    string
	minFree *utils.FreeSpace
}

// LocalConfig configures a Local staging area.
type LocalConfig struct {
	Root string

	// MinFree rejects chunk writes once the staging filesystem drops below it.
	// Nil disables the check.
	MinFree *utils.FreeSpace
}

// NewLocal creates a local staging area, creating the root if needed.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Root == "" {
		return nil, errors.New("staging root is required")
	}
	if err := utils.EnsureDir(cfg.Root); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Local{root: cfg.Root, minFree: cfg.MinFree}, nil
}

// Root returns the staging root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) dir(identifier string) (string, error) {
	if err := utils.CheckIdentifier(identifier); err != nil {
		return "", fmt.Errorf("identifier %q: %w", identifier, err)
	}
	return filepath.Join(l.root, identifier), nil
}

func (l *Local) WriteChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (int64, error) {
	p, err := l.StageChunk(ctx, identifier, chunkNumber, r)
	if err != nil {
		return 0, err
	}
	if err := p.Commit(); err != nil {
		return 0, err
	}
	return p.Size(), nil
}

// StageChunk writes the chunk to a synced temp file inside the identifier's
// directory. Commit renames it into place, so a concurrent OpenChunk never
// reads a torn chunk.
func (l *Local) StageChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (Pending, error) {
	dir, err := l.dir(identifier)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckFreeSpace(l.root, l.minFree); err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+chunkName(chunkNumber)+".*")
	if err != nil {
		return nil, fmt.Errorf("create chunk file: %w", err)
	}
	tmpName := tmp.Name()

	buf := utils.CopyBufferGet()
	n, err := io.CopyBuffer(tmp, readerWithContext(ctx, r), *buf)
	utils.CopyBufferPut(buf)
	if err == nil {
		err = utils.Fdatasync(tmp)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("write chunk: %w", err)
	}

	return &localPending{
		tmp:        tmpName,
		dst:        filepath.Join(dir, chunkName(chunkNumber)),
		identifier: identifier,
		chunk:      chunkNumber,
		size:       n,
	}, nil
}

type localPending struct {
	tmp, dst   string
	identifier string
	chunk      int
	size       int64
}

func (p *localPending) Size() int64 {
	return p.size
}

func (p *localPending) Commit() error {
	err := os.Rename(p.tmp, p.dst)
	if err == nil {
		return nil
	}
	os.Remove(p.tmp)
	// Remove took the directory, temp file included.
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s/%d", ErrChunkNotFound, p.identifier, p.chunk)
	}
	return fmt.Errorf("commit chunk: %w", err)
}

func (p *localPending) Discard() error {
	if err := os.Remove(p.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) OpenChunk(ctx context.Context, identifier string, chunkNumber int) (io.ReadCloser, error) {
	dir, err := l.dir(identifier)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, chunkName(chunkNumber)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%d", ErrChunkNotFound, identifier, chunkNumber)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Local) HasChunk(ctx context.Context, identifier string, chunkNumber int) (bool, error) {
	dir, err := l.dir(identifier)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, chunkName(chunkNumber)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Remove(ctx context.Context, identifier string) error {
	dir, err := l.dir(identifier)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// ctxReader stops a long copy once the request is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
