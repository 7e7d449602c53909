// Package storage owns the flat storage root: key sanitisation, artifact
// paths, atomic upload persistence and cleanup.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/metrics"
)

// Store addresses artifacts under a single directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// New creates the storage root if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{
		dir:    abs,
		logger: logging.WithComponent("storage"),
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// UploadPath is where the raw upload for key is stored.
func (s *Store) UploadPath(key string) string {
	return filepath.Join(s.dir, key)
}

// Artifact names carry a '-', which Sanitize never leaves in a key, so no
// upload can land on another job's transcript and no two keys share one.
const (
	transcriptSuffix = "-transcript.srt"
	translatedSuffix = "-translated.srt"
	workDirSuffix    = "-work"
)

// TranscriptPath is the transcript owned by key.
func (s *Store) TranscriptPath(key string) string {
	return filepath.Join(s.dir, key+transcriptSuffix)
}

// TranslatedPath is the translated transcript for key.
func (s *Store) TranslatedPath(key string) string {
	return filepath.Join(s.dir, key+translatedSuffix)
}

// WorkDir is the scratch directory the transcription tool writes into.
func (s *Store) WorkDir(key string) string {
	return filepath.Join(s.dir, key+workDirSuffix)
}

// TranslatedPathFor derives the translated transcript path from a transcript path.
func TranslatedPathFor(transcriptPath string) string {
	dir, base := filepath.Split(transcriptPath)
	if strings.HasSuffix(base, transcriptSuffix) {
		return filepath.Join(dir, strings.TrimSuffix(base, transcriptSuffix)+translatedSuffix)
	}
	return filepath.Join(dir, Stem(base)+translatedSuffix)
}

// PrepareWorkDir returns an empty scratch directory for key.
func (s *Store) PrepareWorkDir(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	dir := s.WorkDir(key)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("reset work dir: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// AdoptTranscript moves a transcript produced in the work dir to the
// transcript path of key and removes the work dir.
func (s *Store) AdoptTranscript(key, produced string) (string, error) {
	dest := s.TranscriptPath(key)
	if err := os.Rename(produced, dest); err != nil {
		return "", fmt.Errorf("adopt transcript: %w", err)
	}
	s.DiscardWorkDir(key)
	return dest, nil
}

// DiscardWorkDir removes the scratch directory of key, if any.
func (s *Store) DiscardWorkDir(key string) {
	if err := os.RemoveAll(s.WorkDir(key)); err != nil {
		metrics.CleanupErrors.Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to remove work dir")
	}
}

// SaveUpload streams r to the upload path of key. Readers never observe a
// partially written upload. A cancelled ctx stops the copy and leaves
// nothing behind.
func (s *Store) SaveUpload(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	pf, err := renameio.NewPendingFile(s.UploadPath(key), renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("create pending upload: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	n, err := io.Copy(pf, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return n, fmt.Errorf("write upload: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("commit upload: %w", err)
	}
	return n, nil
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
