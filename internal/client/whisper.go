package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/config"
	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/storage"
)

// ErrTranscriptMissing is returned when the tool exits cleanly but leaves no SRT file.
var ErrTranscriptMissing = errors.New("transcript not produced")

// WhisperClient runs the faster-whisper CLI to produce SRT transcripts.
type WhisperClient struct {
	path   string
	model  string
	runner commandRunner
	logger zerolog.Logger
}

// NewWhisperClient creates a client for the configured executable and model.
func NewWhisperClient(cfg *config.WhisperConfig) *WhisperClient {
	return &WhisperClient{
		path:   cfg.Path,
		model:  cfg.Model,
		runner: &execRunner{},
		logger: logging.WithComponent("whisper"),
	}
}

// Transcribe writes <outputDir>/<stem(input)>.srt and returns its path.
func (c *WhisperClient) Transcribe(ctx context.Context, inputPath, outputDir string) (string, error) {
	args := buildWhisperArgs(inputPath, c.model, outputDir)
	started := time.Now()

	c.logger.Info().Str("input", filepath.Base(inputPath)).Str("model", c.model).Msg("transcription started")

	result, err := c.runner.Run(ctx, c.path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", &CommandError{
			Stage:    "transcribe",
			Command:  c.path,
			Args:     args,
			ExitCode: result.ExitCode,
			Stderr:   tail(result.Stderr, stderrTailBytes),
			Err:      err,
		}
	}

	srtPath := filepath.Join(outputDir, storage.Stem(filepath.Base(inputPath))+".srt")
	if _, err := os.Stat(srtPath); err != nil {
		return "", &CommandError{
			Stage:    "transcribe",
			Command:  c.path,
			Args:     args,
			ExitCode: result.ExitCode,
			Stderr:   tail(result.Stderr, stderrTailBytes),
			Err:      fmt.Errorf("%w: %s", ErrTranscriptMissing, filepath.Base(srtPath)),
		}
	}

	c.logger.Info().
		Str("input", filepath.Base(inputPath)).
		Dur("elapsed", time.Since(started)).
		Msg("transcription finished")
	return srtPath, nil
}

func buildWhisperArgs(inputPath, model, outputDir string) []string {
	return []string{
		inputPath,
		"--model", model,
		"--output_format", "srt",
		"--output_dir", outputDir,
	}
}

// newWhisperClientWithRunner injects a command runner.
func newWhisperClientWithRunner(path, model string, runner commandRunner) *WhisperClient {
	return &WhisperClient{
		path:   path,
		model:  model,
		runner: runner,
		logger: logging.WithComponent("whisper"),
	}
}
