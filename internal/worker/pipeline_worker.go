package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/metrics"
	"github.com/subgen/api/internal/model"
)

// Transcriber produces an SRT transcript for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath, outputDir string) (string, error)
}

// FileTranslator produces a translated copy of an SRT transcript.
type FileTranslator interface {
	TranslateFile(ctx context.Context, srtPath string, lang model.Language) (string, error)
}

// JobRecorder records the outcome of a run.
type JobRecorder interface {
	Complete(key string) error
	Fail(key, reason string) error
}

// ArtifactStore locates a job's files and takes ownership of the
// transcript the tool produces.
type ArtifactStore interface {
	UploadPath(key string) string
	PrepareWorkDir(key string) (string, error)
	AdoptTranscript(key, produced string) (string, error)
	DiscardWorkDir(key string)
}

// PipelineOptions bound the work done by the pipeline.
type PipelineOptions struct {
	Timeout              time.Duration
	ToolConcurrency      int
	TranslateConcurrency int
}

// PipelineWorker runs transcription then optional translation for one job.
type PipelineWorker struct {
	transcriber Transcriber
	translator  FileTranslator
	jobs        JobRecorder
	artifacts   ArtifactStore

	timeout      time.Duration
	toolSem      *semaphore.Weighted
	translateSem *semaphore.Weighted

	logger zerolog.Logger
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(transcriber Transcriber, translator FileTranslator, jobs JobRecorder, artifacts ArtifactStore, opts PipelineOptions) *PipelineWorker {
	if opts.ToolConcurrency < 1 {
		opts.ToolConcurrency = 1
	}
	if opts.TranslateConcurrency < 1 {
		opts.TranslateConcurrency = 1
	}
	return &PipelineWorker{
		transcriber:  transcriber,
		translator:   translator,
		jobs:         jobs,
		artifacts:    artifacts,
		timeout:      opts.Timeout,
		toolSem:      semaphore.NewWeighted(int64(opts.ToolConcurrency)),
		translateSem: semaphore.NewWeighted(int64(opts.TranslateConcurrency)),
		logger:       logging.WithComponent("pipeline"),
	}
}

// Process runs the pipeline for job and moves it to Completed or Failed.
// The returned error is the run's failure, already recorded on the job.
func (w *PipelineWorker) Process(ctx context.Context, job model.Job) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	log := w.logger.With().Str("key", job.Key).Str("run_id", job.RunID).Logger()
	started := time.Now()
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	log.Info().Bool("translation", job.WantsTranslation).Msg("pipeline started")

	srtPath, err := w.transcribe(ctx, job)
	if err != nil {
		return w.failJob(log, job, "transcription failed", err, started)
	}

	if job.WantsTranslation {
		if _, err := w.translate(ctx, srtPath, job.TargetLanguage); err != nil {
			return w.failJob(log, job, "translation failed", err, started)
		}
	}

	if err := w.jobs.Complete(job.Key); err != nil {
		log.Error().Err(err).Msg("failed to mark job as completed")
		return err
	}

	metrics.RecordPipelineRun("completed", time.Since(started).Seconds())
	log.Info().Dur("elapsed", time.Since(started)).Msg("pipeline completed")
	return nil
}

func (w *PipelineWorker) transcribe(ctx context.Context, job model.Job) (string, error) {
	if err := w.toolSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer w.toolSem.Release(1)

	workDir, err := w.artifacts.PrepareWorkDir(job.Key)
	if err != nil {
		return "", err
	}
	produced, err := w.transcriber.Transcribe(ctx, w.artifacts.UploadPath(job.Key), workDir)
	if err != nil {
		w.artifacts.DiscardWorkDir(job.Key)
		return "", err
	}
	return w.artifacts.AdoptTranscript(job.Key, produced)
}

func (w *PipelineWorker) translate(ctx context.Context, srtPath string, lang model.Language) (string, error) {
	if err := w.translateSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer w.translateSem.Release(1)

	return w.translator.TranslateFile(ctx, srtPath, lang)
}

func (w *PipelineWorker) failJob(log zerolog.Logger, job model.Job, stage string, err error, started time.Time) error {
	outcome := "failed"
	reason := fmt.Sprintf("%s: %v", stage, err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
		reason = fmt.Sprintf("%s: timed out after %s", stage, w.timeout)
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
		reason = fmt.Sprintf("%s: canceled", stage)
	}

	log.Error().Err(err).Str("outcome", outcome).Msg(stage)
	metrics.RecordPipelineRun(outcome, time.Since(started).Seconds())

	if ferr := w.jobs.Fail(job.Key, reason); ferr != nil {
		log.Error().Err(ferr).Msg("failed to mark job as failed")
	}
	return err
}
