package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/subgen/api/internal/archive"
	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/metrics"
	"github.com/subgen/api/internal/model"
	"github.com/subgen/api/internal/storage"
	"github.com/subgen/api/internal/tracker"
	"github.com/subgen/api/internal/worker"
)

var (
	ErrNotFound          = errors.New("no job for this file")
	ErrStillProcessing   = errors.New("job is still processing")
	ErrInconsistentState = errors.New("job completed but its artifacts are missing")
	ErrShuttingDown      = errors.New("service is shutting down")

	// errStale means the job observed by the caller was delivered or
	// reclaimed by someone else before this caller could act on it.
	errStale = errors.New("job record changed")
)

// JobFailedError carries the recorded reason of a failed job.
type JobFailedError struct {
	Key    string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.Key, e.Reason)
}

// Processor runs the pipeline for a job.
type Processor interface {
	Process(ctx context.Context, job model.Job) error
}

// Archive is a packaged download.
type Archive struct {
	FileName string
	Data     []byte
}

// SubmitResult is the outcome of an upload submission.
type SubmitResult struct {
	Decision model.Decision
	Job      model.Job
	Task     *worker.Task // NewJob only
	Archive  *Archive     // ReadyForDownload only
}

// SubtitleService coordinates the tracker, storage and pipeline.
type SubtitleService struct {
	tracker  *tracker.Tracker
	store    *storage.Store
	pool     *worker.Pool
	pipeline Processor

	deliveries singleflight.Group
	logger     zerolog.Logger
}

func NewSubtitleService(t *tracker.Tracker, store *storage.Store, pool *worker.Pool, pipeline Processor) *SubtitleService {
	return &SubtitleService{
		tracker:  t,
		store:    store,
		pool:     pool,
		pipeline: pipeline,
		logger:   logging.WithComponent("service"),
	}
}

// Submit handles an upload of displayName. body is read only when the
// submission starts a new job; ctx bounds that read.
func (s *SubtitleService) Submit(ctx context.Context, displayName string, wantsTranslation bool, lang model.Language, body io.Reader) (*SubmitResult, error) {
	key := storage.Sanitize(displayName)
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	// A stale terminal record means another request finished it between
	// our decision and delivery; the key is Absent again, so decide anew.
	for attempt := 0; attempt < 3; attempt++ {
		decision, job, err := s.tracker.Submit(key, displayName, wantsTranslation, lang)
		if err != nil {
			return nil, err
		}
		metrics.RecordSubmission(string(decision))

		switch decision {
		case model.DecisionNewJob:
			return s.start(ctx, *job, body)
		case model.DecisionInProgress:
			return &SubmitResult{Decision: decision, Job: *job}, nil
		case model.DecisionReadyForDownload, model.DecisionFailed:
			arc, err := s.finish(*job)
			if errors.Is(err, errStale) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return &SubmitResult{Decision: decision, Job: *job, Archive: arc}, nil
		}
	}
	return nil, fmt.Errorf("submit %s: %w", key, errStale)
}

func (s *SubtitleService) start(ctx context.Context, job model.Job, body io.Reader) (*SubmitResult, error) {
	log := s.logger.With().Str("key", job.Key).Str("run_id", job.RunID).Logger()

	size, err := s.store.SaveUpload(ctx, job.Key, body)
	if err != nil {
		s.abort(job.Key)
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	log.Info().Int64("bytes", size).Msg("upload stored")

	task, err := s.pool.Go(job.Key, func(ctx context.Context) error {
		return s.pipeline.Process(ctx, job)
	})
	if err != nil {
		// Files go before the record so a new submitter's upload is never removed.
		s.store.Reclaim(job.Key)
		s.abort(job.Key)
		if errors.Is(err, worker.ErrPoolClosed) {
			return nil, ErrShuttingDown
		}
		return nil, err
	}

	return &SubmitResult{Decision: model.DecisionNewJob, Job: job, Task: task}, nil
}

func (s *SubtitleService) abort(key string) {
	if err := s.tracker.Abort(key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to abort job")
	}
}

// Download delivers the archive of a completed job identified by name.
func (s *SubtitleService) Download(name string) (*Archive, error) {
	job, err := s.Status(name)
	if err != nil {
		return nil, err
	}

	switch job.State {
	case model.JobStateProcessing:
		return nil, ErrStillProcessing
	case model.JobStateCompleted, model.JobStateFailed:
		arc, err := s.finish(job)
		if errors.Is(err, errStale) {
			return nil, ErrNotFound
		}
		return arc, err
	default:
		return nil, ErrNotFound
	}
}

// Status returns the record for name without side effects.
func (s *SubtitleService) Status(name string) (model.Job, error) {
	key := storage.Sanitize(name)
	if err := storage.ValidateKey(key); err != nil {
		return model.Job{}, err
	}
	job, ok := s.tracker.Get(key)
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

// Jobs lists all tracked jobs.
func (s *SubtitleService) Jobs() []model.Job {
	return s.tracker.Snapshot()
}

// finish consumes a terminal job: a completed job is packaged, a failed one
// is reported. Either way its artifacts are reclaimed and the key released.
// Concurrent callers for the same key share one result.
func (s *SubtitleService) finish(job model.Job) (*Archive, error) {
	v, err, _ := s.deliveries.Do(job.Key, func() (interface{}, error) {
		current, ok := s.tracker.Get(job.Key)
		if !ok || current.RunID != job.RunID || !current.Terminal() {
			return nil, errStale
		}

		log := s.logger.With().Str("key", current.Key).Str("run_id", current.RunID).Logger()
		defer s.reclaim(current.Key)

		if current.State == model.JobStateFailed {
			log.Warn().Str("reason", current.Error).Msg("reporting failed job")
			return nil, &JobFailedError{Key: current.Key, Reason: current.Error}
		}

		data, err := archive.Build(
			current.DisplayName,
			s.store.TranscriptPath(current.Key),
			s.store.TranslatedPath(current.Key),
			current.WantsTranslation,
		)
		if err != nil {
			log.Error().Err(err).Msg("failed to build archive")
			if errors.Is(err, archive.ErrMissingArtifact) {
				return nil, fmt.Errorf("%w: %v", ErrInconsistentState, err)
			}
			return nil, err
		}

		log.Info().Int("bytes", len(data)).Msg("archive delivered")
		return &Archive{FileName: archive.FileName(current.DisplayName), Data: data}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Archive), nil
}

func (s *SubtitleService) reclaim(key string) {
	s.store.Reclaim(key)
	if err := s.tracker.Release(key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to release job")
	}
}
