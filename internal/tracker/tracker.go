// Package tracker implements the per-key job lifecycle: duplicate
// submission detection and the Processing -> Completed/Failed -> Absent
// state machine.
package tracker

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/model"
)

var (
	ErrMissingTargetLanguage = errors.New("target language is required when translation is requested")
	ErrUnknownJob            = errors.New("job not found")
	ErrInvalidTransition     = errors.New("invalid job state transition")
)

// Tracker decides what a submission for a key means and records the
// outcome of pipeline runs.
type Tracker struct {
	store  StateStore
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Tracker over store. A nil store gets a fresh MemoryStore.
func New(store StateStore) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		now:    time.Now,
		logger: logging.WithComponent("tracker"),
	}
}

// Submit classifies a submission for key. Exactly one of any number of
// concurrent callers for an Absent key receives DecisionNewJob; that caller
// owns the upload and must either dispatch the pipeline or call Abort.
// Parameters of later submissions are ignored while a record exists.
func (t *Tracker) Submit(key, displayName string, wantsTranslation bool, lang model.Language) (model.Decision, *model.Job, error) {
	if wantsTranslation && lang == "" {
		return "", nil, ErrMissingTargetLanguage
	}
	if !wantsTranslation {
		lang = ""
	}

	for {
		if job, ok := t.store.Get(key); ok {
			return decisionFor(job.State), &job, nil
		}

		job := model.Job{
			Key:              key,
			DisplayName:      displayName,
			State:            model.JobStateProcessing,
			WantsTranslation: wantsTranslation,
			TargetLanguage:   lang,
			RunID:            uuid.NewString(),
			CreatedAt:        t.now().UTC(),
		}
		if t.store.CompareAndSwap(key, model.JobStateAbsent, job) {
			t.logger.Info().
				Str("key", key).
				Str("run_id", job.RunID).
				Bool("translation", wantsTranslation).
				Str("language", string(lang)).
				Msg("job created")
			return model.DecisionNewJob, &job, nil
		}
		// lost the race; re-read the winner's record
	}
}

func decisionFor(state model.JobState) model.Decision {
	switch state {
	case model.JobStateCompleted:
		return model.DecisionReadyForDownload
	case model.JobStateFailed:
		return model.DecisionFailed
	default:
		return model.DecisionInProgress
	}
}

// Complete moves key from Processing to Completed.
func (t *Tracker) Complete(key string) error {
	return t.finish(key, model.JobStateCompleted, "")
}

// Fail moves key from Processing to Failed, recording reason.
func (t *Tracker) Fail(key, reason string) error {
	return t.finish(key, model.JobStateFailed, reason)
}

func (t *Tracker) finish(key string, to model.JobState, reason string) error {
	job, ok := t.store.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, key)
	}
	if !isValidTransition(job.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, to)
	}

	from := job.State
	completedAt := t.now().UTC()
	job.State = to
	job.Error = reason
	job.CompletedAt = &completedAt
	if !t.store.CompareAndSwap(key, from, job) {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, key)
	}

	event := t.logger.Info()
	if to == model.JobStateFailed {
		event = t.logger.Warn().Str("reason", reason)
	}
	event.Str("key", key).Str("run_id", job.RunID).Str("state", string(to)).Msg("job finished")
	return nil
}

// Release returns a terminal key to Absent.
func (t *Tracker) Release(key string) error {
	job, ok := t.store.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, key)
	}
	if !job.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, model.JobStateAbsent)
	}
	if !t.store.CompareAndDelete(key, job.State) {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, key)
	}
	t.logger.Debug().Str("key", key).Str("run_id", job.RunID).Msg("job released")
	return nil
}

// Abort drops a Processing record whose upload could not be persisted.
func (t *Tracker) Abort(key string) error {
	if !t.store.CompareAndDelete(key, model.JobStateProcessing) {
		return fmt.Errorf("%w: %s is not processing", ErrInvalidTransition, key)
	}
	t.logger.Warn().Str("key", key).Msg("job aborted")
	return nil
}

// Get returns the record for key, if any.
func (t *Tracker) Get(key string) (model.Job, bool) {
	return t.store.Get(key)
}

// Snapshot returns all records ordered by creation time.
func (t *Tracker) Snapshot() []model.Job {
	jobs := make([]model.Job, 0, t.store.Len())
	t.store.Range(func(job model.Job) bool {
		jobs = append(jobs, job)
		return true
	})
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].Key < jobs[j].Key
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to model.JobState) bool {
	switch from {
	case model.JobStateAbsent:
		return to == model.JobStateProcessing
	case model.JobStateProcessing:
		return to == model.JobStateCompleted || to == model.JobStateFailed || to == model.JobStateAbsent
	case model.JobStateCompleted, model.JobStateFailed:
		return to == model.JobStateAbsent
	default:
		return false
	}
}
