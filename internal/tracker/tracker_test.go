package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgen/api/internal/model"
)

func TestSubmitNewThenInProgress(t *testing.T) {
	tr := New(nil)

	decision, job, err := tr.Submit("My_Clip.mp4", "My Clip.mp4", true, model.LanguageSpanish)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNewJob, decision)
	assert.Equal(t, model.JobStateProcessing, job.State)
	assert.Equal(t, "My Clip.mp4", job.DisplayName)
	assert.NotEmpty(t, job.RunID)

	decision, again, err := tr.Submit("My_Clip.mp4", "My Clip.mp4", false, "")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionInProgress, decision)
	assert.Equal(t, job.RunID, again.RunID)
	assert.True(t, again.WantsTranslation, "original parameters are immutable")
	assert.Equal(t, model.LanguageSpanish, again.TargetLanguage)
}

func TestSubmitMissingLanguageCreatesNothing(t *testing.T) {
	tr := New(nil)

	decision, job, err := tr.Submit("clip.mp4", "clip.mp4", true, "")
	require.ErrorIs(t, err, ErrMissingTargetLanguage)
	assert.Empty(t, decision)
	assert.Nil(t, job)

	_, ok := tr.Get("clip.mp4")
	assert.False(t, ok)
	assert.Empty(t, tr.Snapshot())
}

func TestSubmitDropsLanguageWithoutTranslation(t *testing.T) {
	tr := New(nil)
	_, job, err := tr.Submit("clip.mp4", "clip.mp4", false, model.LanguageGerman)
	require.NoError(t, err)
	assert.Empty(t, job.TargetLanguage)
}

func TestConcurrentSubmissionsCreateOneJob(t *testing.T) {
	tr := New(nil)

	const callers = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		decisions = map[model.Decision]int{}
		runIDs    = map[string]struct{}{}
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, job, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
			assert.NoError(t, err)
			mu.Lock()
			decisions[d]++
			runIDs[job.RunID] = struct{}{}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, decisions[model.DecisionNewJob])
	assert.Equal(t, callers-1, decisions[model.DecisionInProgress])
	assert.Len(t, runIDs, 1)
}

func TestLifecycleCompleted(t *testing.T) {
	tr := New(nil)
	_, _, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)

	require.NoError(t, tr.Complete("clip.mp4"))
	assert.ErrorIs(t, tr.Complete("clip.mp4"), ErrInvalidTransition)

	decision, job, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionReadyForDownload, decision)
	require.NotNil(t, job.CompletedAt)

	require.NoError(t, tr.Release("clip.mp4"))
	_, ok := tr.Get("clip.mp4")
	assert.False(t, ok)

	decision, fresh, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNewJob, decision)
	assert.NotEqual(t, job.RunID, fresh.RunID)
}

func TestLifecycleFailed(t *testing.T) {
	tr := New(nil)
	_, _, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)

	require.NoError(t, tr.Fail("clip.mp4", "exit status 1"))

	decision, job, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionFailed, decision)
	assert.Equal(t, "exit status 1", job.Error)

	require.NoError(t, tr.Release("clip.mp4"))
	decision, _, err = tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNewJob, decision)
}

func TestReleaseRejectsProcessing(t *testing.T) {
	tr := New(nil)
	_, _, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.Release("clip.mp4"), ErrInvalidTransition)
	assert.ErrorIs(t, tr.Release("missing.mp4"), ErrUnknownJob)
	assert.ErrorIs(t, tr.Complete("missing.mp4"), ErrUnknownJob)
}

func TestAbortReturnsKeyToAbsent(t *testing.T) {
	tr := New(nil)
	_, _, err := tr.Submit("clip.mp4", "clip.mp4", false, "")
	require.NoError(t, err)

	require.NoError(t, tr.Abort("clip.mp4"))
	_, ok := tr.Get("clip.mp4")
	assert.False(t, ok)
	assert.ErrorIs(t, tr.Abort("clip.mp4"), ErrInvalidTransition)
}

func TestSnapshotOrdered(t *testing.T) {
	tr := New(nil)
	for _, key := range []string{"b.mp4", "a.mp4", "c.mp4"} {
		_, _, err := tr.Submit(key, key, false, "")
		require.NoError(t, err)
	}

	jobs := tr.Snapshot()
	require.Len(t, jobs, 3)
	for i := 1; i < len(jobs); i++ {
		assert.False(t, jobs[i].CreatedAt.Before(jobs[i-1].CreatedAt))
	}
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, isValidTransition(model.JobStateAbsent, model.JobStateProcessing))
	assert.True(t, isValidTransition(model.JobStateProcessing, model.JobStateFailed))
	assert.True(t, isValidTransition(model.JobStateCompleted, model.JobStateAbsent))
	assert.False(t, isValidTransition(model.JobStateCompleted, model.JobStateFailed))
	assert.False(t, isValidTransition(model.JobStateFailed, model.JobStateProcessing))
	assert.False(t, isValidTransition(model.JobStateAbsent, model.JobStateCompleted))
}
