package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "queue.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestQueue_ClaimFIFO(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	first, err := q.Enqueue(ctx, models.JobTypeScan, `{"scan_id":1}`, 0, time.Time{})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, models.JobTypeScan, `{"scan_id":2}`, 0, time.Time{})
	require.NoError(t, err)

	job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	job, err = q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second, job.ID)

	job, err = q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_ClaimFiltersByType(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeEmbed, "{}", 0, time.Time{})
	require.NoError(t, err)

	job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = q.Claim(ctx, []string{models.JobTypeScan, models.JobTypeEmbed}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.JobTypeEmbed, job.Type)
}

func TestQueue_ClaimHonoursRunAfter(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeScan, "{}", 0, time.Now().Add(time.Hour))
	require.NoError(t, err)

	job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = q.Claim(ctx, []string{models.JobTypeScan}, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestQueue_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeScan, "{}", 0, time.Time{})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}

func TestQueue_FailReschedulesWithBackoff(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeVerify, "{}", 3, time.Time{})
	require.NoError(t, err)
	job, err := q.Claim(ctx, []string{models.JobTypeVerify}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)

	before := time.Now()
	final, err := q.Fail(ctx, job, errors.New("provider timeout"))
	require.NoError(t, err)
	assert.False(t, final)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, "provider timeout", got.Error)
	assert.True(t, got.RunAfter.After(before), "retry must be deferred")

	// Not yet eligible until the backoff elapses.
	reclaimed, err := q.Claim(ctx, []string{models.JobTypeVerify}, before)
	require.NoError(t, err)
	assert.Nil(t, reclaimed)
}

func TestQueue_FailExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeVerify, "{}", 1, time.Time{})
	require.NoError(t, err)

	future := time.Now().Add(24 * time.Hour)
	job, err := q.Claim(ctx, []string{models.JobTypeVerify}, future)
	require.NoError(t, err)
	final, err := q.Fail(ctx, job, errors.New("boom"))
	require.NoError(t, err)
	assert.False(t, final, "first failure retries")

	job, err = q.Claim(ctx, []string{models.JobTypeVerify}, future.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	final, err = q.Fail(ctx, job, errors.New("boom again"))
	require.NoError(t, err)
	assert.True(t, final)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestQueue_NonRetryableFailsImmediately(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeRank, "{}", 3, time.Time{})
	require.NoError(t, err)
	job, err := q.Claim(ctx, []string{models.JobTypeRank}, time.Now())
	require.NoError(t, err)

	final, err := q.Fail(ctx, job, NonRetryable(errors.New("bad payload")))
	require.NoError(t, err)
	assert.True(t, final)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestQueue_Release(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeScan, "{}", 0, time.Time{})
	require.NoError(t, err)
	job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)

	require.NoError(t, q.Release(ctx, job.ID, time.Now()))

	again, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts, "release does not reset the attempt counter")
}

func TestQueue_Complete(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t)

	_, err := q.Enqueue(ctx, models.JobTypeScan, "{}", 0, time.Time{})
	require.NoError(t, err)
	job, err := q.Claim(ctx, []string{models.JobTypeScan}, time.Now())
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job.ID, `{"open_prs":4}`))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, got.Status)
	assert.Equal(t, `{"open_prs":4}`, got.Result)
}

func TestNonRetryable_Detection(t *testing.T) {
	base := errors.New("fatal")
	assert.True(t, IsNonRetryable(NonRetryable(base)))
	assert.True(t, IsNonRetryable(errors.Join(errors.New("context"), NonRetryable(base))))
	assert.False(t, IsNonRetryable(base))
	assert.Nil(t, NonRetryable(nil))
}
