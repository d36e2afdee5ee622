package jobqueue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHandler struct{ name string }

func (h noopHandler) Name() string                              { return h.name }
func (h noopHandler) Execute(ctx context.Context, j *Job) error { return nil }

func Test_NewWorkerPool_validates_options(t *testing.T) {
	_, err := NewWorkerPool(WorkerPoolOptions{})
	assert.EqualError(t, err, "a job store is required for the worker pool")

	_, err = NewWorkerPool(WorkerPoolOptions{Store: &Store{}})
	assert.EqualError(t, err, "a queue name is required for the worker pool")

	pool, err := NewWorkerPool(WorkerPoolOptions{Store: &Store{}, Queue: "emails"})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.concurrency)
	assert.Equal(t, defaultPollInterval, pool.pollInterval)
	assert.Equal(t, defaultClaimBatch, pool.claimBatch)
	assert.Contains(t, pool.workerID, "emails-")
}

func Test_WorkerPool_RegisterHandler_rejects_duplicates(t *testing.T) {
	pool, err := NewWorkerPool(WorkerPoolOptions{Store: &Store{}, Queue: "emails"})
	require.NoError(t, err)

	require.NoError(t, pool.RegisterHandler(noopHandler{name: "send_email"}))
	err = pool.RegisterHandler(noopHandler{name: "send_email"})
	assert.EqualError(t, err, `handler "send_email" is already registered on queue emails`)
}

func Test_NewStore_requires_pool(t *testing.T) {
	_, err := NewStore(nil)
	assert.EqualError(t, err, "dbConnectionPool is required for the job store")
}

func Test_truncateErr(t *testing.T) {
	assert.Equal(t, "", truncateErr(nil))
	assert.Equal(t, assert.AnError.Error(), truncateErr(assert.AnError))

	long := errors.New(strings.Repeat("x", 2000))
	assert.Len(t, truncateErr(long), 1000)
}
