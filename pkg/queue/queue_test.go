package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listRedis implements the list commands the queue uses; any other call panics on the nil embed.
type listRedis struct {
	redis.Cmdable
	mu    sync.Mutex
	lists map[string][]string
	err   error
}

func newListRedis() *listRedis { return &listRedis{lists: map[string][]string{}} }

func (r *listRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return redis.NewIntResult(0, r.err)
	}
	for _, v := range values {
		switch b := v.(type) {
		case []byte:
			r.lists[key] = append(r.lists[key], string(b))
		case string:
			r.lists[key] = append(r.lists[key], b)
		}
	}
	return redis.NewIntResult(int64(len(r.lists[key])), nil)
}

func (r *listRedis) BLPop(_ context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if l := r.lists[k]; len(l) > 0 {
			r.lists[k] = l[1:]
			return redis.NewStringSliceResult([]string{k, l[0]}, nil)
		}
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func TestQueue_EnqueueDequeueSessionExport(t *testing.T) {
	rdb := newListRedis()
	q := NewQueue(rdb, nil)
	id := uuid.New()

	require.NoError(t, q.EnqueueSessionExport(context.Background(), id, "alice"))

	job, key, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueExports, key)
	assert.Equal(t, JobTypeSessionExport, job.Type)
	assert.Equal(t, 0, job.Attempt)

	var p SessionExportPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, id, p.SessionID)
	assert.Equal(t, "alice", p.LocalUser)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	job, _, err := NewQueue(newListRedis(), nil).Dequeue(context.Background(), time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_DequeueDropsGarbage(t *testing.T) {
	rdb := newListRedis()
	rdb.lists[QueueExports] = []string{"{not json"}

	job, _, err := NewQueue(rdb, nil).Dequeue(context.Background(), time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, job)
	assert.Empty(t, rdb.lists[QueueExports])
}

func TestQueue_RetryThenDeadLetter(t *testing.T) {
	rdb := newListRedis()
	q := NewQueue(rdb, nil)
	job, err := NewJob(JobTypeSessionExport, SessionExportPayload{SessionID: uuid.New()})
	require.NoError(t, err)

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(context.Background(), job))
		assert.Len(t, rdb.lists[QueueExports], i)
	}
	require.NoError(t, q.Retry(context.Background(), job))
	assert.Len(t, rdb.lists[QueueDLQ], 1)
	assert.Equal(t, MaxRetries, job.Attempt)
}

func TestQueue_EnqueueError(t *testing.T) {
	rdb := newListRedis()
	rdb.err = errors.New("connection refused")

	err := NewQueue(rdb, nil).EnqueueSessionExport(context.Background(), uuid.New(), "alice")
	assert.ErrorContains(t, err, "connection refused")
}
