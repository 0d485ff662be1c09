package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shasdl:jobs", "workers")
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"job_id":"j1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgID, data, err := q.Dequeue(ctx, "w-0", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, id, msgID)
	assert.JSONEq(t, `{"job_id":"j1"}`, string(data))

	stream, pending, dlq, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stream)
	assert.Equal(t, int64(1), pending)
	assert.Zero(t, dlq)

	require.NoError(t, q.Ack(ctx, msgID))
	_, pending, _, err = q.Depths(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	msgID, data, err = q.Dequeue(ctx, "w-0", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgID)
	assert.Nil(t, data)
}

func TestGroupSeesJobsQueuedBeforeIt(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, err := c.XAdd(context.Background(), &redis.XAddArgs{Stream: "s", Values: map[string]any{"data": "early"}}).Result()
	require.NoError(t, err)

	q, err := NewWithClient(c, "s", "g")
	require.NoError(t, err)
	_, data, err := q.Dequeue(context.Background(), "w", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "early", string(data))

	// creating the group again is fine
	_, err = NewWithClient(c, "s", "g")
	require.NoError(t, err)
}

func TestCancelSet(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	ok, err := q.IsCancelled(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, q.CancelJob(ctx, "j1"))
	ok, err = q.IsCancelled(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.AddDLQ(ctx, []byte("bad"), "invalid payload"))
	_, _, dlq, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)
	assert.True(t, mr.Exists("shasdl:jobs:dlq"))
}
