//go:build integration

package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/syncer"
	"github.com/rafaeljc/tally/internal/testsupport"
)

func TestRedisQueue_Integration(t *testing.T) {
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	newQueue := func(t *testing.T) *syncer.RedisQueue {
		require.NoError(t, redisCtr.Reset(ctx))
		return syncer.NewRedisQueue(redisCtr.Client, "records:queue", 100*time.Millisecond)
	}

	t.Run("Should deliver events in publish order", func(t *testing.T) {
		q := newQueue(t)
		require.NoError(t, q.Publish(ctx, syncer.NewRecordEvent(runEntry("a", 1, 5), record.Created)))
		require.NoError(t, q.Publish(ctx, syncer.NewRecordEvent(runEntry("b", 2, 6), record.Created)))

		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), depth)

		for _, want := range []string{"a", "b"} {
			msg, err := q.Fetch(ctx)
			require.NoError(t, err)
			require.NotNil(t, msg)

			ev, err := syncer.DecodeEvent(msg.Raw)
			require.NoError(t, err)
			rec, _, err := ev.Record()
			require.NoError(t, err)
			assert.Equal(t, want, rec.RecordID())
			require.NoError(t, q.Commit(ctx, msg))
		}
	})

	t.Run("Should return nothing on an empty queue", func(t *testing.T) {
		q := newQueue(t)

		msg, err := q.Fetch(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("Should report queue depth through the monitor", func(t *testing.T) {
		q := newQueue(t)
		for range 3 {
			require.NoError(t, q.Publish(ctx, syncer.NewResyncEvent()))
		}

		svc := syncer.New(discardLogger(), testConfig(), q, &fakeNotifier{})
		monitorCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_ = svc.RunQueueMonitor(monitorCtx, 50*time.Millisecond)

		assert.Equal(t, float64(3), testsupport.GetMetricValue(t, "tally_redis_queue_depth", nil))
	})

	t.Run("Should drain the queue into the notifier", func(t *testing.T) {
		q := newQueue(t)
		n := &fakeNotifier{}
		require.NoError(t, q.Publish(ctx, syncer.NewRecordEvent(runEntry("a", 1, 5), record.Created)))
		require.NoError(t, q.Publish(ctx, syncer.NewResyncEvent()))

		stop := runService(t, syncer.New(discardLogger(), testConfig(), q, n))
		require.Eventually(t, func() bool {
			_, deletes, _ := n.snapshot()
			return deletes == 1
		}, 2*time.Second, 20*time.Millisecond)
		stop()

		applied, _, _ := n.snapshot()
		assert.Equal(t, []string{"CREATED:a"}, applied)

		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Zero(t, depth)
	})
}
