package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLog(t *testing.T, history int) (*miniredis.Miniredis, *Log) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLog(client, history)
}

func TestLog_CreateGetUpdate(t *testing.T) {
	mr, log := setupLog(t, 10)
	ctx := context.Background()

	run := &Run{UserID: "u1", ChatID: "c1"}
	require.NoError(t, log.Create(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusPending, run.Status)
	assert.Equal(t, 1, run.Attempt)
	assert.True(t, mr.Exists("kg:run:"+run.ID))

	got, err := log.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ChatID)
	assert.Nil(t, got.FinishedAt)

	got.Status = StatusFailed
	got.Error = "completion call failed"
	got.Retryable = true
	require.NoError(t, log.Update(ctx, got))

	final, err := log.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.True(t, final.Retryable)
	require.NotNil(t, final.FinishedAt)
	assert.True(t, final.Finished())
}

func TestLog_GetMissing(t *testing.T) {
	_, log := setupLog(t, 10)

	_, err := log.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = log.Update(context.Background(), &Run{ID: "nope"})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLog_ListByUserNewestFirstAndCapped(t *testing.T) {
	_, log := setupLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Create(ctx, &Run{UserID: "u1", ChatID: fmt.Sprintf("c%d", i)}))
	}
	require.NoError(t, log.Create(ctx, &Run{UserID: "u2", ChatID: "other"}))

	runs, err := log.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c4", runs[0].ChatID)
	assert.Equal(t, "c2", runs[2].ChatID)

	runs, err = log.ListByUser(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runs, err = log.ListByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLog_ListSkipsExpiredRecords(t *testing.T) {
	mr, log := setupLog(t, 10)
	ctx := context.Background()

	run := &Run{UserID: "u1", ChatID: "c1", CreatedAt: time.Now()}
	require.NoError(t, log.Create(ctx, run))
	mr.Del("kg:run:" + run.ID)

	runs, err := log.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
