package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a real server: REDIS_ADDR=localhost:6379 go test ./lock
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	l := NewRedisLocker(rdb, "rewards-bot:test:"+uuid.NewString()+":", 5*time.Second, nil)

	release, ok, err := l.TryLock(ctx, "111")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "111")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()

	again, ok, err := l.TryLock(ctx, "111")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}
