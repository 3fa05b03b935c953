package cart

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPersistenceUnreachableKeepsCart(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	s := newTestStore(WithPersistence(NewRedisPersistenceWithClient(client)))
	_, err := s.Add(context.Background(), weekRequest("u1"))
	require.Error(t, err)
	assert.Empty(t, s.Lines("u1"))
	assert.Error(t, s.Load(context.Background()))
}

// Runs against a real server when REDIS_ADDR is set.
func TestRedisPersistenceSurvivesReload(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	p := NewRedisPersistence(addr)
	t.Cleanup(func() { p.client.Del(ctx, StorageKey) })

	s := newTestStore(WithPersistence(p))
	line, err := s.Add(ctx, weekRequest("u1"))
	require.NoError(t, err)

	restored := newTestStore(WithPersistence(NewRedisPersistence(addr)))
	require.NoError(t, restored.Load(ctx))
	got, ok := restored.Get(line.ID)
	require.True(t, ok)
	assert.True(t, line.LineTotal.Equal(got.LineTotal))
}
