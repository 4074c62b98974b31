package state

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/scout/config"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	client, err := Conn(context.Background(), config.RedisConfig{Host: host, Port: port, Timeout: time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "run-1", time.Hour), mr
}

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyPlan)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyPlan, `{"primary_topic":"rag"}`))
	v, ok, err := s.Get(ctx, KeyPlan)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"primary_topic":"rag"}`, v)

	require.ErrorIs(t, s.Set(ctx, KeyPlan, "overwrite"), ErrKeyWritten)

	// Empty values still count as written.
	require.NoError(t, s.Set(ctx, KeyBlogs, ""))
	_, ok, err = s.Get(ctx, KeyBlogs)
	require.NoError(t, err)
	assert.True(t, ok)

	var wg sync.WaitGroup
	for _, key := range []string{KeyPapers, KeyRepos, KeyFinalSummary} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, key, "value-"+key))
		}(key)
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 5)
	assert.Equal(t, "value-"+KeyRepos, snap[KeyRepos])
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t)
	storeContract(t, s)

	assert.True(t, mr.Exists("scout:run:run-1:state"))
	assert.Equal(t, time.Hour, mr.TTL("scout:run:run-1:state"))
}

func TestRedisStoreIsolatedPerRun(t *testing.T) {
	s, _ := newRedisStore(t)
	other := NewRedisStore(s.client, "run-2", 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyPlan, "a"))
	require.NoError(t, other.Set(ctx, KeyPlan, "b"))

	v, _, err := other.Get(ctx, KeyPlan)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, DefaultStateTTL, other.ttl)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, "run-x", time.Minute)
	mr.Close()

	_, _, err = s.Get(context.Background(), KeyPlan)
	require.Error(t, err)
	require.Error(t, s.Set(context.Background(), KeyPlan, "v"))
}

// failExpire rejects EXPIRE and lets every other command through.
type failExpire struct{}

func (failExpire) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failExpire) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "expire" {
			return errors.New("expire rejected")
		}
		return next(ctx, cmd)
	}
}

func (failExpire) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreExpireFailureKeepsWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	client.AddHook(failExpire{})

	s, err := RedisOpener(client, time.Minute, zaptest.NewLogger(t))(context.Background(), "run-e")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyPapers, `{"papers":[]}`))
	v, ok, err := s.Get(ctx, KeyPapers)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"papers":[]}`, v)
	require.ErrorIs(t, s.Set(ctx, KeyPapers, "again"), ErrKeyWritten)
}

func TestOpeners(t *testing.T) {
	mem, err := MemoryOpener()(context.Background(), "r")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rs, err := RedisOpener(client, time.Minute, zaptest.NewLogger(t))(context.Background(), "r")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, rs)
}
