package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
)

type fakeRunner struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{RunID: "run-" + query}, nil
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var start = time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)

func schedule() config.ScheduleConfig {
	return config.ScheduleConfig{Jobs: []config.ScheduleJob{
		{Name: "daily-agents", Cron: "0 9 * * *", Query: "AI agents"},
		{Name: "hourly-rag", Cron: "@hourly", Query: "RAG"},
	}}
}

func TestTickFiresDueJobs(t *testing.T) {
	c := &clock{t: start}
	runner := &fakeRunner{}
	s, err := New(schedule(), runner, nil, zaptest.NewLogger(t), WithClock(c.now))
	require.NoError(t, err)

	next, ok := s.Next("daily-agents")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), next)

	assert.Empty(t, s.Tick(context.Background()))

	c.set(start.Add(30 * time.Minute))
	fired := s.Tick(context.Background())
	s.Wait()
	assert.ElementsMatch(t, []string{"daily-agents", "hourly-rag"}, fired)
	assert.ElementsMatch(t, []string{"AI agents", "RAG"}, runner.seen())

	// Same instant again: nothing is due until the next occurrence.
	assert.Empty(t, s.Tick(context.Background()))
	next, _ = s.Next("daily-agents")
	assert.Equal(t, time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC), next)

	_, ok = s.Next("missing")
	assert.False(t, ok)
}

func TestRedisLockFiresOncePerOccurrence(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := &clock{t: start}
	r1, r2 := &fakeRunner{}, &fakeRunner{}
	cfg := config.ScheduleConfig{Jobs: []config.ScheduleJob{{Name: "daily", Cron: "0 9 * * *", Query: "q"}}}
	s1, err := New(cfg, r1, RedisLocker{Client: client}, nil, WithClock(c.now))
	require.NoError(t, err)
	s2, err := New(cfg, r2, RedisLocker{Client: client}, nil, WithClock(c.now))
	require.NoError(t, err)

	c.set(start.Add(time.Hour))
	fired1 := s1.Tick(context.Background())
	fired2 := s2.Tick(context.Background())
	s1.Wait()
	s2.Wait()

	assert.Equal(t, []string{"daily"}, fired1)
	assert.Empty(t, fired2)
	assert.Len(t, r1.seen(), 1)
	assert.Empty(t, r2.seen())

	key := "scout:sched:lock:daily:" + "1748854800"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, DefaultLockTTL, mr.TTL(key))
}

func TestLockErrorSkipsJob(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	c := &clock{t: start}
	runner := &fakeRunner{}
	s, err := New(schedule(), runner, RedisLocker{Client: client}, zaptest.NewLogger(t), WithClock(c.now))
	require.NoError(t, err)

	c.set(start.Add(time.Hour))
	assert.Empty(t, s.Tick(context.Background()))
	assert.Empty(t, runner.seen())
}

func TestFailedRunIsLogged(t *testing.T) {
	c := &clock{t: start}
	runner := &fakeRunner{err: errors.New("planner failed")}
	s, err := New(schedule(), runner, nil, zaptest.NewLogger(t), WithClock(c.now))
	require.NoError(t, err)
	c.set(start.Add(time.Hour))
	assert.Len(t, s.Tick(context.Background()), 2)
	s.Wait()
}

func TestNewRejectsBadCron(t *testing.T) {
	cfg := config.ScheduleConfig{Jobs: []config.ScheduleJob{{Name: "x", Cron: "every tuesday", Query: "q"}}}
	_, err := New(cfg, &fakeRunner{}, nil, nil)
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := config.ScheduleConfig{PollInterval: 10 * time.Millisecond}
	s, err := New(cfg, &fakeRunner{}, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}
