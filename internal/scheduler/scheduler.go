// Package scheduler fires recurring research runs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
)

// DefaultLockTTL bounds how long one replica holds a fired occurrence.
const DefaultLockTTL = 10 * time.Minute

// Runner executes a research query.
type Runner interface {
	Run(ctx context.Context, query string) (*pipeline.Result, error)
}

// Locker makes sure one occurrence of a job fires on one replica only.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker takes locks with SET NX.
type RedisLocker struct {
	Client redis.UniversalClient
}

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, key, "1", ttl).Result()
}

type job struct {
	name  string
	query string
	expr  *cronexpr.Expression
	next  time.Time
}

type Scheduler struct {
	jobs     []*job
	runner   Runner
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// Option customises a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func WithLockTTL(ttl time.Duration) Option { return func(s *Scheduler) { s.lockTTL = ttl } }

// New parses every job's cron expression. A nil locker runs every
// occurrence locally.
func New(cfg config.ScheduleConfig, runner Runner, locker Locker, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		runner:   runner,
		locker:   locker,
		interval: cfg.PollInterval,
		lockTTL:  DefaultLockTTL,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	now := s.now()
	for _, j := range cfg.Jobs {
		expr, err := cronexpr.Parse(j.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", j.Name, err)
		}
		next := expr.Next(now)
		if next.IsZero() {
			return nil, fmt.Errorf("schedule job %s: cron %q never fires", j.Name, j.Cron)
		}
		s.jobs = append(s.jobs, &job{name: j.Name, query: j.Query, expr: expr, next: next})
	}
	return s, nil
}

// Next returns when the named job fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.next, true
		}
	}
	return time.Time{}, false
}

// Run polls until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)), zap.Duration("poll", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every job that is due and returns their names. Runs happen in
// the background; Wait blocks until they finish.
func (s *Scheduler) Tick(ctx context.Context) []string {
	now := s.now()
	var fired []string

	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	occurrences := make([]time.Time, 0, len(s.jobs))
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		due = append(due, j)
		occurrences = append(occurrences, j.next)
		j.next = j.expr.Next(now)
	}
	s.mu.Unlock()

	for i, j := range due {
		if s.locker != nil {
			key := fmt.Sprintf("scout:sched:lock:%s:%d", j.name, occurrences[i].Unix())
			ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
			if err != nil {
				s.logger.Warn("schedule lock failed", zap.String("job", j.name), zap.Error(err))
				continue
			}
			if !ok {
				s.logger.Debug("occurrence taken by another replica", zap.String("job", j.name))
				continue
			}
		}
		fired = append(fired, j.name)
		s.wg.Add(1)
		go func(name, query string) {
			defer s.wg.Done()
			res, err := s.runner.Run(ctx, query)
			if err != nil {
				s.logger.Error("scheduled run failed", zap.String("job", name), zap.Error(err))
				return
			}
			s.logger.Info("scheduled run finished", zap.String("job", name), zap.String("run_id", res.RunID))
		}(j.name, j.query)
	}
	return fired
}

// Wait blocks until background runs started by Tick finish.
func (s *Scheduler) Wait() { s.wg.Wait() }
