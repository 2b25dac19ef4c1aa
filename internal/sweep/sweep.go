// Package sweep periodically opens locked capsules whose open time has passed.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/time-capsule/internal/metrics"
	"github.com/and161185/time-capsule/internal/model"
)

// Lister finds locked capsules that are due.
type Lister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Opener performs the idempotent open transition.
type Opener interface {
	Open(ctx context.Context, id uuid.UUID, now time.Time) (*model.Capsule, error)
}

// Config tunes the sweep loop.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Parallelism int
	RunTimeout  time.Duration
}

// DefaultConfig returns one pass per minute over at most 100 capsules.
func DefaultConfig() Config {
	return Config{Interval: time.Minute, BatchSize: 100, Parallelism: 4, RunTimeout: 30 * time.Second}
}

// Result summarizes one pass.
type Result struct {
	Due    int
	Opened int
	Failed int
}

// Sweeper runs RunOnce on a ticker.
type Sweeper struct {
	list Lister
	open Opener
	cfg  Config
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Sweeper; zero config fields take DefaultConfig values.
func New(list Lister, open Opener, cfg Config, log *zap.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	return &Sweeper{
		list: list,
		open: open,
		cfg:  cfg,
		log:  log.With(zap.String("component", "sweep")),
		now:  time.Now,
	}
}

// Start launches the loop. It returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.log.Info("sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch", s.cfg.BatchSize),
		zap.Int("parallelism", s.cfg.Parallelism),
	)
	go s.loop(ctx, s.stopCh, s.doneCh)
	return nil
}

// Stop halts the loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stop)
	<-done
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	if _, err := s.RunOnce(rctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("sweep failed", zap.Error(err))
	}
}

// RunOnce opens every due capsule of one batch. Open errors are counted, not returned;
// only a listing failure fails the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.now()
	ids, err := s.list.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}

	var (
		mu  sync.Mutex
		res = Result{Due: len(ids)}
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.open.Open(ctx, id, s.now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				s.log.Warn("sweep open failed", zap.Stringer("capsule_id", id), zap.Error(err))
				return nil
			}
			res.Opened++
			return nil
		})
	}
	_ = g.Wait()

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if res.Due > 0 {
		s.log.Info("sweep pass", zap.Int("due", res.Due), zap.Int("opened", res.Opened), zap.Int("failed", res.Failed))
	}
	return res, nil
}
