package erpsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/pkg/event"
	"github.com/MahirK1/p-sub001/pkg/producer"
)

var ErrSyncRunning = errors.New("erpsync: a sync is already running")

// Runner is satisfied by *Syncer.
type Runner interface {
	Run(ctx context.Context, kind string) (any, error)
}

type SchedulerOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
}

// Scheduler runs a full sync on a ticker and serves manual triggers. At most one
// sync runs at a time.
type Scheduler struct {
	run  Runner
	prod producer.Producer
	log  *zap.Logger
	opt  SchedulerOptions

	mu      sync.Mutex
	running bool

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewScheduler(run Runner, prod producer.Producer, log *zap.Logger, opt SchedulerOptions) *Scheduler {
	if opt.Interval <= 0 {
		opt.Interval = time.Hour
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Minute
	}
	if prod == nil {
		prod = producer.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{run: run, prod: prod, log: log, opt: opt, stop: make(chan struct{})}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.opt.RunOnStart {
			s.runOnce()
		}
		t := time.NewTicker(s.opt.Interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.runOnce()
			}
		}
	}()
}

// Stop waits for a sync already in progress.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opt.Timeout)
	defer cancel()
	if _, err := s.Trigger(ctx, KindAll); err != nil && !errors.Is(err, ErrSyncRunning) {
		s.log.Error("scheduled erp sync failed", zap.Error(err))
	}
}

// Trigger runs kind now unless another sync is in progress (ErrSyncRunning).
func (s *Scheduler) Trigger(ctx context.Context, kind string) (any, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrSyncRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	stats, err := s.run.Run(ctx, kind)
	if err != nil {
		return stats, err
	}
	s.log.Info("erp sync done", zap.String("type", kind), zap.Duration("took", time.Since(start)))

	evt := event.NewSyncCompleted(kind, map[string]any{"stats": stats, "took_ms": time.Since(start).Milliseconds()})
	pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if perr := s.prod.Publish(pctx, evt); perr != nil {
		s.log.Warn("publish sync event failed", zap.Error(perr))
	}
	cancel()
	return stats, nil
}
