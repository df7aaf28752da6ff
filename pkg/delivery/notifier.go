package delivery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/pkg/push"
)

// BatchSender is satisfied by *Dispatcher.
type BatchSender interface {
	SendToMultipleUsers(ctx context.Context, userIDs []string, n push.Notification) push.Summary
}

// Task is one fan-out request queued by the relay.
type Task struct {
	UserIDs      []string
	Notification push.Notification
}

type NotifierOptions struct {
	QueueSize   int
	WorkerCount int
	OpTimeout   time.Duration
}

func (o NotifierOptions) withDefaults() NotifierOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = 4
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 15 * time.Second
	}
	return o
}

// Notifier runs push fan-outs off the caller's goroutine through a bounded queue.
type Notifier struct {
	sender BatchSender
	log    *zap.Logger
	opts   NotifierOptions

	q      chan Task
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// OnDrop, when set, is called for every task rejected by a full queue.
	OnDrop func(Task)
	// OnDone, when set, receives the summary of every processed task.
	OnDone func(Task, push.Summary)
}

func NewNotifier(sender BatchSender, log *zap.Logger, opts NotifierOptions) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	n := &Notifier{
		sender: sender,
		log:    log,
		opts:   opts,
		q:      make(chan Task, opts.QueueSize),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < opts.WorkerCount; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// Enqueue never blocks; it reports false when the task was dropped.
func (n *Notifier) Enqueue(t Task) bool {
	if len(t.UserIDs) == 0 {
		return true
	}
	select {
	case <-n.stopCh:
		return false
	default:
	}
	select {
	case n.q <- t:
		return true
	default:
		n.log.Warn("push queue full, dropping fan-out", zap.Int("recipients", len(t.UserIDs)))
		if n.OnDrop != nil {
			n.OnDrop(t)
		}
		return false
	}
}

// Close stops the workers after the tasks already being processed finish.
func (n *Notifier) Close() {
	n.once.Do(func() { close(n.stopCh) })
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case t := <-n.q:
			ctx, cancel := context.WithTimeout(context.Background(), n.opts.OpTimeout)
			sum := n.sender.SendToMultipleUsers(ctx, t.UserIDs, t.Notification)
			cancel()
			n.log.Debug("push fan-out done",
				zap.Int("total", sum.Total), zap.Int("successful", sum.Successful), zap.Int("failed", sum.Failed))
			if n.OnDone != nil {
				n.OnDone(t, sum)
			}
		}
	}
}
