// Package bus carries group broadcasts to every relay node.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/hub"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, group string, payload []byte) error
}

// Local delivers to this node's hub only.
type Local struct {
	Hub *hub.Hub
}

func (l Local) Broadcast(_ context.Context, group string, payload []byte) error {
	l.Hub.Broadcast(group, payload)
	return nil
}

type envelope struct {
	Group   string          `json:"g"`
	Payload json.RawMessage `json:"p"`
}

// Redis publishes broadcasts on one pub/sub channel; every node, including the
// publisher, delivers what it receives to its local hub.
type Redis struct {
	cli     redis.UniversalClient
	channel string
	hub     *hub.Hub
	log     *zap.Logger

	// MinBackoff and MaxBackoff bound the wait between resubscribe attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewRedis(cli redis.UniversalClient, channel string, h *hub.Hub, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		cli:        cli,
		channel:    channel,
		hub:        h,
		log:        log,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

// Broadcast publishes to every node. When Redis is unreachable the payload is
// still delivered to this node's members and the publish error is returned.
func (r *Redis) Broadcast(ctx context.Context, group string, payload []byte) error {
	b, err := json.Marshal(envelope{Group: group, Payload: payload})
	if err != nil {
		return err
	}
	if err := r.cli.Publish(ctx, r.channel, b).Err(); err != nil {
		r.hub.Broadcast(group, payload)
		r.log.Warn("bus publish failed, delivered locally", zap.String("group", group), zap.Error(err))
		return err
	}
	return nil
}

// Run consumes the channel until ctx is done, resubscribing with backoff after
// every subscription error.
func (r *Redis) Run(ctx context.Context) error {
	retry := 0
	for {
		subscribed, err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			retry = 0
		}
		retry++
		wait := r.backoff(retry)
		if retry == 1 || retry%10 == 0 {
			r.log.Warn("bus subscription lost", zap.Int("retry", retry), zap.Duration("backoff", wait), zap.Error(err))
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (r *Redis) consume(ctx context.Context) (bool, error) {
	sub := r.cli.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	r.log.Info("bus subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return true, errors.New("bus: subscription closed")
			}
			if err := r.deliver(m.Payload); err != nil {
				r.log.Warn("bus: bad envelope", zap.Error(err))
			}
		}
	}
}

// backoff doubles from MinBackoff per retry, capped at MaxBackoff.
func (r *Redis) backoff(retry int) time.Duration {
	d := r.MinBackoff
	for i := 1; i < retry && d < r.MaxBackoff; i++ {
		d *= 2
	}
	if d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

func (r *Redis) deliver(raw string) error {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return err
	}
	if e.Group == "" {
		return errors.New("bus: empty group")
	}
	r.hub.Broadcast(e.Group, e.Payload)
	return nil
}
