package producer

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"github.com/MahirK1/p-sub001/pkg/event"
)

type RocketMQSettings struct {
	Enabled     bool          `yaml:"enabled"`
	NameServer  string        `yaml:"name_server"`
	Group       string        `yaml:"group"`
	Topic       string        `yaml:"topic"`
	Tag         string        `yaml:"tag"` // empty = tag by event name
	AccessKey   string        `yaml:"access_key"`
	SecretKey   string        `yaml:"secret_key"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	Retries     int           `yaml:"retries"`
}

var (
	ErrNoNameServer = errors.New("rocketmq: missing name_server")
	ErrNoGroup      = errors.New("rocketmq: missing group")
	ErrNoTopic      = errors.New("rocketmq: missing topic")
	ErrNilEvent     = errors.New("rocketmq: nil event")
)

func (s RocketMQSettings) validate() error {
	switch {
	case s.NameServer == "":
		return ErrNoNameServer
	case s.Group == "":
		return ErrNoGroup
	case s.Topic == "":
		return ErrNoTopic
	}
	return nil
}

// syncSender is the part of rmq.Producer the portal uses.
type syncSender interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
	Shutdown() error
}

// RocketMQProducer publishes portal events on one topic. Messages are sharded by
// room id (or sync type) through a hash queue selector, so one room's events stay
// ordered on a single queue.
type RocketMQProducer struct {
	cfg RocketMQSettings
	p   syncSender
}

func NewRocketMQ(cfg RocketMQSettings) (*RocketMQProducer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 3 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}
	opts := []producer.Option{
		producer.WithNameServer([]string{cfg.NameServer}),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(cfg.Retries),
		producer.WithSendMsgTimeout(cfg.SendTimeout),
		producer.WithQueueSelector(producer.NewHashQueueSelector()),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, producer.WithCredentials(primitive.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}))
	}
	prd, err := rmq.NewProducer(opts...)
	if err != nil {
		return nil, err
	}
	if err := prd.Start(); err != nil {
		return nil, err
	}
	return &RocketMQProducer{cfg: cfg, p: prd}, nil
}

// New returns a RocketMQ producer when enabled, Noop otherwise.
func New(cfg RocketMQSettings) (Producer, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	p, err := NewRocketMQ(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *RocketMQProducer) Publish(ctx context.Context, evt *event.PortalEvent) error {
	m, err := buildMessage(r.cfg, evt)
	if err != nil {
		return err
	}
	_, err = r.p.SendSync(ctx, m)
	return err
}

func (r *RocketMQProducer) Close() error {
	if r.p != nil {
		return r.p.Shutdown()
	}
	return nil
}

func buildMessage(cfg RocketMQSettings, evt *event.PortalEvent) (*primitive.Message, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	if evt.TS == 0 {
		evt.TS = time.Now().Unix()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}

	m := primitive.NewMessage(cfg.Topic, b)
	tag := cfg.Tag
	if tag == "" {
		tag = evt.Event
	}
	m.WithTag(tag)

	keys := []string{evt.Event}
	shard := evt.Meta["type"]
	if evt.RoomID != "" {
		keys = append(keys, evt.RoomID)
		shard = evt.RoomID
	}
	if evt.Msg != nil && evt.Msg.MsgID != 0 {
		keys = append(keys, strconv.FormatInt(evt.Msg.MsgID, 10))
	}
	m.WithKeys(keys)
	if shard != "" {
		m.WithShardingKey(shard)
	}
	return m, nil
}
