package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MahirK1/p-sub001/pkg/push"
)

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_relay_online_conns",
		Help: "Current open websocket connections on this node.",
	})
	RelayMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_relay_messages_total",
		Help: "send-message outcomes (ok, ignored, not_member, error).",
	}, []string{"result"})
	RelaySendDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_relay_send_dropped_total",
		Help: "Connections dropped because their outbound queue was full.",
	})

	PushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_push_total",
		Help: "Web push deliveries by result (ok, no_subscription, invalid_keys, removed, failed).",
	}, []string{"result"})
	PushRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_push_subscriptions_removed_total",
		Help: "Subscriptions deleted after a 404/410 from the push service.",
	})
	PushQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_push_queue_dropped_total",
		Help: "Push tasks dropped because the notifier queue was full.",
	})
	PushBreakerOpen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_push_breaker_open_total",
		Help: "Times a circuit breaker opened for a push service host.",
	})

	SyncRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_sync_rows_total",
		Help: "ERP sync rows by entity and outcome (created, updated, error, skipped).",
	}, []string{"entity", "outcome"})
	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_sync_duration_seconds",
		Help:    "ERP sync duration per entity.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"entity"})
)

var once sync.Once

func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			OnlineConns, RelayMessages, RelaySendDropped,
			PushTotal, PushRemoved, PushQueueDropped, PushBreakerOpen,
			SyncRows, SyncDuration,
		)
	})
}

// ObservePush is a delivery.Dispatcher OnResult hook.
func ObservePush(res push.Result, err error) {
	switch {
	case err == nil:
		PushTotal.WithLabelValues("ok").Inc()
	case res.Removed:
		PushTotal.WithLabelValues("removed").Inc()
		PushRemoved.Inc()
	case errors.Is(err, push.ErrNoSubscription):
		PushTotal.WithLabelValues("no_subscription").Inc()
	case errors.Is(err, push.ErrInvalidKeys):
		PushTotal.WithLabelValues("invalid_keys").Inc()
	default:
		PushTotal.WithLabelValues("failed").Inc()
	}
}
