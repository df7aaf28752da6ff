package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MahirK1/p-sub001/pkg/push"
	"github.com/MahirK1/p-sub001/pkg/store/storeiface"
)

// Gate guards calls to one push service host (see internal/breaker).
type Gate interface {
	Allow(key string) bool
	Success(key string)
	Failure(key string) (opened bool)
}

type Dispatcher struct {
	store    storeiface.SubscriptionStore
	provider push.Provider
	gate     Gate
	st       push.Settings
	log      *zap.Logger

	// OnResult, when set, observes every single-recipient outcome.
	OnResult func(res push.Result, err error)
}

func NewDispatcher(store storeiface.SubscriptionStore, provider push.Provider, gate Gate, st push.Settings, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		store:    store,
		provider: provider,
		gate:     gate,
		st:       st.WithDefaults(),
		log:      log,
	}
}

// SendToUser delivers n to the one subscription stored for userID.
// A missing subscription yields push.ErrNoSubscription and is not logged as a failure.
// A 404/410 from the push service removes the stored subscription.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, n push.Notification) (push.Result, error) {
	res, err := d.sendToUser(ctx, userID, n)
	res.At = time.Now()
	if err != nil {
		res.Error = err.Error()
	}
	if d.OnResult != nil {
		d.OnResult(res, err)
	}
	return res, err
}

func (d *Dispatcher) sendToUser(ctx context.Context, userID string, n push.Notification) (push.Result, error) {
	res := push.Result{UserID: userID, Provider: d.provider.Type()}
	if userID == "" {
		return res, push.ErrInvalidArgument
	}

	stored, err := d.store.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, push.ErrNoSubscription) {
			return res, push.ErrNoSubscription
		}
		return res, fmt.Errorf("push: load subscription: %w", err)
	}

	// rows written with p256dhKey/authKey after the startup migration still deliver
	keys, legacy, err := push.NormalizeKeys(stored.Keys)
	if err != nil {
		d.log.Warn("push subscription has unusable keys", zap.String("user_id", userID))
		return res, err
	}
	if legacy {
		d.log.Info("push subscription uses legacy key names", zap.String("user_id", userID))
	}

	payload, err := json.Marshal(push.BuildPayload(n, d.st))
	if err != nil {
		return res, err
	}

	host := endpointHost(stored.Endpoint)
	if d.gate != nil && !d.gate.Allow(host) {
		return res, push.ErrCircuitOpen
	}

	err = d.provider.Send(ctx, push.Subscription{UserID: userID, Endpoint: stored.Endpoint, Keys: keys}, payload)
	if err == nil {
		if d.gate != nil {
			d.gate.Success(host)
		}
		res.OK = true
		return res, nil
	}

	res.Status = push.StatusCode(err)
	if push.IsPermanent(err) {
		if derr := d.store.RemoveStale(ctx, userID, stored.Endpoint); derr != nil {
			d.log.Warn("remove stale push subscription failed", zap.String("user_id", userID), zap.Error(derr))
		} else {
			res.Removed = true
			d.log.Info("stale push subscription removed", zap.String("user_id", userID), zap.Int("status", res.Status))
		}
		return res, err
	}

	if d.gate != nil && countsAgainstHost(err) {
		if d.gate.Failure(host) {
			d.log.Warn("push service breaker opened", zap.String("host", host))
		}
	}
	d.log.Warn("push delivery failed", zap.String("user_id", userID), zap.Int("status", res.Status), zap.Error(err))
	return res, err
}

// SendToMultipleUsers dispatches to every recipient concurrently and waits for all of
// them, whatever their individual outcome. Failed recipients are not retried.
func (d *Dispatcher) SendToMultipleUsers(ctx context.Context, userIDs []string, n push.Notification) push.Summary {
	errs := make([]error, len(userIDs))

	var g errgroup.Group
	g.SetLimit(d.st.Concurrency)
	for i, uid := range userIDs {
		i, uid := i, uid
		g.Go(func() error {
			_, errs[i] = d.SendToUser(ctx, uid, n)
			return nil
		})
	}
	_ = g.Wait()

	sum := push.Summary{Total: len(userIDs)}
	for _, err := range errs {
		if err == nil {
			sum.Successful++
		} else {
			sum.Failed++
		}
	}
	return sum
}

func countsAgainstHost(err error) bool {
	code := push.StatusCode(err)
	if code == 0 {
		return !errors.Is(err, push.ErrNotConfigured) && !errors.Is(err, push.ErrInvalidArgument) &&
			!errors.Is(err, context.Canceled)
	}
	return code >= 500 || code == http.StatusTooManyRequests
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
