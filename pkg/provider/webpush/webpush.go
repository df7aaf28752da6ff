package webpush

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/MahirK1/p-sub001/pkg/push"
)

// Provider delivers encrypted payloads through the Web Push protocol (RFC 8030)
// signed with the configured VAPID key pair.
type Provider struct {
	cfg        push.Settings
	httpClient *http.Client
}

func New(cfg push.Settings) *Provider {
	return &Provider{
		cfg:        cfg.WithDefaults(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient swaps the transport client.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	if c != nil {
		p.httpClient = c
	}
	return p
}

func (p *Provider) Type() string { return "webpush" }

func (p *Provider) Send(ctx context.Context, sub push.Subscription, payload []byte) error {
	if !p.cfg.Configured() {
		return push.ErrNotConfigured
	}
	if sub.Endpoint == "" || !sub.Keys.Valid() {
		return push.ErrInvalidArgument
	}

	resp, err := wp.SendNotificationWithContext(ctx, payload, &wp.Subscription{
		Endpoint: sub.Endpoint,
		Keys: wp.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &wp.Options{
		HTTPClient:      p.httpClient,
		Subscriber:      p.cfg.Subject,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		TTL:             p.cfg.TTL,
		Urgency:         wp.Urgency(p.cfg.Urgency),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &push.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
