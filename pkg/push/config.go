package push

import (
	"strings"
	"time"
)

type Settings struct {
	Enabled         bool            `yaml:"enabled" json:"enabled"`
	VAPIDPublicKey  string          `yaml:"vapid_public_key" json:"vapidPublicKey"`
	VAPIDPrivateKey string          `yaml:"vapid_private_key" json:"-"`
	Subject         string          `yaml:"subject" json:"subject"`
	TTL             int             `yaml:"ttl" json:"ttl"` // seconds the push service keeps an undelivered message
	Urgency         string          `yaml:"urgency" json:"urgency"`
	Icon            string          `yaml:"icon" json:"icon"`
	Badge           string          `yaml:"badge" json:"badge"`
	ChatURL         string          `yaml:"chat_url" json:"chatUrl"`
	Concurrency     int             `yaml:"concurrency" json:"concurrency"`
	Workers         int             `yaml:"workers" json:"workers"`
	QueueSize       int             `yaml:"queue_size" json:"queueSize"`
	OpTimeout       time.Duration   `yaml:"op_timeout" json:"opTimeout"`
	Breaker         BreakerSettings `yaml:"breaker" json:"breaker"`
}

type BreakerSettings struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Threshold int           `yaml:"threshold" json:"threshold"`
	Window    time.Duration `yaml:"window" json:"window"`
	OpenFor   time.Duration `yaml:"open_for" json:"openFor"`
}

func (s Settings) WithDefaults() Settings {
	o := s
	if o.TTL <= 0 {
		o.TTL = 24 * 60 * 60
	}
	o.Urgency = strings.ToLower(strings.TrimSpace(o.Urgency))
	switch o.Urgency {
	case "very-low", "low", "normal", "high":
	default:
		o.Urgency = "normal"
	}
	if o.Icon == "" {
		o.Icon = "/icons/icon-192x192.png"
	}
	if o.Badge == "" {
		o.Badge = "/icons/badge-72x72.png"
	}
	if o.ChatURL == "" {
		o.ChatURL = "/chat?room=%s"
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 16
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 15 * time.Second
	}
	if o.Breaker.Threshold <= 0 {
		o.Breaker.Threshold = 5
	}
	if o.Breaker.Window <= 0 {
		o.Breaker.Window = 30 * time.Second
	}
	if o.Breaker.OpenFor <= 0 {
		o.Breaker.OpenFor = 30 * time.Second
	}
	return o
}

// Configured reports whether VAPID credentials are present.
func (s Settings) Configured() bool {
	return s.Enabled && s.VAPIDPublicKey != "" && s.VAPIDPrivateKey != ""
}
