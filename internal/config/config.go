package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MahirK1/p-sub001/pkg/producer"
	"github.com/MahirK1/p-sub001/pkg/push"
)

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr string `yaml:"addr"` // ":7001"
	} `yaml:"http"`

	Metrics struct {
		Addr string `yaml:"addr"` // empty = served on the main mux
	} `yaml:"metrics"`

	MySQL struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxLife  time.Duration `yaml:"conn_max_life"`
		ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
		Channel  string `yaml:"channel"` // relay fan-out channel; empty = local only
	} `yaml:"redis"`

	WS struct {
		WriteWait      time.Duration `yaml:"write_wait"`
		PongWait       time.Duration `yaml:"pong_wait"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBuffer     int           `yaml:"send_buffer"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"ws"`

	Auth struct {
		Mode  string `yaml:"mode"` // session | jwt | trust
		Token struct {
			Header       string `yaml:"header"`
			BearerPrefix string `yaml:"bearer_prefix"`
			QueryKey     string `yaml:"query_key"`
			RedisPrefix  string `yaml:"redis_prefix"`
		} `yaml:"token"`
		JWT struct {
			Secret string `yaml:"secret"`
			Issuer string `yaml:"issuer"`
		} `yaml:"jwt"`
	} `yaml:"auth"`

	Push push.Settings `yaml:"push"`

	ERP ERP `yaml:"erp"`

	Sync struct {
		Enabled    bool          `yaml:"enabled"`
		Interval   time.Duration `yaml:"interval"`
		RunOnStart bool          `yaml:"run_on_start"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"sync"`

	RocketMQ producer.RocketMQSettings `yaml:"rocketmq"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	ID struct {
		MachineID uint16 `yaml:"machine_id"` // 0 = derive from private IP
	} `yaml:"id"`

	MemberCache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"member_cache"`
}

type ERP struct {
	Host                   string        `yaml:"host"`
	Port                   int           `yaml:"port"`
	Database               string        `yaml:"database"`
	User                   string        `yaml:"user"`
	Password               string        `yaml:"password"`
	Encrypt                bool          `yaml:"encrypt"`
	TrustServerCertificate bool          `yaml:"trust_server_certificate"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	ClientTable            string        `yaml:"client_table"`
	BranchTable            string        `yaml:"branch_table"`
	DefaultProductTable    string        `yaml:"default_product_table"`
}

// Load supports comma-separated config files: "-c common.yml,portal-rt.yml".
// Later files override earlier ones. envFile (optional) is loaded first so that
// ${VAR} references inside the YAML resolve against it.
func Load(pathList, envFile string) (*Config, error) {
	if strings.TrimSpace(pathList) == "" {
		return nil, errors.New("config path required (e.g. -c ./config.yml or -c common.yml,portal-rt.yml)")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var c Config
	paths := strings.Split(pathList, ",")
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
			return nil, err
		}
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "prod"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":7001"
	}
	if c.MySQL.MaxOpenConns <= 0 {
		c.MySQL.MaxOpenConns = 20
	}
	if c.MySQL.MaxIdleConns <= 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLife == 0 {
		c.MySQL.ConnMaxLife = 30 * time.Minute
	}
	if c.MySQL.ConnMaxIdle == 0 {
		c.MySQL.ConnMaxIdle = 5 * time.Minute
	}
	if c.WS.WriteWait == 0 {
		c.WS.WriteWait = 10 * time.Second
	}
	if c.WS.PongWait == 0 {
		c.WS.PongWait = 60 * time.Second
	}
	if c.WS.PingInterval == 0 || c.WS.PingInterval >= c.WS.PongWait {
		c.WS.PingInterval = c.WS.PongWait * 9 / 10
	}
	if c.WS.MaxMessageSize <= 0 {
		c.WS.MaxMessageSize = 16 << 10
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}

	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if c.Auth.Mode == "" {
		c.Auth.Mode = "session"
	}
	if c.Auth.Token.Header == "" {
		c.Auth.Token.Header = "Authorization"
	}
	if c.Auth.Token.BearerPrefix == "" {
		c.Auth.Token.BearerPrefix = "Bearer "
	}
	if c.Auth.Token.QueryKey == "" {
		c.Auth.Token.QueryKey = "token"
	}
	if c.Auth.Token.RedisPrefix == "" {
		c.Auth.Token.RedisPrefix = "portal:session:"
	}

	c.Push = c.Push.WithDefaults()

	if c.ERP.Port == 0 {
		c.ERP.Port = 1433
	}
	if c.ERP.ConnectTimeout == 0 {
		c.ERP.ConnectTimeout = 15 * time.Second
	}
	if c.ERP.RequestTimeout == 0 {
		c.ERP.RequestTimeout = 60 * time.Second
	}
	if c.ERP.ClientTable == "" {
		c.ERP.ClientTable = "dbo.Kunden"
	}
	if c.ERP.BranchTable == "" {
		c.ERP.BranchTable = "dbo.KundenFilialen"
	}
	if c.ERP.DefaultProductTable == "" {
		c.ERP.DefaultProductTable = "dbo.Lager"
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = time.Hour
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 10 * time.Minute
	}
	if c.MemberCache.TTL == 0 {
		c.MemberCache.TTL = 30 * time.Second
	}
}
