package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/auth"
	"github.com/MahirK1/p-sub001/internal/breaker"
	"github.com/MahirK1/p-sub001/internal/bus"
	"github.com/MahirK1/p-sub001/internal/config"
	"github.com/MahirK1/p-sub001/internal/db"
	"github.com/MahirK1/p-sub001/internal/erp"
	"github.com/MahirK1/p-sub001/internal/erpsync"
	"github.com/MahirK1/p-sub001/internal/httpapi"
	"github.com/MahirK1/p-sub001/internal/hub"
	"github.com/MahirK1/p-sub001/internal/idgen"
	"github.com/MahirK1/p-sub001/internal/membercache"
	"github.com/MahirK1/p-sub001/internal/metrics"
	"github.com/MahirK1/p-sub001/internal/relay"
	"github.com/MahirK1/p-sub001/internal/repo"
	"github.com/MahirK1/p-sub001/pkg/delivery"
	"github.com/MahirK1/p-sub001/pkg/producer"
	"github.com/MahirK1/p-sub001/pkg/provider/webpush"
)

var (
	// Version is injected via -ldflags "-X main.Version=..."
	Version = "dev"
)

// meteredGate counts breaker openings.
type meteredGate struct{ *breaker.Breaker }

func (g meteredGate) Failure(key string) bool {
	opened := g.Breaker.Failure(key)
	if opened {
		metrics.PushBreakerOpen.Inc()
	}
	return opened
}

func main() {
	var cfgPaths, envFile string
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	cfg, err := config.Load(cfgPaths, envFile)
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("load config failed", zap.Error(err))
	}
	log := newLogger(cfg.Env)
	defer log.Sync()
	log.Info("portal-rt starting", zap.String("version", Version), zap.String("addr", cfg.HTTP.Addr))

	metrics.Register()

	store, err := db.Open(db.Options{
		DSN:          cfg.MySQL.DSN,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		ConnMaxLife:  cfg.MySQL.ConnMaxLife,
		ConnMaxIdle:  cfg.MySQL.ConnMaxIdle,
		AutoMigrate:  true,
	}, log)
	if err != nil {
		log.Fatal("mysql init failed", zap.Error(err))
	}
	defer store.Close()

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		defer rdb.Close()
	}

	resolver, err := auth.NewResolver(auth.Options{
		Mode: cfg.Auth.Mode,
		Token: auth.TokenOptions{
			Header:       cfg.Auth.Token.Header,
			BearerPrefix: cfg.Auth.Token.BearerPrefix,
			QueryKey:     cfg.Auth.Token.QueryKey,
		},
		RedisPrefix: cfg.Auth.Token.RedisPrefix,
		JWTSecret:   cfg.Auth.JWT.Secret,
		JWTIssuer:   cfg.Auth.JWT.Issuer,
	}, rdb)
	if err != nil {
		log.Fatal("auth init failed", zap.Error(err))
	}

	ids, err := idgen.New(cfg.ID.MachineID)
	if err != nil {
		log.Fatal("id generator init failed", zap.Error(err))
	}
	chatRepo := repo.NewChatRepo(store.Gorm, ids)
	pushRepo := repo.NewPushRepo(store.Gorm)
	settingsRepo := repo.NewSettingsRepo(store.Gorm)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	migrated, invalid, err := pushRepo.MigrateLegacyKeys(ctx)
	cancel()
	if err != nil {
		log.Fatal("push key migration failed", zap.Error(err))
	}
	if migrated > 0 || invalid > 0 {
		log.Info("push keys migrated", zap.Int("migrated", migrated), zap.Int("invalid", invalid))
	}

	// Push
	var gate delivery.Gate
	if cfg.Push.Breaker.Enabled {
		gate = meteredGate{breaker.New(breaker.Options{
			Threshold: cfg.Push.Breaker.Threshold,
			Window:    cfg.Push.Breaker.Window,
			OpenFor:   cfg.Push.Breaker.OpenFor,
		})}
	}
	if !cfg.Push.Configured() {
		log.Warn("web push not configured; deliveries will fail with not configured")
	}
	dispatcher := delivery.NewDispatcher(pushRepo, webpush.New(cfg.Push), gate, cfg.Push, log)
	dispatcher.OnResult = metrics.ObservePush
	notifier := delivery.NewNotifier(dispatcher, log, delivery.NotifierOptions{
		QueueSize:   cfg.Push.QueueSize,
		WorkerCount: cfg.Push.Workers,
		OpTimeout:   cfg.Push.OpTimeout,
	})
	notifier.OnDrop = func(delivery.Task) { metrics.PushQueueDropped.Inc() }
	defer notifier.Close()

	prod, err := producer.New(cfg.RocketMQ)
	if err != nil {
		log.Fatal("rocketmq producer init failed", zap.Error(err))
	}
	defer prod.Close()

	// Relay
	h := hub.New()
	h.OnSlow = func(*hub.Conn) { metrics.RelaySendDropped.Inc() }

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var out bus.Broadcaster = bus.Local{Hub: h}
	if rdb != nil && cfg.Redis.Channel != "" {
		rb := bus.NewRedis(rdb, cfg.Redis.Channel, h, log)
		go func() { _ = rb.Run(runCtx) }()
		out = rb
	}

	members := membercache.New(cfg.MemberCache.TTL, chatRepo.MemberIDs)
	svc := relay.NewService(h, out, chatRepo, members, notifier, prod, log, relay.Options{ChatURL: cfg.Push.ChatURL})
	svc.OnMessage = func(result string) { metrics.RelayMessages.WithLabelValues(result).Inc() }

	ws := relay.NewHandler(svc, resolver, relay.WSOptions{
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		PingInterval:   cfg.WS.PingInterval,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	}, log)
	ws.OnOpen = metrics.OnlineConns.Inc
	ws.OnClose = metrics.OnlineConns.Dec

	// ERP sync (optional on this node)
	var trigger httpapi.SyncTrigger
	if cfg.Sync.Enabled {
		src := erp.NewSource(erpConfig(cfg), log)
		defer src.Close()

		syncer := erpsync.NewSyncer(src, repo.NewCatalogRepo(store.Gorm), settingsRepo, cfg.ERP.DefaultProductTable, log)
		syncer.OnRow = func(entity, outcome string) { metrics.SyncRows.WithLabelValues(entity, outcome).Inc() }
		syncer.OnDone = func(entity string, d time.Duration) {
			metrics.SyncDuration.WithLabelValues(entity).Observe(d.Seconds())
		}

		sched := erpsync.NewScheduler(syncer, prod, log, erpsync.SchedulerOptions{
			Interval:   cfg.Sync.Interval,
			Timeout:    cfg.Sync.Timeout,
			RunOnStart: cfg.Sync.RunOnStart,
		})
		sched.Start()
		defer sched.Stop()
		trigger = sched
	}

	api := httpapi.NewRouter(httpapi.Deps{
		Resolver:            resolver,
		Chat:                chatRepo,
		Push:                pushRepo,
		Sender:              dispatcher,
		Rooms:               svc,
		Sync:                trigger,
		Settings:            settingsRepo,
		DefaultProductTable: cfg.ERP.DefaultProductTable,
		VAPIDPublicKey:      cfg.Push.VAPIDPublicKey,
		WS:                  ws,
		Metrics:             metricsOnMain(cfg),
		CORSOrigins:         cfg.CORS.AllowedOrigins,
		SyncTimeout:         cfg.Sync.Timeout,
		Log:                 log,
	})
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("portal-rt stopped")
}

func newLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func metricsOnMain(cfg *config.Config) http.Handler {
	if cfg.Metrics.Addr != "" {
		return nil
	}
	return promhttp.Handler()
}

func erpConfig(cfg *config.Config) erp.Config {
	return erp.Config{
		Host:                   cfg.ERP.Host,
		Port:                   cfg.ERP.Port,
		Database:               cfg.ERP.Database,
		User:                   cfg.ERP.User,
		Password:               cfg.ERP.Password,
		Encrypt:                cfg.ERP.Encrypt,
		TrustServerCertificate: cfg.ERP.TrustServerCertificate,
		ConnectTimeout:         cfg.ERP.ConnectTimeout,
		RequestTimeout:         cfg.ERP.RequestTimeout,
		ClientTable:            cfg.ERP.ClientTable,
		BranchTable:            cfg.ERP.BranchTable,
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server error", zap.Error(err))
	}
}
