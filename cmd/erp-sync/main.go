package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/config"
	"github.com/MahirK1/p-sub001/internal/db"
	"github.com/MahirK1/p-sub001/internal/erp"
	"github.com/MahirK1/p-sub001/internal/erpsync"
	"github.com/MahirK1/p-sub001/internal/metrics"
	"github.com/MahirK1/p-sub001/internal/repo"
	"github.com/MahirK1/p-sub001/pkg/producer"
)

func main() {
	var cfgPaths, envFile, kind string
	var once bool
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file loaded before the config")
	flag.BoolVar(&once, "once", false, "run one sync, print its stats and exit")
	flag.StringVar(&kind, "type", erpsync.KindAll, "sync type for -once: products, clients, branches or all")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPaths, envFile)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

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

	src := erp.NewSource(erp.Config{
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
	}, log)
	defer src.Close()

	syncer := erpsync.NewSyncer(src, repo.NewCatalogRepo(store.Gorm), repo.NewSettingsRepo(store.Gorm), cfg.ERP.DefaultProductTable, log)
	syncer.OnRow = func(entity, outcome string) { metrics.SyncRows.WithLabelValues(entity, outcome).Inc() }
	syncer.OnDone = func(entity string, d time.Duration) {
		metrics.SyncDuration.WithLabelValues(entity).Observe(d.Seconds())
	}

	if once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.Timeout)
		stats, err := syncer.Run(ctx, kind)
		cancel()
		if err != nil {
			log.Fatal("erp sync failed", zap.String("type", kind), zap.Error(err))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}

	prod, err := producer.New(cfg.RocketMQ)
	if err != nil {
		log.Fatal("rocketmq producer init failed", zap.Error(err))
	}
	defer prod.Close()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	sched := erpsync.NewScheduler(syncer, prod, log, erpsync.SchedulerOptions{
		Interval:   cfg.Sync.Interval,
		Timeout:    cfg.Sync.Timeout,
		RunOnStart: cfg.Sync.RunOnStart,
	})
	sched.Start()
	log.Info("erp-sync started",
		zap.Duration("interval", cfg.Sync.Interval),
		zap.String("erp_host", cfg.ERP.Host),
		zap.String("metrics", cfg.Metrics.Addr),
	)

	// Graceful shutdown
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	sched.Stop()
	log.Info("erp-sync stopped")
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
