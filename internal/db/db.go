package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahirK1/p-sub001/internal/model"
)

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	ConnMaxIdle  time.Duration
	PingTimeout  time.Duration
	AutoMigrate  bool
}

type DB struct {
	SQL  *sql.DB
	Gorm *gorm.DB
}

// Open dials MySQL with the pool settings applied and hands the same pool to
// gorm, so both layers share connections.
func Open(opt Options, log *zap.Logger) (*DB, error) {
	if opt.PingTimeout == 0 {
		opt.PingTimeout = 2 * time.Second
	}

	dsn, err := NormalizeDSN(opt.DSN)
	if err != nil {
		return nil, err
	}
	d, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if opt.MaxOpenConns > 0 {
		d.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		d.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLife > 0 {
		d.SetConnMaxLifetime(opt.ConnMaxLife)
	}
	if opt.ConnMaxIdle > 0 {
		d.SetConnMaxIdleTime(opt.ConnMaxIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opt.PingTimeout)
	defer cancel()
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}

	g, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: d}), &gorm.Config{
		Logger: NewLogger(log),
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	if opt.AutoMigrate {
		if err := g.AutoMigrate(model.All()...); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return &DB{SQL: d, Gorm: g}, nil
}

func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// NormalizeDSN forces parseTime and UTC so DATETIME columns scan into time.Time.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// NewLogger routes gorm's slow-query and error output through zap.
func NewLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
