// Package erp reads catalog and customer snapshots from the ERP's SQL Server.
package erp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
)

var (
	ErrInvalidTable  = errors.New("erp: invalid table name")
	ErrNotConfigured = errors.New("erp: source not configured")
	ErrClosed        = errors.New("erp: source closed")
)

type Config struct {
	Host                   string
	Port                   int
	Database               string
	User                   string
	Password               string
	Encrypt                bool
	TrustServerCertificate bool
	ConnectTimeout         time.Duration
	RequestTimeout         time.Duration
	ClientTable            string
	BranchTable            string
}

// Source owns the pool to the ERP database. The pool is opened on first use,
// pinged before every reuse and recreated when the ping fails. Close tears it down.
type Source struct {
	cfg    Config
	driver string
	dsn    string
	log    *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func NewSource(cfg Config, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Source{cfg: cfg, driver: "sqlserver", dsn: BuildDSN(cfg), log: log}
}

// BuildDSN renders the go-mssqldb URL form.
func BuildDSN(cfg Config) string {
	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if cfg.Encrypt {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	if cfg.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	if cfg.ConnectTimeout > 0 {
		secs := strconv.Itoa(int(cfg.ConnectTimeout / time.Second))
		q.Set("dial timeout", secs)
		q.Set("connection timeout", secs)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (s *Source) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.driver == "sqlserver" && s.cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	if s.db != nil {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		err := s.db.PingContext(pctx)
		cancel()
		if err == nil {
			return s.db, nil
		}
		s.log.Warn("erp pool unhealthy, reconnecting", zap.Error(err))
		_ = s.db.Close()
		s.db = nil
	}

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("erp: open: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("erp: connect: %w", err)
	}
	s.db = db
	s.log.Info("erp pool connected", zap.String("host", s.cfg.Host), zap.String("database", s.cfg.Database))
	return db, nil
}

// Close releases the pool. Later calls fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Source) query(ctx context.Context, q string, scan func(*sql.Rows) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("erp: query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("erp: scan: %w", err)
		}
	}
	return rows.Err()
}

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// QuoteTable validates schema.table (or table) and returns it bracket-quoted.
func QuoteTable(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !tableRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "[" + p + "]"
	}
	return strings.Join(parts, "."), nil
}
