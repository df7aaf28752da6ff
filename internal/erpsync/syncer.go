// Package erpsync reconciles ERP snapshots into the portal store.
package erpsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/erp"
	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/internal/repo"
)

const (
	KindProducts = "products"
	KindClients  = "clients"
	KindBranches = "branches"
	KindAll      = "all"
)

var ErrUnknownKind = errors.New("erpsync: unknown sync type")

// Reader is the ERP side (*erp.Source).
type Reader interface {
	Products(ctx context.Context, table string) ([]erp.ProductRow, error)
	Clients(ctx context.Context) ([]erp.ClientRow, error)
	Branches(ctx context.Context) ([]erp.BranchRow, error)
}

// Catalog is the portal side (*repo.CatalogRepo).
type Catalog interface {
	UpsertBrand(ctx context.Context, erpID, name string) (*model.Brand, error)
	UpsertProduct(ctx context.Context, p model.Product) (*model.Product, bool, error)
	UpsertClient(ctx context.Context, c model.Client) (*model.Client, bool, error)
	UpsertBranch(ctx context.Context, b model.ClientBranch) (*model.ClientBranch, bool, error)
	ClientIDByErpID(ctx context.Context, erpID string) (uint, error)
}

// Settings resolves runtime overrides (*repo.SettingsRepo).
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type Stats struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

type BranchStats struct {
	Stats
	Skipped int `json:"skipped"`
}

type AllStats struct {
	Products *Stats       `json:"products,omitempty"`
	Clients  *Stats       `json:"clients,omitempty"`
	Branches *BranchStats `json:"branches,omitempty"`
}

type Syncer struct {
	src          Reader
	cat          Catalog
	settings     Settings
	defaultTable string
	log          *zap.Logger

	// OnRow, when set, observes every row outcome (created, updated, error, skipped).
	OnRow func(entity, outcome string)
	// OnDone, when set, observes the duration of every entity sync.
	OnDone func(entity string, d time.Duration)
}

func NewSyncer(src Reader, cat Catalog, settings Settings, defaultTable string, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{src: src, cat: cat, settings: settings, defaultTable: defaultTable, log: log}
}

// Run syncs one kind and returns its stats (Stats, BranchStats or AllStats).
func (s *Syncer) Run(ctx context.Context, kind string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindProducts:
		return s.SyncProducts(ctx)
	case KindClients:
		return s.SyncClients(ctx)
	case KindBranches:
		return s.SyncBranches(ctx)
	case KindAll, "":
		return s.SyncAll(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// SyncAll runs clients before branches so new parents resolve in the same pass.
// It stops at the first connection-level error and returns what completed.
func (s *Syncer) SyncAll(ctx context.Context) (AllStats, error) {
	var out AllStats
	p, err := s.SyncProducts(ctx)
	if err != nil {
		return out, err
	}
	out.Products = &p
	c, err := s.SyncClients(ctx)
	if err != nil {
		return out, err
	}
	out.Clients = &c
	b, err := s.SyncBranches(ctx)
	if err != nil {
		return out, err
	}
	out.Branches = &b
	return out, nil
}

// ProductTable is the runtime erp_lager_table setting, or the configured default.
func (s *Syncer) ProductTable(ctx context.Context) (string, error) {
	if s.settings != nil {
		v, ok, err := s.settings.Get(ctx, model.SettingErpLagerTable)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return s.defaultTable, nil
}

func (s *Syncer) SyncProducts(ctx context.Context) (Stats, error) {
	defer s.timed(KindProducts)()
	var st Stats

	table, err := s.ProductTable(ctx)
	if err != nil {
		return st, fmt.Errorf("erpsync: product table: %w", err)
	}
	rows, err := s.src.Products(ctx, table)
	if err != nil {
		return st, err
	}

	brands := make(map[string]uint)
	for _, r := range rows {
		st.Total++
		created, err := s.product(ctx, r, brands)
		s.count(&st, KindProducts, created, err)
		if err != nil {
			s.log.Warn("product sync failed", zap.String("sku", erp.Text(r.Sku)), zap.Error(err))
		}
	}
	s.log.Info("products synced", zap.String("table", table), zap.Int("total", st.Total),
		zap.Int("created", st.Created), zap.Int("updated", st.Updated), zap.Int("errors", st.Errors))
	return st, nil
}

func (s *Syncer) product(ctx context.Context, r erp.ProductRow, brands map[string]uint) (bool, error) {
	sku := erp.Text(r.Sku)
	if sku == "" {
		return false, errors.New("missing sku")
	}
	p := model.Product{
		Sku:     sku,
		Name:    erp.Text(r.Name),
		Stock:   erp.Stock(r.Stock),
		Price:   erp.Price(r.Price),
		Unit:    erp.Optional(r.Unit),
		Barcode: erp.Optional(r.Barcode),
	}
	if m := erp.Text(r.Manufacturer); m != "" {
		id, ok := brands[m]
		if !ok {
			b, err := s.cat.UpsertBrand(ctx, m, m)
			if err != nil {
				return false, fmt.Errorf("brand %q: %w", m, err)
			}
			id = b.ID
			brands[m] = id
		}
		p.BrandID = &id
	}
	_, created, err := s.cat.UpsertProduct(ctx, p)
	return created, err
}

func (s *Syncer) SyncClients(ctx context.Context) (Stats, error) {
	defer s.timed(KindClients)()
	var st Stats

	rows, err := s.src.Clients(ctx)
	if err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Total++
		created, err := s.client(ctx, r)
		s.count(&st, KindClients, created, err)
		if err != nil {
			s.log.Warn("client sync failed", zap.String("erp_id", erp.Text(r.ErpID)), zap.Error(err))
		}
	}
	s.log.Info("clients synced", zap.Int("total", st.Total),
		zap.Int("created", st.Created), zap.Int("updated", st.Updated), zap.Int("errors", st.Errors))
	return st, nil
}

func (s *Syncer) client(ctx context.Context, r erp.ClientRow) (bool, error) {
	id := erp.Text(r.ErpID)
	if id == "" {
		return false, errors.New("missing erp id")
	}
	_, created, err := s.cat.UpsertClient(ctx, model.Client{
		ErpID:   id,
		Name:    erp.Text(r.Name),
		Address: erp.Optional(r.Address),
		City:    erp.Optional(r.City),
		Zip:     erp.Optional(r.Zip),
		Phone:   erp.Optional(r.Phone),
		Email:   erp.Optional(r.Email),
		TaxID:   erp.Optional(r.TaxID),
	})
	return created, err
}

// SyncBranches skips branches whose parent client is not in the local store.
// Skipped rows are not remembered; the next snapshot evaluates them again.
func (s *Syncer) SyncBranches(ctx context.Context) (BranchStats, error) {
	defer s.timed(KindBranches)()
	var st BranchStats

	rows, err := s.src.Branches(ctx)
	if err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Total++
		id := erp.Text(r.ErpID)
		parent := erp.Text(r.ClientErpID)
		if id == "" {
			s.count(&st.Stats, KindBranches, false, errors.New("missing erp id"))
			s.log.Warn("branch sync failed", zap.String("client_erp_id", parent), zap.String("reason", "missing erp id"))
			continue
		}

		clientID, err := s.cat.ClientIDByErpID(ctx, parent)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && parent == "") {
			st.Skipped++
			s.observe(KindBranches, "skipped")
			s.log.Debug("branch skipped, parent client unknown", zap.String("erp_id", id), zap.String("client_erp_id", parent))
			continue
		}
		if err != nil {
			s.count(&st.Stats, KindBranches, false, err)
			s.log.Warn("branch sync failed", zap.String("erp_id", id), zap.Error(err))
			continue
		}

		_, created, err := s.cat.UpsertBranch(ctx, model.ClientBranch{
			ErpID:    id,
			ClientID: clientID,
			Name:     erp.Text(r.Name),
			Address:  erp.Optional(r.Address),
			City:     erp.Optional(r.City),
			Zip:      erp.Optional(r.Zip),
			Phone:    erp.Optional(r.Phone),
		})
		s.count(&st.Stats, KindBranches, created, err)
		if err != nil {
			s.log.Warn("branch sync failed", zap.String("erp_id", id), zap.Error(err))
		}
	}
	s.log.Info("branches synced", zap.Int("total", st.Total), zap.Int("created", st.Created),
		zap.Int("updated", st.Updated), zap.Int("errors", st.Errors), zap.Int("skipped", st.Skipped))
	return st, nil
}

func (s *Syncer) count(st *Stats, entity string, created bool, err error) {
	switch {
	case err != nil:
		st.Errors++
		s.observe(entity, "error")
	case created:
		st.Created++
		s.observe(entity, "created")
	default:
		st.Updated++
		s.observe(entity, "updated")
	}
}

func (s *Syncer) observe(entity, outcome string) {
	if s.OnRow != nil {
		s.OnRow(entity, outcome)
	}
}

func (s *Syncer) timed(entity string) func() {
	start := time.Now()
	return func() {
		if s.OnDone != nil {
			s.OnDone(entity, time.Since(start))
		}
	}
}
