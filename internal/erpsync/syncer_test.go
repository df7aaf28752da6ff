package erpsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahirK1/p-sub001/internal/erp"
	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/internal/repo"
)

func str(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

type fakeReader struct {
	table    string
	products []erp.ProductRow
	clients  []erp.ClientRow
	branches []erp.BranchRow
	err      error
}

func (f *fakeReader) Products(_ context.Context, table string) ([]erp.ProductRow, error) {
	f.table = table
	return f.products, f.err
}
func (f *fakeReader) Clients(context.Context) ([]erp.ClientRow, error)  { return f.clients, f.err }
func (f *fakeReader) Branches(context.Context) ([]erp.BranchRow, error) { return f.branches, f.err }

type failingCatalog struct {
	Catalog
	failSku string
}

func (f failingCatalog) UpsertProduct(ctx context.Context, p model.Product) (*model.Product, bool, error) {
	if p.Sku == f.failSku {
		return nil, false, errors.New("constraint violation")
	}
	return f.Catalog.UpsertProduct(ctx, p)
}

func newStore(t *testing.T) (*gorm.DB, *repo.CatalogRepo, *repo.SettingsRepo) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	var n int64
	clock := func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second) }
	return db, repo.NewCatalogRepo(db).WithClock(clock), repo.NewSettingsRepo(db)
}

func TestSyncProductsCreatedThenUpdated(t *testing.T) {
	_, cat, settings := newStore(t)
	ctx := context.Background()
	src := &fakeReader{products: []erp.ProductRow{{Sku: str("A1"), Name: str("Widget"), Stock: int64(5), Price: 10.0}}}
	s := NewSyncer(src, cat, settings, "dbo.Lager", nil)

	st, err := s.SyncProducts(ctx)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if st != (Stats{Total: 1, Created: 1}) {
		t.Fatalf("first sync stats %+v", st)
	}

	src.products[0].Stock = int64(7)
	st, err = s.SyncProducts(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if st != (Stats{Total: 1, Updated: 1}) {
		t.Fatalf("second sync stats %+v", st)
	}

	p, err := cat.ProductBySku(ctx, "A1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Stock != 7 || p.Price == nil || *p.Price != 10 {
		t.Fatalf("stored product %+v", p)
	}
	if src.table != "dbo.Lager" {
		t.Fatalf("default table not used: %q", src.table)
	}
}

func TestSyncIdempotent(t *testing.T) {
	_, cat, settings := newStore(t)
	ctx := context.Background()
	src := &fakeReader{clients: []erp.ClientRow{
		{ErpID: str("C1"), Name: str("Apotheke Nord"), City: str("Wien")},
		{ErpID: str("C2"), Name: str("Apotheke Süd"), Email: str("  ")},
		{ErpID: str("C3"), Name: str("Spital")},
	}}
	s := NewSyncer(src, cat, settings, "dbo.Lager", nil)

	first, err := s.SyncClients(ctx)
	if err != nil || first != (Stats{Total: 3, Created: 3}) {
		t.Fatalf("first %+v %v", first, err)
	}
	second, err := s.SyncClients(ctx)
	if err != nil || second != (Stats{Total: 3, Updated: 3}) {
		t.Fatalf("second %+v %v", second, err)
	}
}

func TestSyncBranchesSkipsUnknownParent(t *testing.T) {
	db, cat, settings := newStore(t)
	ctx := context.Background()
	src := &fakeReader{
		branches: []erp.BranchRow{
			{ErpID: str("F1"), ClientErpID: str("C1"), Name: str("Filiale 1")},
			{ErpID: str("F2"), ClientErpID: str("C404"), Name: str("Waise")},
		},
	}
	s := NewSyncer(src, cat, settings, "dbo.Lager", nil)

	st, err := s.SyncBranches(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Total != 2 || st.Skipped != 2 || st.Created != 0 || st.Errors != 0 {
		t.Fatalf("stats %+v", st)
	}

	src.clients = []erp.ClientRow{{ErpID: str("C1"), Name: str("Apotheke")}}
	if _, err := s.SyncClients(ctx); err != nil {
		t.Fatalf("clients: %v", err)
	}
	st, err = s.SyncBranches(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Total != 2 || st.Created != 1 || st.Skipped != 1 {
		t.Fatalf("stats after parent arrived %+v", st)
	}

	var n int64
	db.Model(&model.ClientBranch{}).Where("erp_id = ?", "F2").Count(&n)
	if n != 0 {
		t.Fatalf("orphan branch must never be created")
	}
}

func TestSyncCountsRowErrorsAndContinues(t *testing.T) {
	_, cat, settings := newStore(t)
	ctx := context.Background()
	src := &fakeReader{products: []erp.ProductRow{
		{Sku: str("A1"), Name: str("ok"), Stock: int64(1)},
		{Sku: sql.NullString{}, Name: str("no sku")},
		{Sku: str("BAD"), Name: str("rejected by store")},
		{Sku: str("A2"), Name: str("ok too"), Stock: "3", Price: "4,20", Manufacturer: str("ACME")},
	}}
	s := NewSyncer(src, failingCatalog{Catalog: cat, failSku: "BAD"}, settings, "dbo.Lager", nil)

	var outcomes []string
	s.OnRow = func(entity, outcome string) { outcomes = append(outcomes, entity+":"+outcome) }

	st, err := s.SyncProducts(ctx)
	if err != nil {
		t.Fatalf("row errors must not fail the sync: %v", err)
	}
	if st != (Stats{Total: 4, Created: 2, Errors: 2}) {
		t.Fatalf("stats %+v", st)
	}
	if len(outcomes) != 4 || outcomes[1] != "products:error" {
		t.Fatalf("outcomes %v", outcomes)
	}

	p, err := cat.ProductBySku(ctx, "A2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Brand == nil || p.Brand.ErpID != "ACME" || p.Price == nil || *p.Price != 4.2 || p.Stock != 3 {
		t.Fatalf("mapping wrong: %+v", p)
	}
}

func TestSyncConnectionErrorPropagates(t *testing.T) {
	_, cat, settings := newStore(t)
	boom := errors.New("erp: connect: timeout")
	s := NewSyncer(&fakeReader{err: boom}, cat, settings, "dbo.Lager", nil)

	if _, err := s.SyncClients(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if _, err := s.Run(context.Background(), KindAll); !errors.Is(err, boom) {
		t.Fatalf("expected connection error from all, got %v", err)
	}
}

func TestProductTableFromSetting(t *testing.T) {
	_, cat, settings := newStore(t)
	ctx := context.Background()
	if err := settings.Set(ctx, model.SettingErpLagerTable, "dbo.Lager2025"); err != nil {
		t.Fatalf("set: %v", err)
	}
	src := &fakeReader{}
	s := NewSyncer(src, cat, settings, "dbo.Lager", nil)
	if _, err := s.SyncProducts(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if src.table != "dbo.Lager2025" {
		t.Fatalf("setting not honoured: %q", src.table)
	}
}

func TestRunAllStatsShape(t *testing.T) {
	_, cat, settings := newStore(t)
	src := &fakeReader{
		products: []erp.ProductRow{{Sku: str("A1"), Name: str("Widget")}},
		clients:  []erp.ClientRow{{ErpID: str("C1"), Name: str("Apotheke")}},
		branches: []erp.BranchRow{{ErpID: str("F1"), ClientErpID: str("C1")}, {ErpID: str("F2"), ClientErpID: str("C9")}},
	}
	s := NewSyncer(src, cat, settings, "dbo.Lager", nil)

	out, err := s.Run(context.Background(), "all")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, _ := json.Marshal(out)
	var got map[string]map[string]int
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	if got["products"]["created"] != 1 || got["clients"]["created"] != 1 {
		t.Fatalf("unexpected %s", b)
	}
	if got["branches"]["created"] != 1 || got["branches"]["skipped"] != 1 || got["branches"]["total"] != 2 {
		t.Fatalf("unexpected branches %s", b)
	}

	if _, err := s.Run(context.Background(), "orders"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
