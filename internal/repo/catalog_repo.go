package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MahirK1/p-sub001/internal/model"
)

// CatalogRepo upserts ERP-owned records keyed by their external id or SKU.
// Every upsert reports created=true when the row's createdAt equals its updatedAt
// after the write.
type CatalogRepo struct {
	db  *gorm.DB
	now Clock
}

func NewCatalogRepo(db *gorm.DB) *CatalogRepo { return &CatalogRepo{db: db, now: utcNow} }

func (r *CatalogRepo) WithClock(now Clock) *CatalogRepo {
	r.now = now
	return r
}

func (r *CatalogRepo) UpsertBrand(ctx context.Context, erpID, name string) (*model.Brand, error) {
	erpID = strings.TrimSpace(erpID)
	if erpID == "" {
		return nil, errors.New("repo: brand erp id required")
	}
	now := r.now()
	b := model.Brand{ErpID: erpID, Name: name, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "erp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&b).Error
	if err != nil {
		return nil, err
	}
	var out model.Brand
	if err := r.db.WithContext(ctx).First(&out, "erp_id = ?", erpID).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *CatalogRepo) UpsertProduct(ctx context.Context, p model.Product) (*model.Product, bool, error) {
	now := r.now()
	p.ID, p.Brand = 0, nil
	p.CreatedAt, p.UpdatedAt = now, now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "stock", "price", "unit", "barcode", "brand_id", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return nil, false, err
	}
	var out model.Product
	if err := r.db.WithContext(ctx).First(&out, "sku = ?", p.Sku).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &out, out.CreatedAt.Equal(out.UpdatedAt), nil
}

func (r *CatalogRepo) UpsertClient(ctx context.Context, c model.Client) (*model.Client, bool, error) {
	now := r.now()
	c.ID = 0
	c.CreatedAt, c.UpdatedAt = now, now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "erp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "address", "city", "zip", "phone", "email", "tax_id", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return nil, false, err
	}
	var out model.Client
	if err := r.db.WithContext(ctx).First(&out, "erp_id = ?", c.ErpID).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &out, out.CreatedAt.Equal(out.UpdatedAt), nil
}

func (r *CatalogRepo) UpsertBranch(ctx context.Context, b model.ClientBranch) (*model.ClientBranch, bool, error) {
	now := r.now()
	b.ID = 0
	b.CreatedAt, b.UpdatedAt = now, now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "erp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "name", "address", "city", "zip", "phone", "updated_at"}),
	}).Create(&b).Error
	if err != nil {
		return nil, false, err
	}
	var out model.ClientBranch
	if err := r.db.WithContext(ctx).First(&out, "erp_id = ?", b.ErpID).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &out, out.CreatedAt.Equal(out.UpdatedAt), nil
}

// ClientIDByErpID resolves a local client id; ErrNotFound when the client is unknown.
func (r *CatalogRepo) ClientIDByErpID(ctx context.Context, erpID string) (uint, error) {
	var c model.Client
	err := r.db.WithContext(ctx).Select("id").First(&c, "erp_id = ?", erpID).Error
	if err != nil {
		return 0, notFound(err)
	}
	return c.ID, nil
}

func (r *CatalogRepo) ProductBySku(ctx context.Context, sku string) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Preload("Brand").First(&p, "sku = ?", sku).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *CatalogRepo) CountBranches(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ClientBranch{}).Count(&n).Error
	return n, err
}
