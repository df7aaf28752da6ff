package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MahirK1/p-sub001/internal/model"
)

type SettingsRepo struct {
	db  *gorm.DB
	now Clock
}

func NewSettingsRepo(db *gorm.DB) *SettingsRepo { return &SettingsRepo{db: db, now: utcNow} }

// Get returns ok=false when the key was never set.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var s model.AppSetting
	err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	s := model.AppSetting{Key: key, Value: value, UpdatedAt: r.now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
}
