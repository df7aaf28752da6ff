package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/pkg/push"
	"github.com/MahirK1/p-sub001/pkg/store/storeiface"
)

// PushRepo stores one push subscription per user.
type PushRepo struct {
	db  *gorm.DB
	now Clock
}

var _ storeiface.SubscriptionStore = (*PushRepo)(nil)

func NewPushRepo(db *gorm.DB) *PushRepo { return &PushRepo{db: db, now: utcNow} }

// Upsert replaces whatever subscription the user had before.
func (r *PushRepo) Upsert(ctx context.Context, userID, endpoint string, keys push.Keys) error {
	userID, endpoint = strings.TrimSpace(userID), strings.TrimSpace(endpoint)
	if userID == "" || endpoint == "" || !keys.Valid() {
		return push.ErrInvalidArgument
	}
	blob, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	now := r.now()
	row := model.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		Keys:      datatypes.JSON(blob),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"endpoint", "key_data", "updated_at"}),
	}).Create(&row).Error
}

func (r *PushRepo) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.PushSubscription{}).Error
}

func (r *PushRepo) GetSubscription(ctx context.Context, userID string) (storeiface.StoredSubscription, error) {
	var row model.PushSubscription
	err := r.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storeiface.StoredSubscription{}, push.ErrNoSubscription
	}
	if err != nil {
		return storeiface.StoredSubscription{}, err
	}
	return storeiface.StoredSubscription{
		UserID:    row.UserID,
		Endpoint:  row.Endpoint,
		Keys:      []byte(row.Keys),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *PushRepo) RemoveStale(ctx context.Context, userID, endpoint string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&model.PushSubscription{}).Error
}

func (r *PushRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.PushSubscription{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// MigrateLegacyKeys rewrites key blobs stored with p256dhKey/authKey into the
// canonical {p256dh, auth} shape. Blobs that cannot be repaired are left alone
// and counted as invalid; the dispatcher rejects them.
func (r *PushRepo) MigrateLegacyKeys(ctx context.Context) (migrated, invalid int, err error) {
	var rows []model.PushSubscription
	if err := r.db.WithContext(ctx).Select("id", "key_data").Find(&rows).Error; err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		keys, changed, kerr := push.NormalizeKeys(row.Keys)
		if kerr != nil {
			invalid++
			continue
		}
		if !changed {
			continue
		}
		blob, err := json.Marshal(keys)
		if err != nil {
			return migrated, invalid, err
		}
		if err := r.db.WithContext(ctx).Model(&model.PushSubscription{}).
			Where("id = ?", row.ID).
			Update("key_data", datatypes.JSON(blob)).Error; err != nil {
			return migrated, invalid, err
		}
		migrated++
	}
	return migrated, invalid, nil
}
