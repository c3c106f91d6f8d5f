// Package state 客户端键值状态仓库
package state

import (
	"context"
	"errors"

	"github.com/anoixa/image-gallery/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 键值状态仓库
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get 读取键，不存在时返回 ("", false, nil)
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var state models.ClientState
	err := r.db.WithContext(ctx).Where("state_key = ?", key).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return state.Value, true, nil
}

// Put 写入或覆盖键
func (r *Repository) Put(ctx context.Context, key, value string) error {
	state := models.ClientState{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
}

// Delete 删除键，不存在时不报错
func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("state_key = ?", key).Delete(&models.ClientState{}).Error
}
