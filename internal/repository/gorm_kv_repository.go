package repository

import (
	"context"
	"errors"
	"oabt_client/internal/model"
	"oabt_client/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormKVRepository struct {
	DB *gorm.DB
}

func NewGormKVRepository(db *gorm.DB) *GormKVRepository {
	return &GormKVRepository{DB: db}
}

func (r *GormKVRepository) Get(ctx context.Context, key string) (string, error) {
	var entry model.KVEntry
	err := r.DB.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (r *GormKVRepository) Set(ctx context.Context, key, value string) error {
	return upsert(r.DB.WithContext(ctx), key, value)
}

func (r *GormKVRepository) Remove(ctx context.Context, key string) error {
	return r.DB.WithContext(ctx).Where("`key` = ?", key).Delete(&model.KVEntry{}).Error
}

func (r *GormKVRepository) MultiSet(ctx context.Context, pairs map[string]string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range pairs {
			if err := upsert(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormKVRepository) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Where("`key` IN ?", keys).Delete(&model.KVEntry{}).Error
}

func (r *GormKVRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func upsert(tx *gorm.DB, key, value string) error {
	entry := model.KVEntry{Key: key, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}
