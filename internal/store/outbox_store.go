package store

import (
	"context"

	"gorm.io/gorm"

	"multisig-core/internal/model"
	"multisig-core/pkg/errno"
)

// OutboxStore 本地消息表读写，供 RelayService 使用
type OutboxStore struct {
	db *gorm.DB
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Pending 按写入顺序取一批待投递消息
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	var messages []model.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, errno.ErrDatabase.Wrap(err)
	}
	return messages, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxSent).Error
	if err != nil {
		return errno.ErrDatabase.Wrap(err)
	}
	return nil
}
