// Package store 持久化签名流程记录，并在同一事务内写入终态事件的 Outbox 消息。
package store

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"multisig-core/internal/event"
	"multisig-core/internal/model"
	"multisig-core/internal/multisig"
	"multisig-core/internal/signing"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
)

type SigningStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSigningStore(db *gorm.DB) *SigningStore {
	return &SigningStore{db: db, log: logger.Named("store")}
}

// Record 实现 signing.Recorder；持久化失败只记录日志，不影响流程
func (s *SigningStore) Record(ctx context.Context, st signing.Status) {
	if err := s.Save(ctx, st); err != nil {
		s.log.Error("保存签名记录失败", zap.String("flow_id", st.ID), zap.String("state", string(st.State)), zap.Error(err))
	}
}

// Save 按 flow_id 更新记录；终态时在同一事务中写入 Outbox 事件
func (s *SigningStore) Save(ctx context.Context, st signing.Status) error {
	rec := RecordFromStatus(st)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "flow_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "tx_hash", "attempts", "error_code", "error", "updated_at",
			}),
		}).Create(&rec).Error
		if err != nil {
			return errno.ErrDatabase.Wrap(err)
		}

		if !st.State.Terminal() {
			return nil
		}
		if err := model.CreateOutboxMessage(tx, event.TopicSigningOutcome, st.SignerID, OutcomeEvent(st)); err != nil {
			return errno.ErrDatabase.Wrap(err)
		}
		return nil
	})
}

// GetByFlowID 查询流程记录
func (s *SigningStore) GetByFlowID(ctx context.Context, flowID string) (*model.SigningRecord, error) {
	var rec model.SigningRecord
	err := s.db.WithContext(ctx).Where("flow_id = ?", flowID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errno.ErrFlowNotFound
	}
	if err != nil {
		return nil, errno.ErrDatabase.Wrap(err)
	}
	return &rec, nil
}

// ListBySigner 签名账户最近的流程记录
func (s *SigningStore) ListBySigner(ctx context.Context, signerID string, limit int) ([]model.SigningRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []model.SigningRecord
	err := s.db.WithContext(ctx).
		Where("signer_id = ?", signerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errno.ErrDatabase.Wrap(err)
	}
	return recs, nil
}

// RecordFromStatus 流程快照转换为数据库记录
func RecordFromStatus(st signing.Status) model.SigningRecord {
	return model.SigningRecord{
		FlowID:     st.ID,
		Mode:       string(st.Mode),
		State:      string(st.State),
		SignerID:   st.SignerID,
		ReceiverID: st.ReceiverID,
		Nonce:      st.Nonce,
		TxHash:     st.TxHash,
		Method:     st.Meta[multisig.MetaMethod],
		RequestID:  requestID(st),
		Attempts:   st.Attempts,
		ErrorCode:  st.ErrorCode,
		Error:      st.Error,
		UpdatedAt:  st.UpdatedAt,
	}
}

// OutcomeEvent 终态快照转换为事件
func OutcomeEvent(st signing.Status) event.SigningOutcomeEvent {
	return event.SigningOutcomeEvent{
		FlowID:     st.ID,
		State:      string(st.State),
		SignerID:   st.SignerID,
		ReceiverID: st.ReceiverID,
		TxHash:     st.TxHash,
		Method:     st.Meta[multisig.MetaMethod],
		RequestID:  requestID(st),
		ErrorCode:  st.ErrorCode,
		Error:      st.Error,
		Attempts:   st.Attempts,
		At:         st.UpdatedAt,
	}
}

func requestID(st signing.Status) *uint32 {
	raw, ok := st.Meta[multisig.MetaRequestID]
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	id := uint32(n)
	return &id
}
