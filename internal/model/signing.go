package model

import (
	"time"

	"gorm.io/gorm"
)

// SigningRecord 签名流程记录，每个流程一行，随状态变化更新
type SigningRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FlowID     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"flow_id"`
	Mode       string    `gorm:"type:varchar(16);not null" json:"mode"` // device, remote
	State      string    `gorm:"type:varchar(32);not null;index" json:"state"`
	SignerID   string    `gorm:"type:varchar(64);not null;index" json:"signer_id"`
	ReceiverID string    `gorm:"type:varchar(64);not null" json:"receiver_id"`
	Nonce      uint64    `gorm:"not null" json:"nonce"`
	TxHash     string    `gorm:"type:varchar(64)" json:"tx_hash"`
	Method     string    `gorm:"type:varchar(64)" json:"method"`
	RequestID  *uint32   `json:"request_id,omitempty"`
	Attempts   int       `gorm:"not null;default:1" json:"attempts"`
	ErrorCode  int       `json:"error_code"`
	Error      string    `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SigningRecord) TableName() string {
	return "signing_records"
}

// 消息状态
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
)

// OutboxMessage 本地消息表，和业务数据在同一事务中写入，由 RelayService 投递到 MQ
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// AllModels 返回所有需要迁移的数据库模型对象
func AllModels() []interface{} {
	return []interface{}{
		&SigningRecord{},
		&OutboxMessage{},
	}
}
