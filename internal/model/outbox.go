package model

import (
	"encoding/json"

	"gorm.io/gorm"
)

// NewOutboxMessage 序列化事件为待投递消息
func NewOutboxMessage(topic, key string, payload interface{}) (*OutboxMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: payloadBytes,
		Status:  OutboxPending,
	}, nil
}

// CreateOutboxMessage 在调用方的事务中创建 Outbox 消息
func CreateOutboxMessage(tx *gorm.DB, topic, key string, payload interface{}) error {
	msg, err := NewOutboxMessage(topic, key, payload)
	if err != nil {
		return err
	}
	return tx.Create(msg).Error
}
