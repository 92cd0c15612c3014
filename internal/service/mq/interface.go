package mq

import "context"

// Message 代表一条通用的业务消息
type Message struct {
	ID      string // Redis Stream ID 或 Kafka partition/offset
	Topic   string
	Key     string // 分区键 (签名账户)，Kafka 按 Key 哈希保证同一账户有序
	Payload []byte // JSON
}

// Handler 返回 error 时消息不确认，之后会被重新投递
type Handler func(ctx context.Context, msg *Message) error

// Producer 生产者接口
type Producer interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 阻塞消费直到 ctx 取消
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
