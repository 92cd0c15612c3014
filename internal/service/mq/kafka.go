package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"multisig-core/pkg/logger"
)

// KafkaProducer 实现 Producer 接口
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 按消息 Key 哈希分区，等待所有 ISR 副本确认
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
			BatchSize:              100,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

// Publish Topic 放在消息上，一个 Writer 可以写多个主题
func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: kafkaTopic(topic),
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka write error: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer 实现 Consumer 接口，手动提交 Offset
type KafkaConsumer struct {
	brokers []string
	groupID string
	reader  *kafka.Reader
	log     *zap.Logger
}

func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers: brokers,
		groupID: groupID,
		log:     logger.Named("mq.kafka"),
	}
}

func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       kafkaTopic(topic),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	c.log.Info("开始监听主题", zap.String("topic", topic), zap.String("group", c.groupID))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("读取消息错误", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		msg := &Message{
			ID:      strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10),
			Topic:   topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}
		if err := handler(ctx, msg); err != nil {
			// Kafka 不支持单条 Nack: 不提交 Offset，消费组重平衡或重启后会重新投递
			c.log.Warn("消息处理失败", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Warn("提交 Offset 失败", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

// kafkaTopic Kafka 主题名不允许 ':'
func kafkaTopic(topic string) string {
	out := []byte(topic)
	for i, b := range out {
		if b == ':' {
			out[i] = '.'
		}
	}
	return string(out)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
