package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"multisig-core/internal/model"
	"multisig-core/internal/service/mq"
	"multisig-core/pkg/logger"
)

// Outbox 待投递消息来源
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, id uint64) error
}

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	outbox    Outbox
	producer  mq.Producer
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewRelayService(outbox Outbox, producer mq.Producer) *RelayService {
	return &RelayService{
		outbox:    outbox,
		producer:  producer,
		interval:  500 * time.Millisecond,
		batchSize: 50,
		log:       logger.Named("relay"),
	}
}

// Start 轮询直到 ctx 取消
func (s *RelayService) Start(ctx context.Context) {
	s.log.Info("启动消息中继服务")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("停止消息中继服务")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 投递一批消息，返回成功数量。
// 发送成功后才标记 SENT (至少一次投递)，消费方需要幂等
func (s *RelayService) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.Pending(ctx, s.batchSize)
	if err != nil {
		s.log.Warn("查询消息失败", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			s.log.Warn("发送消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		if err := s.outbox.MarkSent(ctx, msg.ID); err != nil {
			s.log.Warn("更新消息状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	s.log.Debug("消息已投递", zap.Int("sent", sent), zap.Int("batch", len(messages)))
	return sent
}
