package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"multisig-core/internal/event"
	"multisig-core/internal/service/mq"
	"multisig-core/pkg/logger"
)

// Invalidator 多签视图缓存失效
type Invalidator interface {
	Invalidate(ctx context.Context, contractID string, requestIDs ...uint32)
}

// OutcomeSubscriber 消费签名终态事件，失效相关合约的缓存。
// 多实例部署时，其它实例提交的确认也能及时反映到本实例的视图
type OutcomeSubscriber struct {
	consumer mq.Consumer
	cache    Invalidator
	log      *zap.Logger
}

func NewOutcomeSubscriber(consumer mq.Consumer, cache Invalidator) *OutcomeSubscriber {
	return &OutcomeSubscriber{consumer: consumer, cache: cache, log: logger.Named("outcome")}
}

// Run 阻塞直到 ctx 取消
func (s *OutcomeSubscriber) Run(ctx context.Context) error {
	return s.consumer.Subscribe(ctx, event.TopicSigningOutcome, s.Handle)
}

// Handle 格式错误的消息直接确认丢弃；只处理多签合约调用
func (s *OutcomeSubscriber) Handle(ctx context.Context, msg *mq.Message) error {
	var ev event.SigningOutcomeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		s.log.Warn("无法解析事件", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if ev.Method == "" {
		return nil
	}

	var ids []uint32
	if ev.RequestID != nil {
		ids = append(ids, *ev.RequestID)
	}
	s.cache.Invalidate(ctx, ev.ReceiverID, ids...)
	s.log.Debug("已失效多签缓存",
		zap.String("flow_id", ev.FlowID),
		zap.String("contract", ev.ReceiverID),
		zap.String("method", ev.Method),
		zap.String("state", ev.State))
	return nil
}
