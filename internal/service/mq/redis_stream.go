package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"multisig-core/pkg/logger"
)

// RedisProducer 基于 Redis Streams (XADD)
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, maxLen: 10000}
}

func (p *RedisProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// Close 连接由调用方持有
func (p *RedisProducer) Close() error {
	return nil
}

// RedisConsumer 消费组读取 (XREADGROUP)，处理成功后 XACK
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	log    *zap.Logger
}

func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
		log:    logger.Named("mq.redis"),
	}
}

func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	// XGROUP CREATE <stream> <group> $ MKSTREAM
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}
	c.log.Info("开始监听主题", zap.String("topic", topic), zap.String("group", c.group))

	// 先处理本消费者未确认的历史消息 ("0")，再读新消息 (">")
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, cursor},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
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

		delivered := 0
		for _, stream := range streams {
			for _, x := range stream.Messages {
				delivered++
				c.dispatch(ctx, topic, x, handler)
			}
		}
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

func (c *RedisConsumer) dispatch(ctx context.Context, topic string, x redis.XMessage, handler Handler) {
	payload, ok := x.Values["payload"].(string)
	if !ok {
		c.log.Warn("消息格式错误: payload 缺失", zap.String("id", x.ID))
		c.ack(ctx, topic, x.ID)
		return
	}
	key, _ := x.Values["key"].(string)

	msg := &Message{ID: x.ID, Topic: topic, Key: key, Payload: []byte(payload)}
	if err := handler(ctx, msg); err != nil {
		c.log.Warn("消息处理失败", zap.String("id", x.ID), zap.Error(err))
		return
	}
	c.ack(ctx, topic, x.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		c.log.Warn("XACK 失败", zap.String("id", id), zap.Error(err))
	}
}

// Close 连接由调用方持有
func (c *RedisConsumer) Close() error {
	return nil
}
