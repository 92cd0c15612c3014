package mq

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"multisig-core/pkg/config"
)

// New 按 redis.mq_type 选择 Redis Streams 或 Kafka
func New(cfg *config.Config, rdb *redis.Client, group, name string) (Producer, Consumer, error) {
	switch cfg.Redis.MQType {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka.Brokers), NewKafkaConsumer(cfg.Kafka.Brokers, group), nil
	case "redis", "":
		if rdb == nil {
			return nil, nil, fmt.Errorf("mq_type=redis 需要 Redis 连接")
		}
		return NewRedisProducer(rdb), NewRedisConsumer(rdb, group, name), nil
	default:
		return nil, nil, fmt.Errorf("未知的 mq_type: %s", cfg.Redis.MQType)
	}
}
