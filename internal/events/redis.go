package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件投递参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Channel 为 PUBLISH 的频道。
	Channel string
	// Stream 非空时额外 LPUSH 到该 list，并按 MaxLen 截断。
	Stream string
	MaxLen int64
}

// RedisSink 通过 Redis PUBLISH 广播事件，可选地保留最近事件列表。
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	stream  string
	maxLen  int64
	owned   bool
}

// NewRedisSink 创建 Redis sink 并检测连通性。
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	sink := NewRedisSinkWithClient(client, cfg)
	sink.owned = true
	return sink, nil
}

// NewRedisSinkWithClient 复用已有客户端。
func NewRedisSinkWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisSink {
	channel := cfg.Channel
	if channel == "" {
		channel = "proofchain:events"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{client: client, channel: channel, stream: cfg.Stream, maxLen: maxLen}
}

// Emit 在一个 pipeline 中完成 PUBLISH 与可选的 LPUSH/LTRIM。
func (s *RedisSink) Emit(ctx context.Context, evt Event) error {
	payload, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, s.channel, payload)
		if s.stream != "" {
			pipe.LPush(ctx, s.stream, payload)
			pipe.LTrim(ctx, s.stream, 0, s.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭由 NewRedisSink 创建的连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ Sink = (*RedisSink)(nil)
