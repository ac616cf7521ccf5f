package main

import (
	"context"
	"fmt"
	"time"

	"ProofChain/internal/auth"
	"ProofChain/internal/config"
	"ProofChain/internal/events"
	"ProofChain/internal/proofs"
	"ProofChain/internal/receipt"
	"ProofChain/internal/storage"
	"ProofChain/internal/storage/leveldb"
	mysqlstore "ProofChain/internal/storage/mysql"
	redisstore "ProofChain/internal/storage/redis"
	"ProofChain/pkg/logger"
)

func loggerConfig(c config.LogConfig) logger.Config {
	return logger.Config{
		Level:       c.Level,
		Format:      c.Format,
		OutputPaths: c.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    c.Audit.Enabled,
			Path:       c.Audit.Path,
			MaxSizeMB:  c.Audit.MaxSizeMB,
			MaxBackups: c.Audit.MaxBackups,
			MaxAgeDays: c.Audit.MaxAgeDays,
			Compress:   c.Audit.Compress,
		},
	}
}

func mysqlConfig(c config.MySQLConfig) mysqlstore.Config {
	return mysqlstore.Config{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetimeSeconds) * time.Second,
	}
}

// openStore 根据配置打开键值存储。
func openStore(ctx context.Context, c config.StorageConfig) (storage.Store, error) {
	switch c.Driver {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "leveldb":
		s, err := leveldb.Open(leveldb.Config{Path: c.LevelDB.Path, SyncWrites: c.LevelDB.SyncWrites})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Config{
			Address:  c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mysql":
		s, err := mysqlstore.NewKVStore(ctx, mysqlConfig(c.MySQL))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", c.Driver)
	}
}

// maxProofIDLength 返回存储驱动允许的证明 ID 上限，0 表示不限制。
func maxProofIDLength(driver string) int {
	if driver == "mysql" {
		return proofs.MaxProofIDLength(mysqlstore.MaxKeyLength)
	}
	return 0
}

// openSink 根据配置构造事件通道，多个通道以 Fanout 组合。
func openSink(ctx context.Context, c config.EventsConfig) (events.Sink, func(), error) {
	var sinks []events.Sink
	fanout := func() *events.Fanout { return events.NewFanout(sinks...) }
	for _, name := range c.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, events.NewLogSink(logger.Named("events")))
		case "memory":
			sinks = append(sinks, events.NewMemorySink(c.MemoryCapacity))
		case "redis":
			s, err := events.NewRedisSink(ctx, events.RedisConfig{
				Address:  c.Redis.Address,
				Password: c.Redis.Password,
				DB:       c.Redis.DB,
				Channel:  c.Redis.Channel,
				Stream:   c.Redis.Stream,
				MaxLen:   c.Redis.MaxLen,
			})
			if err != nil {
				_ = fanout().Close()
				return nil, nil, err
			}
			sinks = append(sinks, s)
		case "rabbitmq":
			s, err := events.NewRabbitMQSink(events.RabbitMQConfig{
				URL:      c.RabbitMQ.URL,
				Exchange: c.RabbitMQ.Exchange,
				Queue:    c.RabbitMQ.Queue,
				Durable:  c.RabbitMQ.Durable,
			})
			if err != nil {
				_ = fanout().Close()
				return nil, nil, err
			}
			sinks = append(sinks, s)
		default:
			_ = fanout().Close()
			return nil, nil, fmt.Errorf("未知的事件通道: %s", name)
		}
	}
	f := fanout()
	return f, func() { _ = f.Close() }, nil
}

// openReceipts 根据配置打开回执存储。
func openReceipts(ctx context.Context, c config.ReceiptsConfig) (receipt.Store, error) {
	switch c.Driver {
	case "", "memory":
		return receipt.NewMemoryStore(), nil
	case "mysql":
		s, err := receipt.NewMySQLStore(ctx, mysqlConfig(c.MySQL))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("未知的回执存储: %s", c.Driver)
	}
}

func newAuthService(c config.AuthConfig) (*auth.Service, error) {
	return auth.NewService(auth.Config{
		Mode:   auth.Mode(c.Mode),
		Header: c.Header,
		JWT: auth.JWTOptions{
			Secret:   c.JWT.Secret,
			Issuer:   c.JWT.Issuer,
			Audience: c.JWT.Audience,
			Leeway:   time.Duration(c.JWT.LeewaySeconds) * time.Second,
			TTL:      time.Duration(c.JWT.TTLSeconds) * time.Second,
		},
	})
}
