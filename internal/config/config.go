package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvConfigPath    = "PROOFD_CONFIG"
	EnvAddress       = "PROOFD_ADDRESS"
	EnvStorageDriver = "PROOFD_STORAGE_DRIVER"
	EnvJWTSecret     = "PROOFD_JWT_SECRET"
)

// Config 描述了 proofd 在启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Receipts ReceiptsConfig `json:"receipts" yaml:"receipts"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                  string `json:"address" yaml:"address"`
	ReadHeaderTimeoutSeconds int    `json:"read_header_timeout_seconds" yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level       string         `json:"level" yaml:"level"`
	Format      string         `json:"format" yaml:"format"`
	OutputPaths []string       `json:"output_paths" yaml:"output_paths"`
	Audit       AuditLogConfig `json:"audit" yaml:"audit"`
}

// AuditLogConfig 控制审计日志及其滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// StorageConfig 选择键值存储后端。
type StorageConfig struct {
	Driver  string        `json:"driver" yaml:"driver"`
	LevelDB LevelDBConfig `json:"leveldb" yaml:"leveldb"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	MySQL   MySQLConfig   `json:"mysql" yaml:"mysql"`
}

// LevelDBConfig 描述本地 LevelDB 存储。
type LevelDBConfig struct {
	Path       string `json:"path" yaml:"path"`
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// MySQLConfig 描述 MySQL 连接池。
type MySQLConfig struct {
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

// EventsConfig 选择事件投递通道，多个通道会被同时写入。
type EventsConfig struct {
	Sinks          []string            `json:"sinks" yaml:"sinks"`
	MemoryCapacity int                 `json:"memory_capacity" yaml:"memory_capacity"`
	Redis          RedisEventsConfig   `json:"redis" yaml:"redis"`
	RabbitMQ       RabbitMQEventConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisEventsConfig 描述 Redis 发布通道。
type RedisEventsConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
	Stream   string `json:"stream" yaml:"stream"`
	MaxLen   int64  `json:"max_len" yaml:"max_len"`
}

// RabbitMQEventConfig 描述 RabbitMQ 交换机。
type RabbitMQEventConfig struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Queue    string `json:"queue" yaml:"queue"`
	Durable  bool   `json:"durable" yaml:"durable"`
}

// ReceiptsConfig 选择回执存储。
type ReceiptsConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	MySQL  MySQLConfig `json:"mysql" yaml:"mysql"`
}

// AuthConfig 控制调用方身份的解析方式。
type AuthConfig struct {
	Mode   string    `json:"mode" yaml:"mode"`
	Header string    `json:"header" yaml:"header"`
	JWT    JWTConfig `json:"jwt" yaml:"jwt"`
}

// JWTConfig 描述 HS256 令牌校验参数。
type JWTConfig struct {
	Secret        string `json:"secret" yaml:"secret"`
	Issuer        string `json:"issuer" yaml:"issuer"`
	Audience      string `json:"audience" yaml:"audience"`
	LeewaySeconds int    `json:"leeway_seconds" yaml:"leeway_seconds"`
	TTLSeconds    int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// AlertingConfig 配置告警通道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// MetricsConfig 控制 /metrics 是否开放。
type MetricsConfig struct {
	Enabled *bool `json:"enabled" yaml:"enabled"`
}

// MetricsEnabled 返回指标是否开启，默认开启。
func (c MetricsConfig) MetricsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Load 解析指定路径的配置文件，扩展名为 .yaml/.yml 时按 YAML 解析，否则按 JSON 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置，数据目录相对 baseDir。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults(baseDir)
	return &cfg
}

// applyEnv 使用少量环境变量覆盖文件中的配置。
func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAddress)); v != "" {
		c.Server.Address = v
	}
	if v := strings.TrimSpace(getenv(EnvStorageDriver)); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv(EnvJWTSecret); v != "" {
		c.Auth.JWT.Secret = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		c.Server.ReadHeaderTimeoutSeconds = 5
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled {
		c.Log.Audit.Path = resolvePath(baseDir, c.Log.Audit.Path, filepath.Join("logs", "audit.log"))
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "leveldb" {
		c.Storage.LevelDB.Path = resolvePath(baseDir, c.Storage.LevelDB.Path, filepath.Join("data", "proofs"))
	}

	if len(c.Events.Sinks) == 0 {
		c.Events.Sinks = []string{"log"}
	}
	for i, s := range c.Events.Sinks {
		c.Events.Sinks[i] = strings.ToLower(strings.TrimSpace(s))
	}
	if c.Events.MemoryCapacity <= 0 {
		c.Events.MemoryCapacity = 256
	}
	if c.Events.Redis.Channel == "" {
		c.Events.Redis.Channel = "proofchain.events"
	}

	c.Receipts.Driver = strings.ToLower(strings.TrimSpace(c.Receipts.Driver))
	if c.Receipts.Driver == "" {
		c.Receipts.Driver = "memory"
	}
	if c.Receipts.Driver == "mysql" && c.Receipts.MySQL.DSN == "" {
		c.Receipts.MySQL = c.Storage.MySQL
	}

	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if c.Auth.Mode == "" {
		c.Auth.Mode = "header"
	}
}

// Validate 检查后端选择及其必填参数。
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "leveldb":
	case "redis":
		if c.Storage.Redis.Address == "" {
			errs = append(errs, errors.New("storage.redis.address 不能为空"))
		}
	case "mysql":
		if c.Storage.MySQL.DSN == "" {
			errs = append(errs, errors.New("storage.mysql.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver))
	}

	for _, sink := range c.Events.Sinks {
		switch sink {
		case "log", "memory":
		case "redis":
			if c.Events.Redis.Address == "" {
				errs = append(errs, errors.New("events.redis.address 不能为空"))
			}
		case "rabbitmq":
			if c.Events.RabbitMQ.URL == "" {
				errs = append(errs, errors.New("events.rabbitmq.url 不能为空"))
			}
		default:
			errs = append(errs, fmt.Errorf("未知的事件通道: %s", sink))
		}
	}

	switch c.Receipts.Driver {
	case "memory":
	case "mysql":
		if c.Receipts.MySQL.DSN == "" {
			errs = append(errs, errors.New("receipts.mysql.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的回执存储: %s", c.Receipts.Driver))
	}

	switch c.Auth.Mode {
	case "header", "disabled":
	case "jwt":
		if c.Auth.JWT.Secret == "" {
			errs = append(errs, errors.New("auth.jwt.secret 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的认证模式: %s", c.Auth.Mode))
	}
	return errors.Join(errs...)
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
