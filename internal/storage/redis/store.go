package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/storage"
)

// Config 描述 Redis 存储的连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Store 将键值对保存在 Redis 中，所有键都带有统一前缀。
type Store struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// New 创建 Redis 存储实例并检测连通性。
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	store := NewWithClient(client, cfg.Prefix)
	store.owned = true
	return store, nil
}

// NewWithClient 复用已有的 Redis 客户端，Close 不会关闭该客户端。
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "proofchain:kv:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k []byte) string {
	return s.prefix + string(k)
}

// Get 实现 storage.Reader。
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 失败")
	}
	return value, true, nil
}

// Has 实现 storage.Reader。
func (s *Store) Has(ctx context.Context, key []byte) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 失败")
	}
	return n > 0, nil
}

// Set 实现 storage.Writer。
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 失败")
	}
	return nil
}

// Delete 实现 storage.Writer。
func (s *Store) Delete(ctx context.Context, key []byte) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除 Redis 键失败")
	}
	return nil
}

// Apply 通过 MULTI/EXEC 原子提交整批写入。
func (s *Store) Apply(ctx context.Context, batch *storage.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range batch.Ops() {
			switch op.Kind {
			case storage.OpPut:
				pipe.Set(ctx, s.key(op.Key), op.Value, 0)
			case storage.OpDelete:
				pipe.Del(ctx, s.key(op.Key))
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交 Redis 事务失败")
	}
	return nil
}

// Close 关闭由 New 创建的客户端。
func (s *Store) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ storage.Store = (*Store)(nil)
