package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"time"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/storage"
)

// MaxKeyLength 与 kv_entries.k 列宽保持一致。
const MaxKeyLength = 3072

const (
	selectValueSQL = `SELECT v FROM kv_entries WHERE k = ?`
	existsSQL      = `SELECT 1 FROM kv_entries WHERE k = ? LIMIT 1`
	upsertSQL      = `INSERT INTO kv_entries (k, v, updated_at) VALUES (?, ?, ?)
    ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)`
	deleteSQL = `DELETE FROM kv_entries WHERE k = ?`
)

// KVStore 使用 kv_entries 表实现 storage.Store。
type KVStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewKVStore 打开连接池并执行迁移。
func NewKVStore(ctx context.Context, cfg Config) (*KVStore, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 MySQL 键值存储失败")
	}
	return NewKVStoreWithDB(db), nil
}

// NewKVStoreWithDB 基于已有连接池构造存储，调用方负责迁移。
func NewKVStoreWithDB(db *sql.DB) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// Get 实现 storage.Reader。
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, selectValueSQL, key).Scan(&value)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 kv_entries 失败")
	}
	return value, true, nil
}

// Has 实现 storage.Reader。
func (s *KVStore) Has(ctx context.Context, key []byte) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, existsSQL, key).Scan(&one)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 kv_entries 失败")
	}
	return true, nil
}

// Set 实现 storage.Writer。
func (s *KVStore) Set(ctx context.Context, key, value []byte) error {
	batch := storage.NewBatch()
	batch.Put(key, value)
	return s.Apply(ctx, batch)
}

// Delete 实现 storage.Writer。
func (s *KVStore) Delete(ctx context.Context, key []byte) error {
	batch := storage.NewBatch()
	batch.Delete(key)
	return s.Apply(ctx, batch)
}

// Apply 在同一个 SQL 事务内执行整批写入，任一语句失败即回滚。
func (s *KVStore) Apply(ctx context.Context, batch *storage.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	for _, op := range batch.Ops() {
		if len(op.Key) > MaxKeyLength {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("键长度 %d 超过上限 %d", len(op.Key), MaxKeyLength))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启 MySQL 事务失败")
	}
	now := s.now().Unix()
	for _, op := range batch.Ops() {
		switch op.Kind {
		case storage.OpPut:
			_, err = tx.ExecContext(ctx, upsertSQL, op.Key, op.Value, now)
		case storage.OpDelete:
			_, err = tx.ExecContext(ctx, deleteSQL, op.Key)
		}
		if err != nil {
			_ = tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 kv_entries 失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交 MySQL 事务失败")
	}
	return nil
}

// Close 关闭连接池。
func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ storage.Store = (*KVStore)(nil)
