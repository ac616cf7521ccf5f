// Package leveldb is the embedded on-disk key/value backend built on goleveldb.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/storage"
)

// Config describes how the LevelDB database is opened.
type Config struct {
	Path string
	// SyncWrites fsyncs every batch before Apply returns.
	SyncWrites bool
}

// Store wraps a goleveldb handle.
type Store struct {
	db   *leveldb.DB
	sync bool
}

// Open opens (or creates) the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "LevelDB 路径不能为空")
	}
	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("打开 LevelDB %s 失败", cfg.Path))
	}
	return &Store{db: db, sync: cfg.SyncWrites}, nil
}

// OpenInMemory opens a database backed by goleveldb's memory storage.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开内存 LevelDB 失败")
	}
	return &Store{db: db}, nil
}

// Get implements storage.Reader.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err, "读取 LevelDB 失败")
	}
	return value, true, nil
}

// Has implements storage.Reader.
func (s *Store) Has(_ context.Context, key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, wrap(err, "读取 LevelDB 失败")
	}
	return ok, nil
}

// Set implements storage.Writer.
func (s *Store) Set(_ context.Context, key, value []byte) error {
	if err := s.db.Put(key, value, s.writeOptions()); err != nil {
		return wrap(err, "写入 LevelDB 失败")
	}
	return nil
}

// Delete implements storage.Writer.
func (s *Store) Delete(_ context.Context, key []byte) error {
	if err := s.db.Delete(key, s.writeOptions()); err != nil {
		return wrap(err, "删除 LevelDB 键失败")
	}
	return nil
}

// Apply writes the batch through a single leveldb.Batch, which goleveldb
// commits atomically.
func (s *Store) Apply(ctx context.Context, batch *storage.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := new(leveldb.Batch)
	for _, op := range batch.Ops() {
		switch op.Kind {
		case storage.OpPut:
			wb.Put(op.Key, op.Value)
		case storage.OpDelete:
			wb.Delete(op.Key)
		}
	}
	if err := s.db.Write(wb, s.writeOptions()); err != nil {
		return wrap(err, "提交 LevelDB 批量写入失败")
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) writeOptions() *opt.WriteOptions {
	if !s.sync {
		return nil
	}
	return &opt.WriteOptions{Sync: true}
}

func wrap(err error, msg string) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, msg, xerrors.WithRetryable(false))
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, msg)
}

var _ storage.Store = (*Store)(nil)
