package receipt

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	xerrors "ProofChain/internal/errors"
	mysqlstore "ProofChain/internal/storage/mysql"
)

const receiptColumns = `tx_id, operation, caller, proof_id, status, error_code, error_message, events, writes, block_time, created_at`

// MySQLStore 使用 MySQL 的 receipts 表保存回执。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 打开连接并执行迁移。
func NewMySQLStore(ctx context.Context, cfg mysqlstore.Config) (*MySQLStore, error) {
	db, err := mysqlstore.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化回执存储失败")
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreWithDB 复用已有连接池。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Save 插入回执。
func (s *MySQLStore) Save(ctx context.Context, r *Receipt) error {
	if err := validate(r); err != nil {
		return err
	}
	eventsJSON, err := json.Marshal(r.Events)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码回执事件失败")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO receipts (`+receiptColumns+`)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TxID, string(r.Operation), r.Caller, []byte(r.ProofID), string(r.Status),
		r.ErrorCode, r.Error, string(eventsJSON), r.Writes, r.BlockTime, r.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrReceiptConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入回执失败")
	}
	return nil
}

// Get 按 tx_id 查询回执。
func (s *MySQLStore) Get(ctx context.Context, txID string) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE tx_id = ?`, txID)
	r, err := scanReceipt(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询回执失败")
	}
	return r, nil
}

// List 按过滤条件分页查询回执。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Receipt, error) {
	opts.applyDefaults()
	where, args := buildWhere(opts)
	order := "DESC"
	if opts.Order == SortByCreatedAsc {
		order = "ASC"
	}
	query := `SELECT ` + receiptColumns + ` FROM receipts` + where +
		` ORDER BY created_at ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询回执列表失败")
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执失败")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历回执失败")
	}
	return out, nil
}

// Stats 聚合统计回执。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	where, args := buildWhere(opts)
	query := `SELECT COUNT(*),
        COALESCE(SUM(status = 'succeeded'), 0),
        COALESCE(SUM(status = 'failed'), 0),
        COALESCE(SUM(operation = 'certify'), 0),
        COALESCE(SUM(operation = 'update'), 0),
        COALESCE(MIN(created_at), 0),
        COALESCE(MAX(created_at), 0)
    FROM receipts` + where

	var stats Stats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Succeeded, &stats.Failed, &stats.Certify, &stats.Update, &stats.Oldest, &stats.Newest,
	)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计回执失败")
	}
	return stats, nil
}

// Close 关闭连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildWhere(opts ListOptions) (string, []any) {
	var clauses []string
	var args []any
	if len(opts.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(opts.Statuses))+")")
		for _, st := range opts.Statuses {
			args = append(args, string(st))
		}
	}
	if len(opts.Operations) > 0 {
		clauses = append(clauses, "operation IN ("+placeholders(len(opts.Operations))+")")
		for _, op := range opts.Operations {
			args = append(args, string(op))
		}
	}
	if opts.Caller != "" {
		clauses = append(clauses, "LOWER(caller) = ?")
		args = append(args, opts.Caller)
	}
	if opts.ProofID != "" {
		clauses = append(clauses, "proof_id = ?")
		args = append(args, []byte(opts.ProofID))
	}
	if opts.CreatedGTE > 0 {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, opts.CreatedGTE)
	}
	if opts.CreatedLTE > 0 {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, opts.CreatedLTE)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var (
		r          Receipt
		operation  string
		status     string
		proofID    []byte
		errMessage sql.NullString
		eventsJSON sql.NullString
	)
	if err := row.Scan(&r.TxID, &operation, &r.Caller, &proofID, &status, &r.ErrorCode, &errMessage, &eventsJSON, &r.Writes, &r.BlockTime, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Operation = Operation(operation)
	r.Status = Status(status)
	r.ProofID = string(proofID)
	r.Error = errMessage.String
	if eventsJSON.Valid && eventsJSON.String != "" && eventsJSON.String != "null" {
		if err := json.Unmarshal([]byte(eventsJSON.String), &r.Events); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

var _ Store = (*MySQLStore)(nil)
