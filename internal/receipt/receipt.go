// Package receipt 记录每一次变更调用的执行结果，便于审计与排障。
package receipt

import (
	"context"

	xerrors "ProofChain/internal/errors"
)

// Status 描述调用的最终状态。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Operation 标识变更调用的类型。
type Operation string

const (
	OperationCertify Operation = "certify"
	OperationUpdate  Operation = "update"
)

// Receipt 是一次变更调用的回执。
type Receipt struct {
	TxID      string    `json:"tx_id"`
	Operation Operation `json:"operation"`
	Caller    string    `json:"caller"`
	ProofID   string    `json:"proof_id"`
	Status    Status    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []string  `json:"events,omitempty"`
	Writes    int       `json:"writes"`
	BlockTime uint64    `json:"block_time"`
	CreatedAt int64     `json:"created_at"`
}

// Succeeded 判断调用是否成功。
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Store 抽象了回执的持久化接口。
type Store interface {
	Save(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, txID string) (*Receipt, error)
	List(ctx context.Context, opts ListOptions) ([]*Receipt, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}

// Stats 汇总符合过滤条件的回执数量。
type Stats struct {
	Total     int   `json:"total"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Certify   int   `json:"certify"`
	Update    int   `json:"update"`
	Oldest    int64 `json:"oldest_created_at"`
	Newest    int64 `json:"newest_created_at"`
}

const (
	CodeReceiptNotFound xerrors.Code = "RECEIPT_NOT_FOUND"
	CodeReceiptConflict xerrors.Code = "RECEIPT_CONFLICT"
)

var (
	// ErrReceiptNotFound 表示回执不存在。
	ErrReceiptNotFound = xerrors.New(CodeReceiptNotFound, "receipt not found")
	// ErrReceiptConflict 表示 tx_id 已被占用。
	ErrReceiptConflict = xerrors.New(CodeReceiptConflict, "receipt already exists")
)

func init() {
	xerrors.Register(CodeReceiptNotFound, xerrors.Attributes{
		Message:    "receipt not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: 404,
	})
	xerrors.Register(CodeReceiptConflict, xerrors.Attributes{
		Message:    "receipt already exists",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: 409,
	})
}

func cloneReceipt(r *Receipt) *Receipt {
	clone := *r
	if r.Events != nil {
		clone.Events = append([]string(nil), r.Events...)
	}
	return &clone
}

func validate(r *Receipt) error {
	if r == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "receipt 不能为空")
	}
	if r.TxID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "回执 tx_id 不能为空")
	}
	return nil
}
