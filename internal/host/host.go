// Package host 串行执行注册表的变更调用：每次调用在独立事务中运行，
// 成功后原子提交，并在提交之后投递事件、记录回执。
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/events"
	"ProofChain/internal/observability/alerting"
	"ProofChain/internal/observability/metrics"
	"ProofChain/internal/proofs"
	"ProofChain/internal/receipt"
	"ProofChain/internal/storage"
	"ProofChain/pkg/logger"
)

// CertifyRequest 描述一次证明登记。
type CertifyRequest struct {
	ProofID   []byte
	ProofText []byte
	Metadata  proofs.Optional[[]byte]
}

// UpdateRequest 描述一次证明更新。
type UpdateRequest struct {
	ProofID   []byte
	ProofText []byte
	Metadata  proofs.Optional[[]byte]
}

// Host 持有底层存储与周边组件。
type Host struct {
	mu       sync.Mutex
	store    storage.Store
	clock    proofs.Clock
	sink     events.Sink
	receipts receipt.Store
	metrics  *metrics.Metrics
	alerter  alerting.Dispatcher
	log      *slog.Logger
	newID    func() string
	maxIDLen int
}

// Option 用于定制 Host。
type Option func(*Host)

// WithClock 指定区块时间来源。
func WithClock(c proofs.Clock) Option {
	return func(h *Host) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithSink 指定事件最终投递的目标。
func WithSink(s events.Sink) Option {
	return func(h *Host) {
		if s != nil {
			h.sink = s
		}
	}
}

// WithReceipts 指定回执存储。
func WithReceipts(r receipt.Store) Option {
	return func(h *Host) {
		if r != nil {
			h.receipts = r
		}
	}
}

// WithMetrics 启用指标采集。
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithAlerter 指定告警分发器。
func WithAlerter(d alerting.Dispatcher) Option {
	return func(h *Host) { h.alerter = d }
}

// WithLogger 覆盖默认日志器。
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}

// WithIDGenerator 覆盖交易与事件 ID 的生成方式。
func WithIDGenerator(fn func() string) Option {
	return func(h *Host) {
		if fn != nil {
			h.newID = fn
		}
	}
}

// WithMaxProofIDLength 限制证明 ID 的字节数，用于键长有上限的存储后端。
func WithMaxProofIDLength(n int) Option {
	return func(h *Host) { h.maxIDLen = n }
}

// New 创建 Host。
func New(store storage.Store, opts ...Option) *Host {
	h := &Host{
		store:    store,
		clock:    proofs.NewMonotonicClock(nil),
		sink:     events.Discard,
		receipts: receipt.NewMemoryStore(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.log == nil {
		h.log = logger.Named("host")
	}
	return h
}

// Certify 以 caller 身份登记一个新证明。
func (h *Host) Certify(ctx context.Context, caller proofs.Identity, req CertifyRequest) (*receipt.Receipt, error) {
	return h.execute(ctx, receipt.OperationCertify, caller, req.ProofID, func(reg *proofs.Registry) error {
		_, err := reg.Certify(ctx, caller, req.ProofText, req.ProofID, req.Metadata)
		return err
	})
}

// Update 以 caller 身份修改已有证明。
func (h *Host) Update(ctx context.Context, caller proofs.Identity, req UpdateRequest) (*receipt.Receipt, error) {
	return h.execute(ctx, receipt.OperationUpdate, caller, req.ProofID, func(reg *proofs.Registry) error {
		_, err := reg.Update(ctx, caller, req.ProofID, req.ProofText, req.Metadata)
		return err
	})
}

// Views 返回直接读取已提交状态的只读视图。
func (h *Host) Views() *proofs.Registry {
	return proofs.New(h.store, proofs.WithClock(h.clock), proofs.WithLogger(h.log))
}

// Receipt 查询单条回执。
func (h *Host) Receipt(ctx context.Context, txID string) (*receipt.Receipt, error) {
	return h.receipts.Get(ctx, txID)
}

// Receipts 按条件列出回执。
func (h *Host) Receipts(ctx context.Context, opts receipt.ListOptions) ([]*receipt.Receipt, error) {
	return h.receipts.List(ctx, opts)
}

// ReceiptStats 汇总回执。
func (h *Host) ReceiptStats(ctx context.Context, opts receipt.ListOptions) (receipt.Stats, error) {
	return h.receipts.Stats(ctx, opts)
}

func (h *Host) execute(ctx context.Context, op receipt.Operation, caller proofs.Identity, proofID []byte, run func(*proofs.Registry) error) (*receipt.Receipt, error) {
	start := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	txID := h.newID()
	blockTime := h.clock.Now()
	rec := &receipt.Receipt{
		TxID:      txID,
		Operation: op,
		Caller:    caller.Hex(),
		ProofID:   string(proofID),
		BlockTime: blockTime,
		CreatedAt: time.Now().Unix(),
	}
	log := h.log.With(
		slog.String("tx_id", txID),
		slog.String("operation", string(op)),
		slog.String("caller", rec.Caller),
	)

	tx := storage.NewTx(h.store)
	buffer := events.NewBuffer(h.newID)
	reg := proofs.New(tx,
		proofs.WithClock(proofs.ClockFunc(func() uint64 { return blockTime })),
		proofs.WithSink(buffer),
		proofs.WithLogger(h.log),
		proofs.WithMaxProofIDLength(h.maxIDLen),
	)

	if err := run(reg); err != nil {
		tx.Discard()
		buffer.Reset()
		log.Info("调用被拒绝", slog.String("code", string(xerrors.CodeOf(err))), slog.String("error", err.Error()))
		return h.fail(ctx, rec, err, start)
	}

	emitted := buffer.Events()
	if err := tx.Commit(ctx); err != nil {
		buffer.Reset()
		// 已带错误码的保持原样，只有裸错误才归为存储故障。
		wrapped := err
		if _, coded := xerrors.From(err); !coded {
			wrapped = xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交状态变更失败")
		}
		log.Error("提交失败", slog.String("error", err.Error()))
		return h.fail(ctx, rec, wrapped, start)
	}

	rec.Status = receipt.StatusSucceeded
	rec.Writes = tx.Applied()
	for _, evt := range emitted {
		rec.Events = append(rec.Events, evt.ID)
	}

	h.deliver(ctx, log, buffer, emitted)

	if err := h.receipts.Save(ctx, rec); err != nil {
		log.Warn("保存回执失败", slog.String("error", err.Error()))
	}
	h.metrics.ObserveOperation(string(op), "ok", start)
	if total, err := h.Views().TotalProofs(ctx); err == nil {
		h.metrics.SetProofsTotal(total)
	}
	log.Info("调用完成", slog.Int("writes", rec.Writes), slog.Int("events", len(rec.Events)))
	return rec, nil
}

// deliver 在提交之后把缓冲的事件投递到真实通道，失败只记录不回滚。
func (h *Host) deliver(ctx context.Context, log *slog.Logger, buffer *events.Buffer, emitted []events.Event) {
	if len(emitted) == 0 {
		return
	}
	tracked := events.SinkFunc(func(ctx context.Context, evt events.Event) error {
		err := h.sink.Emit(ctx, evt)
		h.metrics.ObserveEvent(evt.Name, err == nil)
		return err
	})
	if err := buffer.Flush(ctx, tracked); err != nil {
		log.Warn("事件投递失败", slog.String("error", err.Error()))
	}
}

func (h *Host) fail(ctx context.Context, rec *receipt.Receipt, err error, start time.Time) (*receipt.Receipt, error) {
	code := xerrors.CodeOf(err)
	rec.Status = receipt.StatusFailed
	rec.ErrorCode = string(code)
	rec.Error = xerrors.MessageOf(err)
	if saveErr := h.receipts.Save(ctx, rec); saveErr != nil {
		h.log.Warn("保存失败回执出错", slog.String("tx_id", rec.TxID), slog.String("error", saveErr.Error()))
	}
	h.metrics.ObserveOperation(string(rec.Operation), string(code), start)
	if h.alerter != nil && xerrors.ShouldAlert(err) {
		if alertErr := h.alerter.Notify(ctx, alerting.FromError(err, string(rec.Operation), rec.TxID, rec.Caller)); alertErr != nil {
			h.log.Warn("告警发送失败", slog.String("error", alertErr.Error()))
		}
	}
	return rec, err
}
