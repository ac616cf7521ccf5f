package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/events"
	"ProofChain/internal/observability/alerting"
	"ProofChain/internal/observability/metrics"
	"ProofChain/internal/proofs"
	"ProofChain/internal/receipt"
	"ProofChain/internal/storage"
	"ProofChain/pkg/logger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type failingStore struct {
	*storage.MemoryStore
	err error
}

func (f *failingStore) Apply(ctx context.Context, b *storage.Batch) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.Apply(ctx, b)
}

type captureAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (c *captureAlerter) Notify(_ context.Context, e alerting.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newHost(t *testing.T, store storage.Store, opts ...Option) (*Host, *events.MemorySink) {
	t.Helper()
	sink := events.NewMemorySink(16)
	base := []Option{
		WithClock(proofs.ClockFunc(func() uint64 { return 1700000000 })),
		WithSink(sink),
		WithLogger(logger.Discard()),
	}
	return New(store, append(base, opts...)...), sink
}

func certifyReq(id, text string) CertifyRequest {
	return CertifyRequest{ProofID: []byte(id), ProofText: []byte(text), Metadata: proofs.None[[]byte]()}
}

func TestCertifyCommitsAndRecordsReceipt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h, sink := newHost(t, store, WithIDGenerator(sequentialIDs()))

	rec, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, "id-1", rec.TxID)
	assert.Equal(t, 5, rec.Writes)
	assert.Equal(t, uint64(1700000000), rec.BlockTime)
	assert.Equal(t, []string{"id-2"}, rec.Events)
	assert.Equal(t, 5, store.Len())

	got, ok, err := h.Views().Proof(ctx, alice, []byte("CERT_1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got.ProofText)

	emitted := sink.Events()
	require.Len(t, emitted, 1)
	assert.Equal(t, proofs.EventProofCertified, emitted[0].Name)
	assert.Equal(t, "id-2", emitted[0].ID)

	saved, err := h.Receipt(ctx, rec.TxID)
	require.NoError(t, err)
	assert.Equal(t, rec.TxID, saved.TxID)
}

func TestRejectedCallLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h, sink := newHost(t, store)

	_, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.NoError(t, err)
	before := store.Len()

	rec, err := h.Certify(ctx, bob, certifyReq("CERT_1", "again"))
	assert.ErrorIs(t, err, proofs.ErrDuplicateID)
	require.NotNil(t, rec)
	assert.Equal(t, receipt.StatusFailed, rec.Status)
	assert.Equal(t, string(proofs.CodeDuplicateID), rec.ErrorCode)
	assert.Equal(t, "Proof ID already exists", rec.Error)
	assert.Empty(t, rec.Events)

	_, err = h.Update(ctx, bob, UpdateRequest{ProofID: []byte("CERT_1"), ProofText: []byte("hijack")})
	assert.ErrorIs(t, err, proofs.ErrUnauthorized)

	_, err = h.Update(ctx, alice, UpdateRequest{ProofID: []byte("CERT_1"), ProofText: make([]byte, 501)})
	assert.ErrorIs(t, err, proofs.ErrInvalidLength)

	assert.Equal(t, before, store.Len())
	assert.Len(t, sink.Events(), 1)

	count, err := h.Views().UserProofCount(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, count)

	stats, err := h.ReceiptStats(ctx, receipt.NewListOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Failed)
}

func TestUpdateWritesOnlyTheRecord(t *testing.T) {
	ctx := context.Background()
	h, sink := newHost(t, storage.NewMemoryStore())

	_, err := h.Certify(ctx, alice, certifyReq("CERT_1", "v1"))
	require.NoError(t, err)

	rec, err := h.Update(ctx, alice, UpdateRequest{
		ProofID:   []byte("CERT_1"),
		ProofText: []byte("v2"),
		Metadata:  proofs.Some([]byte("meta")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Writes)
	assert.Equal(t, receipt.OperationUpdate, rec.Operation)

	got, ok, err := h.Views().Proof(ctx, alice, []byte("CERT_1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got.ProofText)
	assert.Equal(t, []byte("meta"), got.Metadata)

	emitted := sink.Events()
	require.Len(t, emitted, 2)
	assert.Equal(t, proofs.EventProofUpdated, emitted[1].Name)
}

func TestEventsAreReleasedAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var committed bool
	probe := events.SinkFunc(func(ctx context.Context, evt events.Event) error {
		ok, err := store.Has(ctx, []byte("proofs/totalProofs"))
		committed = err == nil && ok
		return nil
	})
	h := New(store, WithSink(probe), WithLogger(logger.Discard()))

	_, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestSinkFailureDoesNotFailTheCall(t *testing.T) {
	ctx := context.Background()
	broken := events.SinkFunc(func(context.Context, events.Event) error { return errors.New("broker down") })
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	h := New(storage.NewMemoryStore(), WithSink(broken), WithMetrics(m), WithLogger(logger.Discard()))

	rec, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsEmitted.WithLabelValues(proofs.EventProofCertified, "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProofsTotal))
}

func TestCommitFailureIsWrappedAndAlerted(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), err: errors.New("disk full")}
	alerts := &captureAlerter{}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	h, sink := newHost(t, store, WithAlerter(alerts), WithMetrics(m))

	rec, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
	assert.Equal(t, receipt.StatusFailed, rec.Status)
	assert.Empty(t, sink.Events())
	assert.Zero(t, store.Len())

	require.Len(t, alerts.events, 1)
	assert.Equal(t, xerrors.CodeStorageFailure, alerts.events[0].Code)
	assert.Equal(t, rec.TxID, alerts.events[0].TxID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("certify", string(xerrors.CodeStorageFailure))))
}

func TestCodedCommitErrorKeepsItsCode(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		MemoryStore: storage.NewMemoryStore(),
		err:         xerrors.New(xerrors.CodeInvalidArgument, "key too long"),
	}
	alerts := &captureAlerter{}
	h, sink := newHost(t, store, WithAlerter(alerts))

	rec, err := h.Certify(ctx, alice, certifyReq("CERT_1", "hello"))
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	assert.Equal(t, 400, xerrors.HTTPStatusOf(err))
	assert.Equal(t, string(xerrors.CodeInvalidArgument), rec.ErrorCode)
	assert.Empty(t, alerts.events)
	assert.Empty(t, sink.Events())
	assert.Zero(t, store.Len())
}

func TestOversizedProofIDRejectedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), err: errors.New("apply must not run")}
	alerts := &captureAlerter{}
	h, _ := newHost(t, store, WithAlerter(alerts), WithMaxProofIDLength(8))

	_, err := h.Certify(ctx, alice, certifyReq("CERT_123456", "hello"))
	assert.Equal(t, proofs.CodeInvalidProofID, xerrors.CodeOf(err))
	assert.Empty(t, alerts.events)
	assert.Zero(t, store.Len())

	store.err = nil
	rec, err := h.Certify(ctx, alice, certifyReq("CERT_123", "hello"))
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
}

func TestBusinessRejectionsAreNotAlerted(t *testing.T) {
	alerts := &captureAlerter{}
	h, _ := newHost(t, storage.NewMemoryStore(), WithAlerter(alerts))

	_, err := h.Certify(context.Background(), proofs.ZeroIdentity, certifyReq("CERT_1", "hello"))
	assert.ErrorIs(t, err, proofs.ErrInvalidIdentity)
	assert.Empty(t, alerts.events)
}

func TestConcurrentCertifyKeepsCountersConsistent(t *testing.T) {
	ctx := context.Background()
	h, _ := newHost(t, storage.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.Certify(ctx, alice, certifyReq(fmt.Sprintf("CERT_%02d", i), "text"))
		}(i)
	}
	wg.Wait()

	views := h.Views()
	total, err := views.TotalProofs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), total)

	ids, err := views.UserProofIDs(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}
