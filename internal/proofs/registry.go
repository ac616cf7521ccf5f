package proofs

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/events"
	"ProofChain/internal/storage"
	"ProofChain/pkg/logger"
)

// Registry executes registry operations against one storage view.
type Registry struct {
	state      state
	clock      Clock
	sink       events.Sink
	log        *slog.Logger
	maxIDBytes int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the block-time source. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithSink sets where events go. Defaults to events.Discard.
func WithSink(s events.Sink) Option {
	return func(r *Registry) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMaxProofIDLength caps proof ids at n bytes on certify. Zero means no
// cap. Backends with a bounded key size use MaxProofIDLength to derive n.
func WithMaxProofIDLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxIDBytes = n
		}
	}
}

// New binds a Registry to kv. Mutations are written to kv as they are
// computed; pass a storage.Tx to get all-or-nothing semantics.
func New(kv storage.ReadWriter, opts ...Option) *Registry {
	r := &Registry{
		state: state{kv: kv},
		clock: SystemClock{},
		sink:  events.Discard,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.log == nil {
		r.log = logger.Named("proofs")
	}
	return r
}

// Certify records a new proof owned by caller.
func (r *Registry) Certify(ctx context.Context, caller Identity, proofText, proofID []byte, metadata Optional[[]byte]) (Record, error) {
	if caller == ZeroIdentity {
		return Record{}, ErrInvalidIdentity
	}
	if len(proofID) == 0 {
		return Record{}, ErrEmptyProofID
	}
	if r.maxIDBytes > 0 && len(proofID) > r.maxIDBytes {
		return Record{}, xerrors.New(CodeInvalidProofID, fmt.Sprintf("proof id must not exceed %d bytes", r.maxIDBytes))
	}
	taken, err := r.state.hasOwner(ctx, proofID)
	if err != nil {
		return Record{}, err
	}
	if taken {
		return Record{}, ErrDuplicateID
	}
	if err := validateProofText(proofText); err != nil {
		return Record{}, err
	}
	userCount, err := r.state.userCount(ctx, caller)
	if err != nil {
		return Record{}, err
	}
	total, err := r.state.totalProofs(ctx)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ProofText: cloneBytes(proofText),
		Timestamp: r.clock.Now(),
		ProofID:   cloneBytes(proofID),
		Metadata:  cloneBytes(metadata.OrElse(nil)),
	}

	if err := r.state.putRecord(ctx, caller, rec); err != nil {
		return Record{}, err
	}
	if err := r.state.appendUserIndex(ctx, caller, userCount, rec.ProofID); err != nil {
		return Record{}, err
	}
	if err := r.state.setOwner(ctx, rec.ProofID, caller); err != nil {
		return Record{}, err
	}
	if err := r.state.setUserCount(ctx, caller, userCount+1); err != nil {
		return Record{}, err
	}
	if err := r.state.setTotalProofs(ctx, total+1); err != nil {
		return Record{}, err
	}
	if err := r.emit(ctx, proofCertifiedEvent(caller, rec)); err != nil {
		return Record{}, err
	}

	r.log.Debug("proof certified",
		slog.String("owner", caller.Hex()),
		slog.Int("proof_id_len", len(rec.ProofID)),
		slog.Uint64("timestamp", rec.Timestamp),
	)
	return rec.Clone(), nil
}

// Update replaces the text, and optionally the metadata, of a proof owned by
// caller. A proof id nobody owns reads as ZeroIdentity and fails the same way
// as a foreign one.
func (r *Registry) Update(ctx context.Context, caller Identity, proofID, newProofText []byte, newMetadata Optional[[]byte]) (Record, error) {
	owner, err := r.state.owner(ctx, proofID)
	if err != nil {
		return Record{}, err
	}
	if caller == ZeroIdentity || owner != caller {
		return Record{}, ErrUnauthorized
	}
	if err := validateProofText(newProofText); err != nil {
		return Record{}, err
	}
	rec, ok, err := r.state.record(ctx, owner, proofID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, corrupt(fmt.Errorf("owner entry without record"), "proof record")
	}

	rec.ProofText = cloneBytes(newProofText)
	if md, ok := newMetadata.Get(); ok {
		rec.Metadata = cloneBytes(md)
	}
	if err := r.state.putRecord(ctx, owner, rec); err != nil {
		return Record{}, err
	}
	if err := r.emit(ctx, proofUpdatedEvent(owner, rec, r.clock.Now())); err != nil {
		return Record{}, err
	}

	r.log.Debug("proof updated",
		slog.String("owner", owner.Hex()),
		slog.Int("proof_id_len", len(rec.ProofID)),
	)
	return rec.Clone(), nil
}

// Proof returns the record stored under (owner, proofID).
func (r *Registry) Proof(ctx context.Context, owner Identity, proofID []byte) (Record, bool, error) {
	return r.state.record(ctx, owner, proofID)
}

// UserProofs returns owner's records in certification order.
func (r *Registry) UserProofs(ctx context.Context, owner Identity, opts ...ListOption) ([]Record, error) {
	ids, err := r.UserProofIDs(ctx, owner, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := r.state.record(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, corrupt(fmt.Errorf("indexed id without record"), "user index")
		}
		out = append(out, rec)
	}
	return out, nil
}

// UserProofIDs returns owner's proof ids in certification order.
func (r *Registry) UserProofIDs(ctx context.Context, owner Identity, opts ...ListOption) ([][]byte, error) {
	options := newListOptions(opts...)
	count, err := r.state.userCount(ctx, owner)
	if err != nil {
		return nil, err
	}
	start, end := options.window(count)
	ids := make([][]byte, 0, end-start)
	for pos := start; pos < end; pos++ {
		id, err := r.state.userIndexEntry(ctx, owner, pos)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ProofOwner returns the owner of proofID.
func (r *Registry) ProofOwner(ctx context.Context, proofID []byte) (Identity, bool, error) {
	owner, err := r.state.owner(ctx, proofID)
	if err != nil {
		return ZeroIdentity, false, err
	}
	return owner, owner != ZeroIdentity, nil
}

// UserProofCount returns how many proofs owner has certified.
func (r *Registry) UserProofCount(ctx context.Context, owner Identity) (uint64, error) {
	return r.state.userCount(ctx, owner)
}

// TotalProofs returns the number of proofs certified by anyone.
func (r *Registry) TotalProofs(ctx context.Context) (uint64, error) {
	return r.state.totalProofs(ctx)
}

// ProofExists reports whether proofID has been certified.
func (r *Registry) ProofExists(ctx context.Context, proofID []byte) (bool, error) {
	return r.state.hasOwner(ctx, proofID)
}

func (r *Registry) emit(ctx context.Context, evt events.Event) error {
	if err := r.sink.Emit(ctx, evt); err != nil {
		return xerrors.Wrap(xerrors.CodeEventDelivery, err, "emit "+evt.Name)
	}
	return nil
}

func validateProofText(text []byte) error {
	if len(text) < MinProofTextLength || len(text) > MaxProofTextLength {
		return ErrInvalidLength
	}
	return nil
}
