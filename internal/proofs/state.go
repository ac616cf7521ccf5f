package proofs

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/storage"
)

// storedRecord is the RLP layout of a Record.
type storedRecord struct {
	ProofText []byte
	Timestamp uint64
	ProofID   []byte
	Metadata  []byte
}

// state is the only place that knows how registry data maps onto keys.
type state struct {
	kv storage.ReadWriter
}

func (s *state) record(ctx context.Context, owner Identity, proofID []byte) (Record, bool, error) {
	raw, ok, err := s.kv.Get(ctx, recordKey(owner, proofID))
	if err != nil || !ok {
		return Record{}, false, storageErr(err, "read proof record")
	}
	var stored storedRecord
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Record{}, false, corrupt(err, "proof record")
	}
	return Record{
		ProofText: cloneBytes(stored.ProofText),
		Timestamp: stored.Timestamp,
		ProofID:   cloneBytes(stored.ProofID),
		Metadata:  cloneBytes(stored.Metadata),
	}, true, nil
}

func (s *state) putRecord(ctx context.Context, owner Identity, rec Record) error {
	raw, err := rlp.EncodeToBytes(storedRecord{
		ProofText: rec.ProofText,
		Timestamp: rec.Timestamp,
		ProofID:   rec.ProofID,
		Metadata:  rec.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encode proof record: %w", err)
	}
	return storageErr(s.kv.Set(ctx, recordKey(owner, rec.ProofID), raw), "write proof record")
}

// owner returns ZeroIdentity when the id has never been certified.
func (s *state) owner(ctx context.Context, proofID []byte) (Identity, error) {
	raw, ok, err := s.kv.Get(ctx, ownerKey(proofID))
	if err != nil || !ok {
		return ZeroIdentity, storageErr(err, "read proof owner")
	}
	if len(raw) != identityLength {
		return ZeroIdentity, corrupt(fmt.Errorf("owner entry has %d bytes", len(raw)), "proof owner")
	}
	var id Identity
	copy(id[:], raw)
	return id, nil
}

func (s *state) setOwner(ctx context.Context, proofID []byte, owner Identity) error {
	return storageErr(s.kv.Set(ctx, ownerKey(proofID), owner.Bytes()), "write proof owner")
}

func (s *state) hasOwner(ctx context.Context, proofID []byte) (bool, error) {
	ok, err := s.kv.Has(ctx, ownerKey(proofID))
	return ok, storageErr(err, "read proof owner")
}

func (s *state) userIndexEntry(ctx context.Context, owner Identity, position uint64) ([]byte, error) {
	raw, ok, err := s.kv.Get(ctx, userIndexKey(owner, position))
	if err != nil {
		return nil, storageErr(err, "read user index")
	}
	if !ok {
		return nil, corrupt(fmt.Errorf("position %d missing", position), "user index")
	}
	return raw, nil
}

func (s *state) appendUserIndex(ctx context.Context, owner Identity, position uint64, proofID []byte) error {
	return storageErr(s.kv.Set(ctx, userIndexKey(owner, position), proofID), "write user index")
}

func (s *state) userCount(ctx context.Context, owner Identity) (uint64, error) {
	return s.counter(ctx, userCountKey(owner))
}

func (s *state) setUserCount(ctx context.Context, owner Identity, n uint64) error {
	return s.setCounter(ctx, userCountKey(owner), n)
}

func (s *state) totalProofs(ctx context.Context) (uint64, error) {
	return s.counter(ctx, totalProofsKey())
}

func (s *state) setTotalProofs(ctx context.Context, n uint64) error {
	return s.setCounter(ctx, totalProofsKey(), n)
}

func (s *state) counter(ctx context.Context, key []byte) (uint64, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return 0, storageErr(err, "read counter")
	}
	var n uint64
	if err := rlp.DecodeBytes(raw, &n); err != nil {
		return 0, corrupt(err, "counter")
	}
	return n, nil
}

func (s *state) setCounter(ctx context.Context, key []byte, n uint64) error {
	raw, err := rlp.EncodeToBytes(n)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	return storageErr(s.kv.Set(ctx, key, raw), "write counter")
}

// storageErr tags backend failures that are not already coded.
func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, op)
}

func corrupt(err error, what string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, "corrupt "+what, xerrors.WithRetryable(false), xerrors.WithSeverity(xerrors.SeverityCritical))
}
