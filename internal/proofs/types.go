package proofs

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	// MinProofTextLength and MaxProofTextLength bound len(proof_text) in bytes.
	MinProofTextLength = 1
	MaxProofTextLength = 500
)

// Identity is the account address of a caller or proof owner.
type Identity = common.Address

// ZeroIdentity never matches a real caller; it is what an absent ownership
// entry reads as.
var ZeroIdentity Identity

// ParseIdentity accepts a 0x-prefixed 20-byte hex address.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return ZeroIdentity, ErrInvalidIdentity
	}
	id := common.HexToAddress(s)
	if id == ZeroIdentity {
		return ZeroIdentity, ErrInvalidIdentity
	}
	return id, nil
}

// Record is one certified proof as stored under (owner, proof_id).
type Record struct {
	ProofText []byte
	Timestamp uint64
	ProofID   []byte
	Metadata  []byte
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	return Record{
		ProofText: cloneBytes(r.ProofText),
		Timestamp: r.Timestamp,
		ProofID:   cloneBytes(r.ProofID),
		Metadata:  cloneBytes(r.Metadata),
	}
}

// Optional is a value that may be deliberately left out. The zero value is
// None.
type Optional[T any] struct {
	value T
	set   bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns the absent variant.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSome reports whether a value is present.
func (o Optional[T]) IsSome() bool {
	return o.set
}

// OrElse returns the value if present, otherwise fallback.
func (o Optional[T]) OrElse(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
