// Package storage defines the byte-oriented key/value contract the registry
// persists through, together with an in-memory backend and a staging overlay
// that turns a sequence of writes into one atomic batch.
package storage

import (
	"context"

	xerrors "ProofChain/internal/errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = xerrors.New(xerrors.CodeStorageFailure, "store is closed", xerrors.WithRetryable(false))

// Reader exposes point lookups.
type Reader interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Has(ctx context.Context, key []byte) (bool, error)
}

// Writer exposes single-key mutation.
type Writer interface {
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
}

// ReadWriter is the view handed to the registry for one call.
type ReadWriter interface {
	Reader
	Writer
}

// Store is a durable backend. Apply must be all-or-nothing.
type Store interface {
	ReadWriter
	Apply(ctx context.Context, batch *Batch) error
	Close() error
}

// OpKind distinguishes batch operations.
type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

// Op is one staged mutation.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// Batch is an ordered list of mutations applied atomically by Store.Apply.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages key=value. Both slices are copied.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, Op{Kind: OpPut, Key: clone(key), Value: clone(value)})
}

// Delete stages the removal of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: clone(key)})
}

// Ops returns the staged operations in insertion order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len reports the number of staged operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Reset drops all staged operations.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
