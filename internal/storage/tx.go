package storage

import (
	"context"
	"errors"
)

// ErrTxDone is returned when a Tx is used after Commit or Discard.
var ErrTxDone = errors.New("storage: transaction already finished")

type pending struct {
	value   []byte
	deleted bool
}

// Tx stages writes on top of a Store. Reads observe the staged writes; nothing
// reaches the store until Commit, which hands the whole write set to
// Store.Apply in first-write order.
type Tx struct {
	base    Store
	writes  map[string]pending
	order   []string
	done    bool
	applied int
}

// NewTx opens a staging overlay over base.
func NewTx(base Store) *Tx {
	return &Tx{base: base, writes: make(map[string]pending)}
}

// Get returns the staged value for key if any, otherwise the stored one.
func (t *Tx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, ErrTxDone
	}
	if p, ok := t.writes[string(key)]; ok {
		if p.deleted {
			return nil, false, nil
		}
		return clone(p.value), true, nil
	}
	return t.base.Get(ctx, key)
}

// Has reports whether key exists in the overlay or the store.
func (t *Tx) Has(ctx context.Context, key []byte) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if p, ok := t.writes[string(key)]; ok {
		return !p.deleted, nil
	}
	return t.base.Has(ctx, key)
}

// Set stages key=value.
func (t *Tx) Set(_ context.Context, key, value []byte) error {
	if t.done {
		return ErrTxDone
	}
	t.stage(key, pending{value: clone(value)})
	return nil
}

// Delete stages the removal of key.
func (t *Tx) Delete(_ context.Context, key []byte) error {
	if t.done {
		return ErrTxDone
	}
	t.stage(key, pending{deleted: true})
	return nil
}

func (t *Tx) stage(key []byte, p pending) {
	k := string(key)
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = p
}

// Dirty reports whether any write is staged.
func (t *Tx) Dirty() bool {
	return len(t.order) > 0
}

// Batch materialises the staged writes.
func (t *Tx) Batch() *Batch {
	batch := NewBatch()
	for _, k := range t.order {
		p := t.writes[k]
		if p.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), p.value)
	}
	return batch
}

// Commit applies the staged writes atomically. A Tx with nothing staged
// commits without touching the store.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if !t.Dirty() {
		return nil
	}
	batch := t.Batch()
	if err := t.base.Apply(ctx, batch); err != nil {
		return err
	}
	t.applied = batch.Len()
	return nil
}

// Discard drops every staged write.
func (t *Tx) Discard() {
	t.done = true
	t.writes = nil
	t.order = nil
}

// Applied reports how many operations the last successful Commit wrote.
func (t *Tx) Applied() int {
	return t.applied
}

var _ ReadWriter = (*Tx)(nil)
