package receipt

import (
	"strings"
	"time"
)

// SortOrder defines how receipts are ordered when listing.
type SortOrder int

const (
	// SortByCreatedDesc orders receipts newest first.
	SortByCreatedDesc SortOrder = iota
	// SortByCreatedAsc orders receipts oldest first.
	SortByCreatedAsc
)

// ListOptions controls how receipts are selected when querying a store.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Operations []Operation
	Caller     string
	ProofID    string
	CreatedGTE int64
	CreatedLTE int64
	Order      SortOrder
}

// NewListOptions applies opts over the zero value and sanitises the result.
func NewListOptions(opts ...ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != SortByCreatedAsc {
		opts.Order = SortByCreatedDesc
	}
	opts.Caller = strings.ToLower(strings.TrimSpace(opts.Caller))
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of receipts returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset skips the first n matching receipts.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses filters receipts by status.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithOperations filters receipts by operation.
func WithOperations(ops ...Operation) ListOption {
	return func(opts *ListOptions) {
		opts.Operations = append(opts.Operations[:0], ops...)
	}
}

// WithCaller filters receipts by caller address (case-insensitive).
func WithCaller(caller string) ListOption {
	return func(opts *ListOptions) { opts.Caller = caller }
}

// WithProofID filters receipts that touched the given proof id.
func WithProofID(id string) ListOption {
	return func(opts *ListOptions) { opts.ProofID = id }
}

// WithCreatedSince filters receipts created at or after ts.
func WithCreatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.CreatedGTE = 0
			return
		}
		opts.CreatedGTE = ts.Unix()
	}
}

// WithCreatedUntil filters receipts created at or before ts.
func WithCreatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.CreatedLTE = 0
			return
		}
		opts.CreatedLTE = ts.Unix()
	}
}

// WithOrder sets the sort order.
func WithOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

func (opts ListOptions) matches(r *Receipt) bool {
	if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, r.Status) {
		return false
	}
	if len(opts.Operations) > 0 && !containsOperation(opts.Operations, r.Operation) {
		return false
	}
	if opts.Caller != "" && strings.ToLower(r.Caller) != opts.Caller {
		return false
	}
	if opts.ProofID != "" && r.ProofID != opts.ProofID {
		return false
	}
	if opts.CreatedGTE > 0 && r.CreatedAt < opts.CreatedGTE {
		return false
	}
	if opts.CreatedLTE > 0 && r.CreatedAt > opts.CreatedLTE {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsOperation(list []Operation, op Operation) bool {
	for _, v := range list {
		if v == op {
			return true
		}
	}
	return false
}
