package proofs

// DefaultPageSize applies when a listing is requested with a limit of zero.
// Listings without any ListOption return everything.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ListOptions controls which slice of a user's index is returned.
type ListOptions struct {
	Offset uint64
	Limit  uint64
	paged  bool
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithOffset skips the first n entries.
func WithOffset(n uint64) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = n
		opts.paged = true
	}
}

// WithLimit caps the number of entries returned.
func WithLimit(n uint64) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = n
		opts.paged = true
	}
}

func newListOptions(opts ...ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.paged {
		if options.Limit == 0 {
			options.Limit = DefaultPageSize
		}
		if options.Limit > MaxPageSize {
			options.Limit = MaxPageSize
		}
	}
	return options
}

// window returns the [start, end) positions to read out of count entries.
func (o ListOptions) window(count uint64) (uint64, uint64) {
	if !o.paged {
		return 0, count
	}
	start := o.Offset
	if start > count {
		start = count
	}
	end := count
	if count-start > o.Limit {
		end = start + o.Limit
	}
	return start, end
}
