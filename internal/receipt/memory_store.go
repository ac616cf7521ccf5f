package receipt

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 以内存方式保存回执，按写入顺序保留。
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
	order    []string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: make(map[string]*Receipt)}
}

// Save 实现 Store 接口。
func (m *MemoryStore) Save(_ context.Context, r *Receipt) error {
	if err := validate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[r.TxID]; ok {
		return ErrReceiptConflict
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	m.receipts[r.TxID] = cloneReceipt(r)
	m.order = append(m.order, r.TxID)
	return nil
}

// Get 返回回执。
func (m *MemoryStore) Get(_ context.Context, txID string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[txID]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return cloneReceipt(r), nil
}

// List 返回符合过滤条件的回执。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Receipt, 0, len(m.order))
	for i := range m.order {
		id := m.order[i]
		if opts.Order == SortByCreatedDesc {
			id = m.order[len(m.order)-1-i]
		}
		if r := m.receipts[id]; opts.matches(r) {
			results = append(results, cloneReceipt(r))
		}
	}

	// 稳定排序，同一秒内的回执保持写入顺序（倒序时后写在前）。
	sort.SliceStable(results, func(i, j int) bool {
		if opts.Order == SortByCreatedAsc {
			return results[i].CreatedAt < results[j].CreatedAt
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})

	if opts.Offset >= len(results) {
		return []*Receipt{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的回执。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	var stats Stats
	for _, id := range m.order {
		r := m.receipts[id]
		if !opts.matches(r) {
			continue
		}
		stats.add(r)
	}
	return stats, nil
}

func (s *Stats) add(r *Receipt) {
	s.Total++
	switch r.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
	switch r.Operation {
	case OperationCertify:
		s.Certify++
	case OperationUpdate:
		s.Update++
	}
	if r.CreatedAt > s.Newest {
		s.Newest = r.CreatedAt
	}
	if s.Oldest == 0 || (r.CreatedAt != 0 && r.CreatedAt < s.Oldest) {
		s.Oldest = r.CreatedAt
	}
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
