package events

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkClosed 在 sink 关闭后继续投递时返回。
var ErrSinkClosed = errors.New("事件通道已关闭")

// MemorySink 在内存中记录事件，同时通过有缓冲 channel 推送给订阅者，主要用于测试与单机部署。
type MemorySink struct {
	mu      sync.Mutex
	history []Event
	ch      chan Event
	closed  bool
}

// NewMemorySink 创建内存 sink，size 为订阅 channel 的容量。
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = 64
	}
	return &MemorySink{ch: make(chan Event, size)}
}

// Emit 记录事件。channel 已满时丢弃推送但保留历史记录。
func (s *MemorySink) Emit(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.history = append(s.history, evt)
	select {
	case s.ch <- evt:
	default:
	}
	return nil
}

// Events 返回已记录事件的快照。
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// Subscribe 返回推送 channel，Close 后该 channel 被关闭。
func (s *MemorySink) Subscribe() <-chan Event {
	return s.ch
}

// Close 关闭推送 channel。
func (s *MemorySink) Close() error {
	s.mu.Lock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	s.mu.Unlock()
	return nil
}

var _ Sink = (*MemorySink)(nil)
