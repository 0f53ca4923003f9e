package store

import (
	"context"
	"sync"
)

// Memory 进程内存储，供 CLI 的一次性命令和测试使用
type Memory struct {
	mu     sync.Mutex
	values map[string]any
	saves  int
}

// NewMemory 以给定初始值创建内存存储
func NewMemory(initial map[string]any) *Memory {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Memory{values: values}
}

func (m *Memory) Get(_ context.Context, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	v, err := plain(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Save(context.Context) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *Memory) All(context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

// Saves 返回 Save 被调用的次数
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
