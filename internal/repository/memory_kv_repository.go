package repository

import (
	"context"
	"oabt_client/internal/util"
	"sync"
)

// MemoryKVRepository 进程内存储，storage.driver=memory 以及测试使用
type MemoryKVRepository struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{data: make(map[string]string)}
}

func (r *MemoryKVRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return "", util.ErrKeyNotFound
	}
	return v, nil
}

func (r *MemoryKVRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	r.data[key] = value
	r.mu.Unlock()
	return nil
}

func (r *MemoryKVRepository) Remove(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.data, key)
	r.mu.Unlock()
	return nil
}

func (r *MemoryKVRepository) MultiSet(_ context.Context, pairs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range pairs {
		r.data[k] = v
	}
	return nil
}

func (r *MemoryKVRepository) MultiRemove(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}

func (r *MemoryKVRepository) Ping(context.Context) error {
	return nil
}

// Len 测试辅助
func (r *MemoryKVRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
