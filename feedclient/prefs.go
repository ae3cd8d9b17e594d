package feedclient

import "sync"

// MemoryPrefStore 是进程内的 PrefStore 实现，宿主未接入持久化
// 偏好时使用。
type MemoryPrefStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPrefStore 构造内存偏好存储。
func NewMemoryPrefStore() *MemoryPrefStore {
	return &MemoryPrefStore{values: make(map[string]string)}
}

// Get 返回键对应的值，缺失时返回空串。
func (s *MemoryPrefStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set 写入键值。
func (s *MemoryPrefStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
