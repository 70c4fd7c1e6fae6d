package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore 内存实现,用于测试和 --no-persist 运行
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string][]byte
	listeners map[int]ChangeListener
	nextID    int
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string][]byte),
		listeners: make(map[int]ChangeListener),
	}
}

// Get 读取多个键
func (m *MemoryStore) Get(keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			result[k] = append([]byte(nil), v...)
		}
	}
	return result, nil
}

// Set 写入多个键
func (m *MemoryStore) Set(values map[string][]byte) error {
	changes := make(map[string][]byte, len(values))
	m.mu.Lock()
	for k, v := range values {
		cp := append([]byte(nil), v...)
		m.data[k] = cp
		changes[k] = cp
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

// Remove 删除多个键
func (m *MemoryStore) Remove(keys ...string) error {
	changes := make(map[string][]byte, len(keys))
	m.mu.Lock()
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			changes[k] = nil
		}
	}
	m.mu.Unlock()

	if len(changes) > 0 {
		m.notify(changes)
	}
	return nil
}

// Keys 列出指定前缀的键
func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// OnChange 注册变更监听 (同步回调)
func (m *MemoryStore) OnChange(listener ChangeListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Close 无操作
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) notify(changes map[string][]byte) {
	m.mu.RLock()
	listeners := make([]ChangeListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()

	for _, l := range listeners {
		l(changes)
	}
}
