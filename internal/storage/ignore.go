package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
)

// KeyIgnoreSet 忽略集合的存储键,独立于任务状态,停止和完成时保留
const KeyIgnoreSet = "ignore_set"

// IgnoreSet 只增不减的账号集合
type IgnoreSet struct {
	db Durable

	mu      sync.RWMutex
	handles map[string]struct{}
}

// LoadIgnoreSet 从存储加载忽略集合
func LoadIgnoreSet(db Durable) (*IgnoreSet, error) {
	set := &IgnoreSet{db: db, handles: make(map[string]struct{})}

	values, err := db.Get(KeyIgnoreSet)
	if err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{KeyIgnoreSet}, Cause: err}
	}
	if data, ok := values[KeyIgnoreSet]; ok {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, &models.StorageError{Op: "load", Keys: []string{KeyIgnoreSet}, Cause: err}
		}
		for _, h := range list {
			set.handles[normalizeKey(h)] = struct{}{}
		}
	}
	return set, nil
}

// Contains 是否已在集合中
func (s *IgnoreSet) Contains(handle string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handles[normalizeKey(handle)]
	return ok
}

// Add 加入账号并持久化,返回是否为新账号
// 持久化失败时内存中仍然保留. 写入在锁内完成,较旧的快照不会覆盖较新的
func (s *IgnoreSet) Add(handles ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, h := range handles {
		k := normalizeKey(h)
		if k == "" {
			continue
		}
		if _, ok := s.handles[k]; !ok {
			s.handles[k] = struct{}{}
			added = true
		}
	}
	if !added {
		return false, nil
	}

	data, err := json.Marshal(s.listLocked())
	if err == nil {
		err = s.db.Set(map[string][]byte{KeyIgnoreSet: data})
	}
	if err != nil {
		metrics.StorageFailures.Inc()
		log.Error().Err(err).Strs("handles", handles).Msg("忽略集合持久化失败")
		return true, &models.StorageError{Op: "save", Keys: []string{KeyIgnoreSet}, Cause: err}
	}
	return true, nil
}

// Len 集合大小
func (s *IgnoreSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// List 有序列表
func (s *IgnoreSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *IgnoreSet) listLocked() []string {
	list := make([]string, 0, len(s.handles))
	for h := range s.handles {
		list = append(list, h)
	}
	sort.Strings(list)
	return list
}

func normalizeKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
