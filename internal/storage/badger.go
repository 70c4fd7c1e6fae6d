package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/rs/zerolog/log"
)

// BadgerStore 基于badger的持久化存储
// SyncWrites 打开,保证进程被强制结束后仍能读到最后一次成功写入
type BadgerStore struct {
	db *badger.DB

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// OpenBadger 打开(或创建)目录中的存储
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil).WithSyncWrites(true)
	return openBadger(opts)
}

// OpenBadgerInMemory 打开纯内存的badger存储 (测试使用)
func OpenBadgerInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败 [%s]: %w", opts.Dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get 读取多个键
func (s *BadgerStore) Get(keys ...string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Set 在一个事务中写入多个键
func (s *BadgerStore) Set(values map[string][]byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range values {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove 在一个事务中删除多个键
func (s *BadgerStore) Remove(keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys 列出指定前缀的键
func (s *BadgerStore) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// OnChange 通过badger订阅注册变更监听
// 回调在订阅goroutine中执行
func (s *BadgerStore) OnChange(listener ChangeListener) func() {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.db.Subscribe(ctx, func(kv *badger.KVList) error {
			changes := make(map[string][]byte, len(kv.Kv))
			for _, e := range kv.Kv {
				if len(e.Value) == 0 {
					changes[string(e.Key)] = nil
					continue
				}
				changes[string(e.Key)] = e.Value
			}
			listener(changes)
			return nil
		}, []pb.Match{{Prefix: []byte{}}})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("存储订阅异常结束")
		}
	}()

	return cancel
}

// Close 取消所有订阅并关闭数据库
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}
