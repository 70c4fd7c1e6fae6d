package storage

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// KeyTaskState 进行中任务状态的存储键
	KeyTaskState = "task_state"
	// KeyLastRun 最近一次结束的运行
	KeyLastRun = "last_run"
)

// TaskStore 任务状态持久化
// Load 总是返回最后一次成功保存的状态
type TaskStore struct {
	db Durable
}

// NewTaskStore 创建任务状态存储
func NewTaskStore(db Durable) *TaskStore {
	return &TaskStore{db: db}
}

// Save 保存任务状态
// 失败时记录日志并返回StorageError,调用方可以忽略错误继续在内存中运行
func (ts *TaskStore) Save(st *models.TaskState) error {
	st.UpdatedAt = time.Now()
	data, err := st.ToJSON()
	if err != nil {
		return ts.fail("save", err)
	}
	if err := ts.db.Set(map[string][]byte{KeyTaskState: data}); err != nil {
		return ts.fail("save", err)
	}
	return nil
}

// Load 读取任务状态,不存在时返回 (nil, nil)
func (ts *TaskStore) Load() (*models.TaskState, error) {
	return ts.load(KeyTaskState)
}

// LoadLast 读取最近一次结束的运行
func (ts *TaskStore) LoadLast() (*models.TaskState, error) {
	return ts.load(KeyLastRun)
}

// Finish 保存最终计数并清除进行中标记
// 先写 last_run 再删除 task_state,中途失败时下次启动仍能看到未结束的运行
func (ts *TaskStore) Finish(st *models.TaskState) error {
	st.IsActive = false
	st.UpdatedAt = time.Now()
	data, err := st.ToJSON()
	if err != nil {
		return ts.fail("finish", err)
	}
	if err := ts.db.Set(map[string][]byte{KeyLastRun: data}); err != nil {
		return ts.fail("finish", err)
	}
	return ts.Clear()
}

func (ts *TaskStore) load(key string) (*models.TaskState, error) {
	values, err := ts.db.Get(key)
	if err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{key}, Cause: err}
	}
	data, ok := values[key]
	if !ok {
		return nil, nil
	}

	var st models.TaskState
	if err := st.FromJSON(data); err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{key}, Cause: fmt.Errorf("状态数据损坏: %w", err)}
	}
	return &st, nil
}

// Clear 删除任务状态 (忽略集合和历史保留)
func (ts *TaskStore) Clear() error {
	if err := ts.db.Remove(KeyTaskState); err != nil {
		return ts.fail("clear", err)
	}
	return nil
}

func (ts *TaskStore) fail(op string, cause error) error {
	err := &models.StorageError{Op: op, Keys: []string{KeyTaskState}, Cause: cause}
	metrics.StorageFailures.Inc()
	log.Error().Err(cause).Str("op", op).Msg("任务状态持久化失败,继续在内存中运行")
	return err
}
