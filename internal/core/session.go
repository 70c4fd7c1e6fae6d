package core

import (
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/rs/zerolog/log"
)

// Session 一次运行在当前进程实例中的全部可变状态
// 由控制器持有并以指针传给各个组件; 页面导航后丢弃,从持久化状态重建
type Session struct {
	mu    sync.Mutex
	State *models.TaskState

	tasks    *storage.TaskStore
	ignore   *storage.IgnoreSet
	history  *storage.History
	notifier Notifier

	// 本进程实例内已见过的候选 (IdentityKey)
	seen map[string]bool
	// 本进程实例内已尝试过的账号,含占位账号和失败账号
	attempted map[string]bool
}

func newSession(st *models.TaskState, tasks *storage.TaskStore, ignore *storage.IgnoreSet, history *storage.History, notifier Notifier) *Session {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Session{
		State:     st,
		tasks:     tasks,
		ignore:    ignore,
		history:   history,
		notifier:  notifier,
		seen:      make(map[string]bool),
		attempted: make(map[string]bool),
	}
}

// mutate 修改状态后立即持久化. 写入失败只记录日志,运行在内存中继续
func (s *Session) mutate(fn func(st *models.TaskState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.State)
	_ = s.tasks.Save(s.State)
}

// setPhase 切换阶段
func (s *Session) setPhase(p models.Phase) {
	if s.State.Phase == p {
		return
	}
	log.Debug().
		Str("run_id", s.State.RunID).
		Str("from", string(s.State.Phase)).
		Str("to", string(p)).
		Msg("阶段切换")
	s.mutate(func(st *models.TaskState) { st.Phase = p })
}

// snapshot 返回状态副本,可在其他goroutine中读取
func (s *Session) snapshot() *models.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State.Clone()
}

// fresh 返回本进程实例中首次出现的候选
func (s *Session) fresh(cands []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, 0, len(cands))
	for _, c := range cands {
		key := c.IdentityKey()
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		if s.attempted[c.Handle] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// recordSuccess 记录成功的操作: 历史, 忽略集合, 计数, 持久化
// 占位账号不写入历史和忽略集合,只在本进程内去重
func (s *Session) recordSuccess(c models.Candidate) {
	s.attempted[c.Handle] = true

	var entry models.HistoryEntry
	if !c.Synthetic {
		var err error
		entry, err = s.history.Append(models.HistoryEntry{
			Handle:      c.Handle,
			DisplayName: c.DisplayName,
			AvatarURL:   c.AvatarURL,
			RunID:       s.State.RunID,
			Filters:     s.State.Config.Snapshot(),
		})
		if err != nil {
			log.Warn().Err(err).Str("handle", c.Handle).Msg("写入历史失败")
		}
		if _, err := s.ignore.Add(c.Handle); err != nil {
			log.Warn().Err(err).Str("handle", c.Handle).Msg("写入忽略集合失败")
		}
	}

	s.mutate(func(st *models.TaskState) {
		if st.ProcessedCount < st.TargetCount {
			st.ProcessedCount++
		}
	})

	action := string(s.State.Config.Action)
	metrics.ActionsTotal.WithLabelValues(action, "success").Inc()
	metrics.Processed.Set(float64(s.State.ProcessedCount))

	log.Info().
		Str("run_id", s.State.RunID).
		Str("handle", c.Handle).
		Str("display_name", c.DisplayName).
		Bool("synthetic", c.Synthetic).
		Int("processed", s.State.ProcessedCount).
		Int("target", s.State.TargetCount).
		Msgf("✅ %s 成功", action)

	s.notifier.Emit(EventAction, map[string]interface{}{
		"handle":          c.Handle,
		"processed_count": s.State.ProcessedCount,
		"target_count":    s.State.TargetCount,
		"seq":             entry.Seq,
	})
}

// recordFailure 记录失败并跳过该候选
func (s *Session) recordFailure(handle string, phase models.Phase, err error) {
	s.attempted[handle] = true

	rec := models.FailureRecord{
		Handle:    handle,
		Phase:     phase,
		ErrorType: errorType(err),
		ErrorMsg:  err.Error(),
		At:        time.Now(),
	}
	s.mutate(func(st *models.TaskState) {
		st.FailedCount++
		st.Failures = append(st.Failures, rec)
	})

	metrics.ActionsTotal.WithLabelValues(string(s.State.Config.Action), "failure").Inc()
	log.Warn().
		Err(err).
		Str("run_id", s.State.RunID).
		Str("handle", handle).
		Str("phase", string(phase)).
		Str("error_type", rec.ErrorType).
		Msg("操作失败,跳过")

	s.notifier.Emit(EventFailure, map[string]interface{}{
		"handle":     handle,
		"phase":      string(phase),
		"error_type": rec.ErrorType,
	})
}

// recordSkip 已建立关系或已忽略的目标,不计入处理数量
func (s *Session) recordSkip(handle, reason string) {
	s.attempted[handle] = true
	s.mutate(func(st *models.TaskState) { st.SkippedCount++ })

	log.Info().Str("run_id", s.State.RunID).Str("handle", handle).Str("reason", reason).Msg("⏭️ 跳过目标")
	s.notifier.Emit(EventSkipped, map[string]interface{}{"handle": handle, "reason": reason})
}

// errorType 失败分类,写入报告
func errorType(err error) string {
	var nav *models.NavigationMismatchError
	switch {
	case errors.Is(err, models.ErrConfirmTimeout):
		return "confirm_timeout"
	case errors.Is(err, models.ErrControlUnusable):
		return "control_unusable"
	case errors.As(err, &nav):
		return "navigation_mismatch"
	default:
		return "action_failed"
	}
}
