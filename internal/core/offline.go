package core

import (
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/rs/zerolog/log"
)

// PersistedStatus 不经过控制器读取状态: 进行中的运行优先,其次上一次运行
func PersistedStatus(db storage.Durable) (models.Status, error) {
	tasks := storage.NewTaskStore(db)
	st, err := tasks.Load()
	if err != nil {
		return models.Status{}, err
	}
	if st == nil {
		if st, err = tasks.LoadLast(); err != nil {
			return models.Status{}, err
		}
	}
	return models.StatusOf(st), nil
}

// StopPersisted 在没有页面的进程中结束持久化的运行
// 控制服务不可达时 CLI 的 stop 命令使用; 没有进行中的运行时返回上一次运行的状态
func StopPersisted(db storage.Durable, reason string) (models.Status, error) {
	if reason == "" {
		reason = "收到停止命令"
	}
	tasks := storage.NewTaskStore(db)
	st, err := tasks.Load()
	if err != nil {
		return models.Status{}, err
	}
	if st == nil || !st.IsActive {
		return PersistedStatus(db)
	}

	st.Phase = models.PhaseStopped
	st.StopReason = reason
	if err := tasks.Finish(st); err != nil {
		return models.StatusOf(st), err
	}
	log.Info().
		Str("run_id", st.RunID).
		Str("reason", reason).
		Int("processed", st.ProcessedCount).
		Int("target", st.TargetCount).
		Msg("⏹️ 已结束持久化的运行")
	return models.StatusOf(st), nil
}
