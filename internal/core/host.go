package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/rs/zerolog/log"
)

// Host 承载会话控制器
// 页面导航相当于进程重建: 丢弃旧控制器,等待页面就绪后从持久化状态构建新控制器并恢复
type Host struct {
	deps  Deps
	tasks *storage.TaskStore

	mu         sync.Mutex
	current    *Controller
	running    bool
	cancel     context.CancelCauseFunc
	stopReason string
	done       chan struct{}
	err        error
}

// NewHost 创建宿主
func NewHost(deps Deps) *Host {
	return &Host{deps: deps, tasks: storage.NewTaskStore(deps.Store)}
}

// Launch 异步开始运行. cfg 为 nil 时恢复持久化的运行
// 参数错误和已有运行在返回前同步检查
func (h *Host) Launch(ctx context.Context, cfg *models.RunConfig) error {
	active, err := h.tasks.Load()
	if err != nil {
		return err
	}
	if cfg != nil {
		c := *cfg
		c.Normalize()
		if err := c.Validate(); err != nil {
			return err
		}
		if active != nil && active.IsActive {
			return models.ErrAlreadyRunning
		}
		cfg = &c
	} else if active == nil || !active.IsActive {
		return models.ErrNoActiveRun
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return models.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancelCause(ctx)
	h.running = true
	h.cancel = cancel
	h.stopReason = ""
	h.err = nil
	h.done = make(chan struct{})

	go h.loop(ctx, cfg, h.done)
	return nil
}

// Run 同步运行,直到完成或停止
func (h *Host) Run(ctx context.Context, cfg *models.RunConfig) error {
	if err := h.Launch(ctx, cfg); err != nil {
		return err
	}
	return h.Wait()
}

// Wait 等待当前运行结束
func (h *Host) Wait() error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Host) loop(ctx context.Context, cfg *models.RunConfig, done chan struct{}) {
	err := h.drive(ctx, cfg)

	h.mu.Lock()
	h.err = err
	h.running = false
	h.current = nil
	h.cancel(nil)
	h.cancel = nil
	h.mu.Unlock()
	close(done)
}

func (h *Host) drive(ctx context.Context, cfg *models.RunConfig) error {
	for instance := 1; ; instance++ {
		ctrl, err := NewController(h.deps)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.current = ctrl
		h.mu.Unlock()

		if instance == 1 && cfg != nil {
			err = ctrl.Start(ctx, *cfg)
		} else {
			err = ctrl.Resume(ctx)
		}
		if !errors.Is(err, models.ErrTeardown) {
			return err
		}

		h.mu.Lock()
		h.current = nil
		h.mu.Unlock()

		if err := h.awaitReload(ctx); err != nil {
			// 导航期间收到停止,直接结束持久化的运行
			ctrl, cerr := NewController(h.deps)
			if cerr != nil {
				return cerr
			}
			ctrl.Stop(h.reason())
			return models.ErrStopped
		}
		log.Debug().Int("instance", instance+1).Msg("从持久化状态重建控制器")
	}
}

// awaitReload 等待导航后的页面加载
func (h *Host) awaitReload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := h.deps.Settings.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := h.deps.Page.WaitReady(ctx, timeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("等待页面加载超时,继续恢复")
	}
	return nil
}

// Stop 请求停止当前运行; 没有运行时结束持久化的运行
func (h *Host) Stop(reason string) models.Status {
	if reason == "" {
		reason = "收到停止命令"
	}
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		ctrl, err := NewController(h.deps)
		if err != nil {
			log.Warn().Err(err).Msg("构建控制器失败")
			return h.Status()
		}
		return ctrl.Stop(reason)
	}
	h.stopReason = reason
	current := h.current
	cancel := h.cancel
	h.mu.Unlock()

	var st models.Status
	if current != nil {
		st = current.Stop(reason)
	} else {
		st = h.Status()
	}
	cancel(errors.New(reason))
	return st
}

func (h *Host) reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopReason != "" {
		return h.stopReason
	}
	return "运行被中断"
}

// Running 是否有运行在进行
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Status 当前状态
func (h *Host) Status() models.Status {
	h.mu.Lock()
	current := h.current
	running := h.running
	h.mu.Unlock()

	if current != nil {
		st := current.Status()
		st.IsRunning = st.IsRunning || running
		return st
	}
	if st, err := h.tasks.Load(); err == nil && st != nil {
		status := models.StatusOf(st)
		status.IsRunning = running
		return status
	}
	if st, err := h.tasks.LoadLast(); err == nil && st != nil {
		return models.StatusOf(st)
	}
	return models.Status{}
}
