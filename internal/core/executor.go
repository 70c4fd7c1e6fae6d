package core

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/RecoveryAshes/AutoFollow/internal/extract"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/rs/zerolog/log"
)

// SleepFunc 可取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor 对单个候选执行关系操作,并控制两次操作之间的随机间隔
type Executor struct {
	page   driver.Page
	ext    *extract.Extractor
	cfg    ExecutorConfig
	action models.ActionKind
	rnd    *rand.Rand
	sleep  SleepFunc
}

// NewExecutor 创建操作执行器
func NewExecutor(page driver.Page, ext *extract.Extractor, cfg ExecutorConfig, action models.ActionKind, rnd *rand.Rand) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 6 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Millisecond
	}
	return &Executor{page: page, ext: ext, cfg: cfg, action: action, rnd: rnd, sleep: utils.Sleep}
}

// Execute 执行操作并记录结果
// 失败返回 *models.ActionError (已记录,调用方跳过该候选); 因 ctx 取消而失败时返回 ctx 的错误
// 停止请求之前已经完成的操作照常记录
func (e *Executor) Execute(ctx context.Context, s *Session, c models.Candidate) error {
	if err := e.perform(ctx, s.State.Phase, c); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.recordFailure(c.Handle, s.State.Phase, err)
		return err
	}
	s.recordSuccess(c)
	return nil
}

// Pace 在下一次操作前等待 [DelayMin, DelayMax] 内的随机时长
// 运行的最后一次操作之后不等待
func (e *Executor) Pace(ctx context.Context, s *Session) error {
	if s.State.Remaining() == 0 {
		return nil
	}
	cfg := s.State.Config
	delay := utils.RandomDuration(e.rnd, time.Duration(cfg.DelayMin), time.Duration(cfg.DelayMax))
	log.Debug().Dur("delay", delay).Msg("等待下一次操作")
	return e.sleep(ctx, delay)
}

func (e *Executor) perform(ctx context.Context, phase models.Phase, c models.Candidate) error {
	fail := func(reason string, cause error) error {
		return &models.ActionError{Handle: c.Handle, Phase: phase, Reason: reason, Cause: cause}
	}

	// 先确认控件仍在文档中,脱离的控件立即失败
	st, err := e.page.ControlState(ctx, c.Ref)
	if err != nil {
		return fail("查询控件状态失败", err)
	}
	switch {
	case !st.Attached:
		return fail("控件已脱离文档", models.ErrControlUnusable)
	case !st.Visible:
		return fail("控件不可见", models.ErrControlUnusable)
	case !st.Enabled:
		return fail("控件已禁用", models.ErrControlUnusable)
	}

	if err := e.page.ScrollIntoView(ctx, c.Ref); err != nil {
		return fail("控件无法滚动到可见区域", errors.Join(models.ErrControlUnusable, err))
	}

	if err := e.page.Activate(ctx, c.Ref); err != nil {
		return fail("点击失败", err)
	}

	if !e.needsConfirm() {
		return nil
	}
	if err := e.confirm(ctx); err != nil {
		return fail("确认失败", err)
	}
	return nil
}

// needsConfirm 取消关注总会弹出确认框
func (e *Executor) needsConfirm() bool {
	return e.action == models.ActionUnfollow
}

// confirm 轮询确认控件并点击
func (e *Executor) confirm(ctx context.Context) error {
	err := utils.PollUntil(ctx, e.cfg.PollInterval, e.cfg.ConfirmTimeout, func(ctx context.Context) (bool, error) {
		snap, err := e.page.Snapshot(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("确认框快照失败")
			return false, nil
		}
		ctrl, ok := e.ext.FindConfirm(snap)
		if !ok {
			return false, nil
		}
		if err := e.page.Activate(ctx, ctrl.Ref); err != nil {
			log.Debug().Err(err).Str("ref", ctrl.Ref).Msg("点击确认控件失败,继续等待")
			return false, nil
		}
		return true, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		return models.ErrConfirmTimeout
	}
	return err
}
