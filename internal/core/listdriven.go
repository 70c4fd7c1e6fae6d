package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/extract"
	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/rs/zerolog/log"
)

// runListDriven 列表模式,每个目标一次整页导航
// NavigatingToTarget → AwaitingPageReady → ActingOnProfile → AdvancingIndex → (NavigatingToTarget | Completed)
func (c *Controller) runListDriven(ctx context.Context, s *Session) (string, error) {
	ex := c.extractor(s)
	exec := c.executor(s, ex)
	settings := c.deps.Settings.ListDriven

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.State.Remaining() == 0 {
			return ReasonTargetReached, nil
		}
		target, ok := s.State.CurrentTarget()
		if !ok {
			return ReasonListFinished, nil
		}

		s.setPhase(models.PhaseNavigatingToTarget)
		if c.ignore.Contains(target) {
			s.recordSkip(target, "已在忽略集合中")
			c.advance(s)
			continue
		}

		profile := c.profileURL(target)
		loc := c.location(ctx)
		if !sameLocation(loc, profile) {
			if s.State.NavAttempts > 0 {
				mismatch := &models.NavigationMismatchError{Expected: profile, Actual: loc, Attempt: s.State.NavAttempts}
				if s.State.NavAttempts > settings.MaxNavRetries {
					// 重试用尽,推进下标避免卡住
					s.recordFailure(target, models.PhaseNavigatingToTarget, mismatch)
					c.advance(s)
					continue
				}
				metrics.NavigationRetries.Inc()
				log.Warn().Err(mismatch).Str("handle", target).Msg("导航地址不匹配,重试")
			}
			s.mutate(func(st *models.TaskState) { st.NavAttempts++ })
			return "", c.navigate(ctx, s, profile)
		}

		s.setPhase(models.PhaseAwaitingPageReady)
		ctrl, err := c.awaitControl(ctx, ex, target)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.recordFailure(target, models.PhaseAwaitingPageReady, err)
			c.advance(s)
			continue
		}

		s.setPhase(models.PhaseActingOnProfile)
		if ctrl.AlreadyRelated {
			if _, err := c.ignore.Add(target); err != nil {
				log.Warn().Err(err).Str("handle", target).Msg("写入忽略集合失败")
			}
			s.recordSkip(target, "已建立关系")
			c.advance(s)
			continue
		}

		cand := models.Candidate{Handle: target, Ref: ctrl.Ref, ControlText: ctrl.Text, Strategy: "profile"}
		err = exec.Execute(ctx, s, cand)
		if err != nil && ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.advance(s)
		// 后面的目标都已忽略时这就是最后一次操作
		if err == nil && c.hasPendingTarget(s) {
			if err := exec.Pace(ctx, s); err != nil {
				return "", err
			}
		}
	}
}

// advance 推进到下一个目标并持久化
func (c *Controller) advance(s *Session) {
	s.mutate(func(st *models.TaskState) {
		st.Phase = models.PhaseAdvancingIndex
		st.CurrentIndex++
		st.NavAttempts = 0
	})
}

// hasPendingTarget 当前下标之后是否还有不在忽略集合中的目标
func (c *Controller) hasPendingTarget(s *Session) bool {
	if s.State.Remaining() == 0 {
		return false
	}
	for _, target := range s.State.PendingTargets[min(s.State.CurrentIndex, len(s.State.PendingTargets)):] {
		if !c.ignore.Contains(target) {
			return true
		}
	}
	return false
}

// awaitControl 等待页面加载并找到主页上的操作按钮
func (c *Controller) awaitControl(ctx context.Context, ex *extract.Extractor, target string) (extract.Control, error) {
	timeout := c.deps.Settings.ListDriven.PageReadyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if err := c.deps.Page.WaitReady(ctx, timeout); err != nil {
		if ctx.Err() != nil {
			return extract.Control{}, ctx.Err()
		}
		log.Debug().Err(err).Str("handle", target).Msg("等待页面加载失败,继续查找按钮")
	}

	var found extract.Control
	err := utils.PollUntil(ctx, c.deps.Settings.Executor.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		snap, err := c.deps.Page.Snapshot(ctx)
		if err != nil {
			return false, nil
		}
		ctrl, ok := ex.FindControl(snap)
		if ok {
			found = ctrl
		}
		return ok, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		return found, &models.ActionError{
			Handle: target,
			Phase:  models.PhaseAwaitingPageReady,
			Reason: "主页未就绪或找不到操作按钮",
			Cause:  models.ErrControlUnusable,
		}
	}
	return found, err
}

// profileURL 目标主页地址
func (c *Controller) profileURL(handle string) string {
	if tpl := c.deps.Settings.ListDriven.ProfileURLTemplate; tpl != "" {
		return fmt.Sprintf(tpl, handle)
	}
	return strings.TrimRight(c.deps.Settings.BaseURL, "/") + "/" + handle + "/"
}
