package core

import (
	"context"

	"github.com/RecoveryAshes/AutoFollow/internal/filters"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
	"github.com/rs/zerolog/log"
)

// 完成原因
const (
	ReasonTargetReached = "已达到目标数量"
	ReasonExhausted     = "没有更多候选"
	ReasonListFinished  = "目标列表已处理完"
)

// runBulk 可见列表批量模式
// Listing → Extracting → Filtering → Acting → (Paginating | Completed | Stopped)
func (c *Controller) runBulk(ctx context.Context, s *Session) (string, error) {
	page := c.deps.Page
	cfg := s.State.Config

	ex := c.extractor(s)
	exec := c.executor(s, ex)
	pipe := filters.NewPipeline(cfg, c.ignore)
	pager := paginate.New(c.deps.Settings.Pagination, page)

	s.setPhase(models.PhaseListing)
	if err := c.ensureListing(ctx, s); err != nil {
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.State.Remaining() == 0 {
			return ReasonTargetReached, nil
		}

		s.setPhase(models.PhaseExtracting)
		snap, err := page.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Warn().Err(err).Str("run_id", s.State.RunID).Msg("页面快照失败,按无候选处理")
		}
		fresh := s.fresh(ex.Extract(snap))
		pager.Record(len(fresh))

		s.setPhase(models.PhaseFiltering)
		accepted := pipe.Filter(fresh)
		log.Debug().
			Int("fresh", len(fresh)).
			Int("accepted", len(accepted)).
			Int("idle_rounds", pager.IdleRounds()).
			Msg("本轮提取")

		if len(accepted) == 0 {
			if pager.Exhausted() {
				log.Info().
					Str("run_id", s.State.RunID).
					Int("rounds", pager.Rounds()).
					Int("idle_rounds", pager.IdleRounds()).
					Msg("📭 列表已无更多候选")
				return ReasonExhausted, nil
			}
			s.setPhase(models.PhasePaginating)
			s.notifier.Emit(EventPaginate, map[string]interface{}{
				"idle_rounds": pager.IdleRounds(),
				"escalated":   pager.Escalated(),
			})
			if err := pager.Advance(ctx); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				log.Warn().Err(err).Msg("滚动失败,计为空闲轮")
			}
			continue
		}

		s.setPhase(models.PhaseActing)
		for _, cand := range accepted {
			if s.State.Remaining() == 0 {
				break
			}
			if err := exec.Execute(ctx, s, cand); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				continue
			}
			if err := exec.Pace(ctx, s); err != nil {
				return "", err
			}
		}
	}
}

// ensureListing 配置了列表地址且当前不在该页面时导航过去
// 导航重试达到上限后在当前页面继续
func (c *Controller) ensureListing(ctx context.Context, s *Session) error {
	target := s.State.Config.ListingURL
	if target == "" {
		return nil
	}

	loc := c.location(ctx)
	if sameLocation(loc, target) {
		if s.State.NavAttempts > 0 {
			s.mutate(func(st *models.TaskState) { st.NavAttempts = 0 })
		}
		return nil
	}

	if s.State.NavAttempts > c.deps.Settings.ListDriven.MaxNavRetries {
		log.Warn().
			Err(&models.NavigationMismatchError{Expected: target, Actual: loc, Attempt: s.State.NavAttempts}).
			Msg("无法到达列表页面,在当前页面继续")
		return nil
	}
	if s.State.NavAttempts > 0 {
		log.Warn().Str("expected", target).Str("actual", loc).Msg("列表页面地址不匹配,重新导航")
	}

	s.mutate(func(st *models.TaskState) { st.NavAttempts++ })
	return c.navigate(ctx, s, target)
}
