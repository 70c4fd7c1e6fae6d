// Package core 实现会话控制器: 两种运行模式的状态机、操作执行器、命令分发和跨导航恢复。
package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/config"
	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/RecoveryAshes/AutoFollow/internal/extract"
	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/rs/zerolog/log"
)

// Settings 控制器配置
type Settings struct {
	Pagination        paginate.Config
	Executor          ExecutorConfig
	ListDriven        ListDrivenConfig
	BaseURL           string
	NavigationTimeout time.Duration
	ReportDir         string
}

// Reporter 运行报告输出
type Reporter interface {
	GenerateReport(report *models.RunReport) (string, error)
}

// Deps 控制器依赖
type Deps struct {
	Page     driver.Page
	Store    storage.Durable
	Lexicon  *config.Lexicon
	Settings Settings
	Notifier Notifier
	Reporter Reporter   // 可为空
	Rand     *rand.Rand // 可为空
	Sleep    SleepFunc  // 可为空,默认 utils.Sleep
}

// Controller 会话控制器
// 每个进程实例一个; 导航后由 Host 丢弃并从持久化状态重新构建
type Controller struct {
	deps    Deps
	tasks   *storage.TaskStore
	ignore  *storage.IgnoreSet
	history *storage.History

	mu         sync.Mutex
	session    *Session
	cancel     context.CancelFunc
	stopReason string
}

// NewController 从持久化存储构建控制器
func NewController(deps Deps) (*Controller, error) {
	if deps.Page == nil || deps.Store == nil {
		return nil, errors.New("控制器缺少页面或存储")
	}
	if deps.Lexicon == nil {
		deps.Lexicon = config.DefaultLexicon()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Sleep == nil {
		deps.Sleep = utils.Sleep
	}

	ignore, err := storage.LoadIgnoreSet(deps.Store)
	if err != nil {
		return nil, err
	}
	history, err := storage.OpenHistory(deps.Store)
	if err != nil {
		return nil, err
	}
	return &Controller{
		deps:    deps,
		tasks:   storage.NewTaskStore(deps.Store),
		ignore:  ignore,
		history: history,
	}, nil
}

// Ignore 忽略集合
func (c *Controller) Ignore() *storage.IgnoreSet {
	return c.ignore
}

// History 历史记录
func (c *Controller) History() *storage.History {
	return c.history
}

// Start 开始新的运行,阻塞直到完成、停止或页面导航
// 页面导航时返回 models.ErrTeardown,状态已持久化
func (c *Controller) Start(ctx context.Context, cfg models.RunConfig) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if active, err := c.tasks.Load(); err == nil && active != nil && active.IsActive {
		return fmt.Errorf("%w: %s", models.ErrAlreadyRunning, active.RunID)
	}

	if len(cfg.Ignore) > 0 {
		if _, err := c.ignore.Add(cfg.Ignore...); err != nil {
			log.Warn().Err(err).Msg("写入额外忽略账号失败")
		}
	}

	st := models.NewTaskState(cfg)
	st.Phase = initialPhase(cfg.Mode)
	s := newSession(st, c.tasks, c.ignore, c.history, c.deps.Notifier)
	_ = c.tasks.Save(st)

	log.Info().
		Str("run_id", st.RunID).
		Str("mode", string(cfg.Mode)).
		Str("action", string(cfg.Action)).
		Int("target_count", cfg.TargetCount).
		Msg("🚀 开始运行")
	return c.run(ctx, s)
}

// Resume 从持久化状态恢复进行中的运行
// 列表模式从持久化的 currentIndex 重新进入 NavigatingToTarget,不重放之前的下标
func (c *Controller) Resume(ctx context.Context) error {
	st, err := c.tasks.Load()
	if err != nil {
		return err
	}
	if st == nil || !st.IsActive || st.Phase.Terminal() {
		return models.ErrNoActiveRun
	}

	st.Phase = initialPhase(st.Mode)
	s := newSession(st, c.tasks, c.ignore, c.history, c.deps.Notifier)
	_ = c.tasks.Save(st)

	log.Info().
		Str("run_id", st.RunID).
		Str("mode", string(st.Mode)).
		Int("processed", st.ProcessedCount).
		Int("target", st.TargetCount).
		Int("current_index", st.CurrentIndex).
		Msg("🔄 恢复运行")
	return c.run(ctx, s)
}

func initialPhase(mode models.RunMode) models.Phase {
	if mode == models.ModeListDriven {
		return models.PhaseNavigatingToTarget
	}
	return models.PhaseListing
}

func (c *Controller) run(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return models.ErrAlreadyRunning
	}
	c.session = s
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.session = nil
		c.cancel = nil
		c.mu.Unlock()
	}()

	metrics.Processed.Set(float64(s.State.ProcessedCount))
	s.notifier.Emit(EventStarted, map[string]interface{}{
		"run_id":          s.State.RunID,
		"mode":            string(s.State.Mode),
		"processed_count": s.State.ProcessedCount,
		"target_count":    s.State.TargetCount,
	})

	var (
		reason string
		err    error
	)
	switch s.State.Mode {
	case models.ModeListDriven:
		reason, err = c.runListDriven(ctx, s)
	default:
		reason, err = c.runBulk(ctx, s)
	}

	switch {
	case errors.Is(err, models.ErrTeardown):
		log.Info().Str("run_id", s.State.RunID).Str("phase", string(s.State.Phase)).Msg("页面导航,当前实例结束")
		return err
	case ctx.Err() != nil:
		c.finish(s, models.PhaseStopped, c.reasonForStop(ctx))
		return models.ErrStopped
	case err != nil:
		log.Error().Err(err).Str("run_id", s.State.RunID).Str("phase", string(s.State.Phase)).Msg("运行异常结束")
		c.finish(s, models.PhaseStopped, err.Error())
		return err
	default:
		c.finish(s, models.PhaseCompleted, reason)
		return nil
	}
}

// Stop 请求停止. 正在运行时在下一个等待点生效; 本进程没有运行时直接结束持久化的运行
func (c *Controller) Stop(reason string) models.Status {
	if reason == "" {
		reason = "收到停止命令"
	}

	c.mu.Lock()
	if c.session != nil {
		c.stopReason = reason
		c.cancel()
		st := c.session.snapshot()
		c.mu.Unlock()
		log.Info().Str("run_id", st.RunID).Str("reason", reason).Msg("⏹️ 请求停止")
		return models.StatusOf(st)
	}
	c.mu.Unlock()

	st, err := c.tasks.Load()
	if err != nil || st == nil || !st.IsActive {
		return c.Status()
	}
	s := newSession(st, c.tasks, c.ignore, c.history, c.deps.Notifier)
	c.finish(s, models.PhaseStopped, reason)
	return models.StatusOf(s.State)
}

// reasonForStop 停止原因: Stop 传入的原因,其次是上层 ctx 的取消原因
func (c *Controller) reasonForStop(ctx context.Context) string {
	c.mu.Lock()
	reason := c.stopReason
	c.mu.Unlock()
	if reason != "" {
		return reason
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return "运行被中断"
}

// Status 当前状态: 进行中的运行优先,其次持久化的运行,最后是上一次运行
func (c *Controller) Status() models.Status {
	c.mu.Lock()
	if c.session != nil {
		st := c.session.snapshot()
		c.mu.Unlock()
		status := models.StatusOf(st)
		status.IsRunning = true
		return status
	}
	c.mu.Unlock()

	if st, err := c.tasks.Load(); err == nil && st != nil {
		return models.StatusOf(st)
	}
	if st, err := c.tasks.LoadLast(); err == nil && st != nil {
		return models.StatusOf(st)
	}
	return models.Status{}
}

// finish 持久化最终计数,清除进行中标记,忽略集合保留
func (c *Controller) finish(s *Session, phase models.Phase, reason string) {
	s.mu.Lock()
	s.State.Phase = phase
	s.State.StopReason = reason
	s.State.IsActive = false
	_ = s.tasks.Finish(s.State)
	st := s.State.Clone()
	s.mu.Unlock()

	metrics.Processed.Set(float64(st.ProcessedCount))

	event := EventCompleted
	icon := "🎉"
	if phase == models.PhaseStopped {
		event = EventStopped
		icon = "⏹️"
	}
	log.Info().
		Str("run_id", st.RunID).
		Str("phase", string(phase)).
		Str("reason", reason).
		Int("processed", st.ProcessedCount).
		Int("target", st.TargetCount).
		Int("failed", st.FailedCount).
		Int("skipped", st.SkippedCount).
		Msgf("%s 运行结束", icon)

	s.notifier.Emit(event, map[string]interface{}{
		"run_id":          st.RunID,
		"reason":          reason,
		"processed_count": st.ProcessedCount,
		"target_count":    st.TargetCount,
	})

	if c.deps.Reporter != nil {
		report := c.buildReport(st)
		if path, err := c.deps.Reporter.GenerateReport(report); err != nil {
			log.Warn().Err(err).Msg("生成运行报告失败")
		} else {
			log.Info().Str("path", path).Msg("📄 运行报告已生成")
		}
	}
}

func (c *Controller) buildReport(st *models.TaskState) *models.RunReport {
	entries, err := c.history.ListRun(st.RunID)
	if err != nil {
		log.Warn().Err(err).Msg("读取本次运行历史失败")
	}
	end := time.Now()
	return &models.RunReport{
		RunID:          st.RunID,
		Mode:           st.Mode,
		Action:         st.Config.Action,
		FinalPhase:     st.Phase,
		StopReason:     st.StopReason,
		StartTime:      st.StartedAt,
		EndTime:        end,
		Duration:       end.Sub(st.StartedAt).Seconds(),
		ProcessedCount: st.ProcessedCount,
		TargetCount:    st.TargetCount,
		FailedCount:    st.FailedCount,
		SkippedCount:   st.SkippedCount,
		Entries:        entries,
		Failures:       st.Failures,
		Filters:        st.Config.Snapshot(),
	}
}

// executor 为当前运行创建执行器
func (c *Controller) executor(s *Session, ex *extract.Extractor) *Executor {
	e := NewExecutor(c.deps.Page, ex, c.deps.Settings.Executor, s.State.Config.Action, c.deps.Rand)
	e.sleep = c.deps.Sleep
	return e
}

func (c *Controller) extractor(s *Session) *extract.Extractor {
	return extract.New(c.deps.Lexicon, s.State.Config.Action)
}

// navigate 持久化后导航. 导航会结束当前进程实例,总是返回 ErrTeardown
func (c *Controller) navigate(ctx context.Context, s *Session, target string) error {
	s.notifier.Emit(EventNavigate, map[string]interface{}{"url": target})
	log.Info().Str("run_id", s.State.RunID).Str("url", target).Int("attempt", s.State.NavAttempts).Msg("🌐 导航")

	if err := c.deps.Page.Navigate(ctx, target); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("url", target).Msg("导航失败,恢复后重试")
	}
	return models.ErrTeardown
}

// location 当前页面地址,读取失败时返回空串
func (c *Controller) location(ctx context.Context) string {
	loc, err := c.deps.Page.Location(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("读取页面地址失败")
		return ""
	}
	return loc
}

// sameLocation 比较主机和路径,忽略末尾斜杠、查询串和大小写
func sameLocation(actual, expected string) bool {
	a, err := url.Parse(strings.TrimSpace(actual))
	if err != nil || actual == "" {
		return false
	}
	e, err := url.Parse(strings.TrimSpace(expected))
	if err != nil {
		return false
	}
	if e.Host != "" && !strings.EqualFold(strings.TrimPrefix(a.Host, "www."), strings.TrimPrefix(e.Host, "www.")) {
		return false
	}
	return strings.EqualFold(strings.TrimRight(a.Path, "/"), strings.TrimRight(e.Path, "/"))
}
