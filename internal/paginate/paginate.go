// Package paginate 推进列表可见窗口并判断列表是否耗尽。
package paginate

import (
	"context"
	"math"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/rs/zerolog/log"
)

// ScrollMetrics 滚动区域的位置信息 (像素)
type ScrollMetrics struct {
	Position float64 `json:"position"` // scrollTop
	Range    float64 `json:"range"`    // scrollHeight - clientHeight
	Viewport float64 `json:"viewport"` // clientHeight
}

// ScrollRequest 一次滚动请求
type ScrollRequest struct {
	Delta     float64 // 像素
	Synthetic bool    // 额外派发滚轮和键盘事件
}

// Scroller 滚动区域: 列表容器内滚动范围最大的元素,找不到时为容器本身
type Scroller interface {
	Scroll(ctx context.Context, req ScrollRequest) (ScrollMetrics, error)
}

// Config 翻页配置
type Config struct {
	StepFraction     float64       `mapstructure:"step_fraction"`     // 每次滚动视口高度的比例
	SettleDelay      time.Duration `mapstructure:"settle_delay"`      // 滚动后等待加载
	MaxIdleRounds    int           `mapstructure:"max_idle_rounds"`   // 连续空闲轮数上限
	StallRounds      int           `mapstructure:"stall_rounds"`      // 滚动位置和范围不变的轮数
	IdleFloor        int           `mapstructure:"idle_floor"`        // 停滞判定需要的最少空闲轮数
	EscalateAfter    int           `mapstructure:"escalate_after"`    // 空闲多少轮后加大滚动
	EscalationFactor float64       `mapstructure:"escalation_factor"` // 加大后的倍数
}

// DefaultConfig 默认翻页配置
func DefaultConfig() Config {
	return Config{
		StepFraction:     0.8,
		SettleDelay:      1500 * time.Millisecond,
		MaxIdleRounds:    22,
		StallRounds:      3,
		IdleFloor:        8,
		EscalateAfter:    5,
		EscalationFactor: 3,
	}
}

// Controller 翻页控制器
// 每轮提取后调用 Record,没有新候选时调用 Advance
type Controller struct {
	cfg      Config
	scroller Scroller

	idle    int
	stall   int
	rounds  int
	last    ScrollMetrics
	hasLast bool
}

// New 创建翻页控制器
func New(cfg Config, scroller Scroller) *Controller {
	if cfg.StepFraction <= 0 {
		cfg.StepFraction = DefaultConfig().StepFraction
	}
	if cfg.MaxIdleRounds <= 0 {
		cfg.MaxIdleRounds = DefaultConfig().MaxIdleRounds
	}
	if cfg.EscalationFactor < 1 {
		cfg.EscalationFactor = 1
	}
	return &Controller{cfg: cfg, scroller: scroller}
}

// Record 记录一轮提取得到的新候选数量
func (c *Controller) Record(fresh int) {
	if fresh > 0 {
		c.idle = 0
		metrics.PaginationRounds.WithLabelValues("fresh").Inc()
		return
	}
	c.idle++
	metrics.PaginationRounds.WithLabelValues("idle").Inc()
}

// Exhausted 列表是否耗尽
// 连续空闲达到上限,或滚动停滞且空闲达到下限,先满足者生效
func (c *Controller) Exhausted() bool {
	if c.idle >= c.cfg.MaxIdleRounds {
		return true
	}
	return c.cfg.StallRounds > 0 && c.stall >= c.cfg.StallRounds && c.idle >= c.cfg.IdleFloor
}

// Escalated 是否已进入加大滚动阶段
func (c *Controller) Escalated() bool {
	return c.cfg.EscalateAfter > 0 && c.idle >= c.cfg.EscalateAfter
}

// Advance 滚动一步并等待加载
func (c *Controller) Advance(ctx context.Context) error {
	viewport := c.last.Viewport
	if viewport <= 0 {
		viewport = 800
	}
	req := ScrollRequest{Delta: viewport * c.cfg.StepFraction}
	if c.Escalated() {
		req.Delta *= c.cfg.EscalationFactor
		req.Synthetic = true
	}

	m, err := c.scroller.Scroll(ctx, req)
	if err != nil {
		return err
	}
	c.rounds++

	if c.hasLast && sameMetrics(c.last, m) {
		c.stall++
	} else {
		c.stall = 0
	}
	c.last, c.hasLast = m, true

	log.Debug().
		Int("round", c.rounds).
		Int("idle", c.idle).
		Int("stall", c.stall).
		Float64("position", m.Position).
		Float64("range", m.Range).
		Bool("escalated", req.Synthetic).
		Msg("列表滚动")

	return utils.Sleep(ctx, c.cfg.SettleDelay)
}

// IdleRounds 当前连续空闲轮数
func (c *Controller) IdleRounds() int { return c.idle }

// StallRounds 当前连续停滞轮数
func (c *Controller) StallRounds() int { return c.stall }

// Rounds 已滚动的总轮数
func (c *Controller) Rounds() int { return c.rounds }

func sameMetrics(a, b ScrollMetrics) bool {
	return math.Abs(a.Position-b.Position) < 1 && math.Abs(a.Range-b.Range) < 1
}
