package paginate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScroller 记录请求,按脚本返回滚动信息
type fakeScroller struct {
	requests []ScrollRequest
	next     func(round int) ScrollMetrics
	err      error
}

func (f *fakeScroller) Scroll(_ context.Context, req ScrollRequest) (ScrollMetrics, error) {
	if f.err != nil {
		return ScrollMetrics{}, f.err
	}
	f.requests = append(f.requests, req)
	return f.next(len(f.requests)), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	return cfg
}

// runIdle 模拟每轮都没有新候选,返回判定耗尽时的空闲轮数
func runIdle(t *testing.T, c *Controller, limit int) int {
	t.Helper()
	for i := 0; i < limit; i++ {
		c.Record(0)
		if c.Exhausted() {
			return c.IdleRounds()
		}
		require.NoError(t, c.Advance(context.Background()))
	}
	t.Fatalf("%d 轮后仍未判定耗尽", limit)
	return 0
}

func TestController_StalledListExhaustsAtFloor(t *testing.T) {
	cfg := testConfig()
	s := &fakeScroller{next: func(int) ScrollMetrics { return ScrollMetrics{Position: 500, Range: 500, Viewport: 600} }}
	c := New(cfg, s)

	idle := runIdle(t, c, 100)
	assert.Equal(t, cfg.IdleFloor, idle, "停滞时在空闲下限处结束")
	assert.LessOrEqual(t, idle, cfg.MaxIdleRounds)
}

func TestController_SlowLoadingWaitsForMaxIdle(t *testing.T) {
	cfg := testConfig()
	// 范围持续增长但没有新候选 (慢速增量加载)
	s := &fakeScroller{next: func(round int) ScrollMetrics {
		return ScrollMetrics{Position: float64(round * 100), Range: float64(round*100 + 50), Viewport: 600}
	}}
	c := New(cfg, s)

	idle := runIdle(t, c, 100)
	assert.Equal(t, cfg.MaxIdleRounds, idle)
	assert.Zero(t, c.StallRounds())
}

func TestController_FreshCandidatesResetIdle(t *testing.T) {
	s := &fakeScroller{next: func(int) ScrollMetrics { return ScrollMetrics{Viewport: 600} }}
	c := New(testConfig(), s)

	for i := 0; i < 5; i++ {
		c.Record(0)
	}
	assert.Equal(t, 5, c.IdleRounds())
	c.Record(3)
	assert.Equal(t, 0, c.IdleRounds())
	assert.False(t, c.Exhausted())
}

func TestController_Escalates(t *testing.T) {
	cfg := testConfig()
	s := &fakeScroller{next: func(round int) ScrollMetrics {
		return ScrollMetrics{Position: float64(round), Range: 10000, Viewport: 1000}
	}}
	c := New(cfg, s)

	require.NoError(t, c.Advance(context.Background()))
	assert.False(t, s.requests[0].Synthetic)
	assert.InDelta(t, 800*cfg.StepFraction, s.requests[0].Delta, 0.001, "首轮使用默认视口高度")

	for i := 0; i < cfg.EscalateAfter; i++ {
		c.Record(0)
	}
	require.NoError(t, c.Advance(context.Background()))
	last := s.requests[len(s.requests)-1]
	assert.True(t, last.Synthetic)
	assert.InDelta(t, 1000*cfg.StepFraction*cfg.EscalationFactor, last.Delta, 0.001)
}

func TestController_ScrollError(t *testing.T) {
	boom := errors.New("detached")
	c := New(testConfig(), &fakeScroller{err: boom})
	assert.ErrorIs(t, c.Advance(context.Background()), boom)
}

func TestController_AdvanceCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = time.Hour
	c := New(cfg, &fakeScroller{next: func(int) ScrollMetrics { return ScrollMetrics{} }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Advance(ctx), context.Canceled)
}
