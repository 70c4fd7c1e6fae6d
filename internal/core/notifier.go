package core

import (
	"io"
	"os"
	"sync"

	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// 进度事件
const (
	EventStarted   = "started"
	EventNavigate  = "navigate"
	EventAction    = "action"
	EventFailure   = "failure"
	EventSkipped   = "skipped"
	EventPaginate  = "paginate"
	EventCompleted = "completed"
	EventStopped   = "stopped"
)

// Notifier 进度通知,发送后不等待结果
type Notifier interface {
	Emit(event string, payload map[string]interface{})
}

// NopNotifier 丢弃所有事件
type NopNotifier struct{}

// Emit 实现 Notifier
func (NopNotifier) Emit(string, map[string]interface{}) {}

// ProgressNotifier 用进度条展示处理数量,同时写调试日志
type ProgressNotifier struct {
	out io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewProgressNotifier 创建进度通知器,out 为 nil 时输出到标准错误
func NewProgressNotifier(out io.Writer) *ProgressNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &ProgressNotifier{out: out}
}

// Emit 实现 Notifier
func (p *ProgressNotifier) Emit(event string, payload map[string]interface{}) {
	log.Debug().Str("event", event).Fields(payload).Msg("进度事件")

	p.mu.Lock()
	defer p.mu.Unlock()

	switch event {
	case EventStarted:
		target, _ := payload["target_count"].(int)
		processed, _ := payload["processed_count"].(int)
		desc := "处理中"
		if mode, ok := payload["mode"].(string); ok {
			desc = mode
		}
		p.bar = utils.NewProgressBarTo(p.out, target, desc)
		_ = p.bar.Set(processed)
	case EventAction:
		if p.bar == nil {
			return
		}
		if processed, ok := payload["processed_count"].(int); ok {
			_ = p.bar.Set(processed)
		}
	case EventCompleted, EventStopped:
		if p.bar == nil {
			return
		}
		_ = p.bar.Finish()
		p.bar = nil
	}
}
