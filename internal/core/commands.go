package core

import (
	"context"
	"errors"
	"sync"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
)

// 命令类型
const (
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdGetStatus = "getStatus"
)

// Command 命令面请求
type Command struct {
	Type   string            `json:"type"`
	Config *models.RunConfig `json:"config,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Response 每个命令都有响应,未知命令返回 Unknown
type Response struct {
	OK      bool           `json:"ok"`
	Unknown bool           `json:"unknown,omitempty"`
	Error   string         `json:"error,omitempty"`
	Status  *models.Status `json:"status,omitempty"`
}

// Dispatcher 命令分发
type Dispatcher struct {
	ctx  context.Context
	host *Host

	wg sync.WaitGroup
}

// NewDispatcher 创建分发器. start 命令启动的运行使用 ctx
func NewDispatcher(ctx context.Context, host *Host) *Dispatcher {
	return &Dispatcher{ctx: ctx, host: host}
}

// Handle 处理单个命令
func (d *Dispatcher) Handle(cmd Command) Response {
	switch cmd.Type {
	case CmdStart:
		return d.start(cmd)
	case CmdStop:
		st := d.host.Stop(cmd.Reason)
		return Response{OK: true, Status: &st}
	case CmdGetStatus:
		st := d.host.Status()
		return Response{OK: true, Status: &st}
	default:
		log.Warn().Str("command", cmd.Type).Msg("未知命令")
		return Response{Unknown: true, Error: "unknown command: " + cmd.Type}
	}
}

func (d *Dispatcher) start(cmd Command) Response {
	if cmd.Config == nil {
		return Response{Error: "start 命令缺少运行配置"}
	}
	if err := d.host.Launch(d.ctx, cmd.Config); err != nil {
		return Response{Error: err.Error()}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.host.Wait()
		if err != nil && !errors.Is(err, models.ErrStopped) {
			log.Error().Err(err).Msg("运行失败")
		}
	}()

	st := d.host.Status()
	st.IsRunning = true
	return Response{OK: true, Status: &st}
}

// Wait 等待 start 命令启动的运行全部结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
