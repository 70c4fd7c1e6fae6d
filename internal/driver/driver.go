// Package driver 封装对页面的所有操作。
// 会话控制器只通过 Page 接口访问页面,测试中使用内存实现替代真实浏览器。
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
)

// ErrBrowserCrashed 浏览器崩溃或连接断开
var ErrBrowserCrashed = errors.New("浏览器崩溃")

// ControlState 控件当前状态
type ControlState struct {
	Attached bool // 仍在文档中
	Visible  bool
	Enabled  bool
}

// Usable 控件是否可以点击
func (s ControlState) Usable() bool {
	return s.Attached && s.Visible && s.Enabled
}

// Page 单个页面上下文
type Page interface {
	paginate.Scroller

	// Snapshot 为可点击控件写入引用属性并返回序列化的HTML
	// 同一元素在多次快照中保持相同引用
	Snapshot(ctx context.Context) (string, error)
	// ScrollIntoView 将控件滚动到可见区域
	ScrollIntoView(ctx context.Context, ref string) error
	// ControlState 查询控件状态
	ControlState(ctx context.Context, ref string) (ControlState, error)
	// Activate 点击控件,原生点击失败时派发合成事件
	Activate(ctx context.Context, ref string) error
	// Navigate 整页导航,当前进程实例随之结束
	Navigate(ctx context.Context, url string) error
	// Location 当前页面地址
	Location(ctx context.Context) (string, error)
	// WaitReady 等待页面加载完成
	WaitReady(ctx context.Context, timeout time.Duration) error
}
