package models

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类
var (
	// ErrExtractionMiss 当前快照没有可操作候选 (驱动翻页,不是错误)
	ErrExtractionMiss = errors.New("未发现可操作候选")
	// ErrStopped 收到停止命令
	ErrStopped = errors.New("运行已停止")
	// ErrTeardown 页面已导航,当前进程实例结束,需要从持久化状态恢复
	ErrTeardown = errors.New("页面已导航,等待恢复")
	// ErrNoActiveRun 没有可恢复的运行
	ErrNoActiveRun = errors.New("没有进行中的运行")
	// ErrAlreadyRunning 已有运行在进行中
	ErrAlreadyRunning = errors.New("已有运行在进行中")
	// ErrConfirmTimeout 确认控件等待超时
	ErrConfirmTimeout = errors.New("确认控件等待超时")
	// ErrControlUnusable 控件已脱离/不可见/被禁用
	ErrControlUnusable = errors.New("控件不可用")
)

// ActionError 单个候选的操作执行失败 (记录后跳过,运行继续)
type ActionError struct {
	Handle string
	Phase  Phase
	Reason string
	Cause  error
}

// Error 实现error接口
func (e *ActionError) Error() string {
	return fmt.Sprintf("操作失败 [%s@%s]: %s: %v", e.Handle, e.Phase, e.Reason, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// StorageError 持久化写入失败 (记录日志,运行在内存中继续)
type StorageError struct {
	Op    string
	Keys  []string
	Cause error
}

// Error 实现error接口
func (e *StorageError) Error() string {
	return fmt.Sprintf("存储%s失败 [%s]: %v", e.Op, strings.Join(e.Keys, ","), e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NavigationMismatchError 重载后地址与期望目标不一致
type NavigationMismatchError struct {
	Expected string
	Actual   string
	Attempt  int
}

// Error 实现error接口
func (e *NavigationMismatchError) Error() string {
	return fmt.Sprintf("导航地址不匹配 (第%d次): 期望 %s, 实际 %s", e.Attempt, e.Expected, e.Actual)
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ValidationError 输入验证错误
type ValidationError struct {
	Field      string
	Value      string
	Reason     string
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("验证失败 [%s=%q]: %s", e.Field, e.Value, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}
