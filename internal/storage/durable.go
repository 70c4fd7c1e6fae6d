// Package storage 提供跨页面重载存活的持久化键值存储,
// 以及建立在其上的任务状态、忽略集合与操作历史。
package storage

// ChangeListener 存储变更回调
// changes 中值为nil表示该键被删除
type ChangeListener func(changes map[string][]byte)

// Durable 持久化键值存储
// 写入对调用方是尽力而为的,失败时返回错误但不阻塞核心逻辑
type Durable interface {
	// Get 读取多个键,不存在的键不出现在结果中
	Get(keys ...string) (map[string][]byte, error)
	// Set 原子写入多个键
	Set(values map[string][]byte) error
	// Remove 删除多个键
	Remove(keys ...string) error
	// Keys 列出指定前缀的所有键 (有序)
	Keys(prefix string) ([]string, error)
	// OnChange 注册变更监听,返回取消函数
	OnChange(listener ChangeListener) (cancel func())
	// Close 关闭存储
	Close() error
}
