package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunMode 运行模式
type RunMode string

const (
	ModeBulkVisible RunMode = "bulk_visible" // 在当前可见列表中批量操作
	ModeListDriven  RunMode = "list_driven"  // 按目标列表逐个导航操作
)

// ActionKind 关系操作类型
type ActionKind string

const (
	ActionFollow   ActionKind = "follow"
	ActionUnfollow ActionKind = "unfollow"
)

// Phase 会话状态机阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListing    Phase = "listing"
	PhaseExtracting Phase = "extracting"
	PhaseFiltering  Phase = "filtering"
	PhaseActing     Phase = "acting"
	PhasePaginating Phase = "paginating"

	PhaseNavigatingToTarget Phase = "navigating_to_target"
	PhaseAwaitingPageReady  Phase = "awaiting_page_ready"
	PhaseActingOnProfile    Phase = "acting_on_profile"
	PhaseAdvancingIndex     Phase = "advancing_index"

	PhaseCompleted Phase = "completed"
	PhaseStopped   Phase = "stopped"
)

// Terminal 是否为终止阶段
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseStopped
}

// AvatarFilter 头像过滤模式
type AvatarFilter string

const (
	AvatarAll      AvatarFilter = "all"
	AvatarRequired AvatarFilter = "with_avatar"
	AvatarAbsent   AvatarFilter = "without_avatar"
)

// NameFilter 名称存在性过滤模式
type NameFilter string

const (
	NameAll      NameFilter = "all"
	NameRequired NameFilter = "with_name"
	NameAbsent   NameFilter = "without_name"
)

// OnlineFilter 在线状态过滤模式
type OnlineFilter string

const (
	OnlineAll   OnlineFilter = "all"
	OnlineOnly  OnlineFilter = "online"
	OfflineOnly OnlineFilter = "offline"
)

// Script 名称主要书写体系
type Script string

const (
	ScriptEmpty    Script = "empty"
	ScriptCyrillic Script = "cyrillic"
	ScriptArabic   Script = "arabic"
	ScriptLatin    Script = "latin"
	ScriptMixed    Script = "mixed"
	ScriptOther    Script = "other"
	// ScriptAny 仅用于配置,表示不按语言过滤
	ScriptAny Script = "all"
)

// RunConfig 单次运行配置 (运行期间不可变,除非显式更新)
type RunConfig struct {
	Mode         RunMode      `json:"mode" mapstructure:"mode"`
	Action       ActionKind   `json:"action" mapstructure:"action"`
	TargetCount  int          `json:"target_count" mapstructure:"target_count"`
	DelayMin     Duration     `json:"delay_min" mapstructure:"delay_min"`
	DelayMax     Duration     `json:"delay_max" mapstructure:"delay_max"`
	AvatarFilter AvatarFilter `json:"avatar_filter" mapstructure:"avatar_filter"`
	NameFilter   NameFilter   `json:"name_filter" mapstructure:"name_filter"`
	NameLanguage Script       `json:"name_language" mapstructure:"name_language"`
	OnlineFilter OnlineFilter `json:"online_filter" mapstructure:"online_filter"`
	Whitelist    string       `json:"whitelist" mapstructure:"whitelist"` // 分隔符切分的关键字串
	Blacklist    string       `json:"blacklist" mapstructure:"blacklist"`
	Targets      []string     `json:"targets,omitempty" mapstructure:"targets"` // ListDriven 显式目标列表
	Ignore       []string     `json:"ignore,omitempty" mapstructure:"ignore"`   // 额外忽略的账号
	ListingURL   string       `json:"listing_url,omitempty" mapstructure:"listing_url"`
}

// DefaultRunConfig 默认运行配置
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Mode:         ModeBulkVisible,
		Action:       ActionFollow,
		TargetCount:  20,
		DelayMin:     Duration(20 * time.Second),
		DelayMax:     Duration(40 * time.Second),
		AvatarFilter: AvatarAll,
		NameFilter:   NameAll,
		NameLanguage: ScriptAny,
		OnlineFilter: OnlineAll,
	}
}

// Normalize 填充空字段的默认值
func (c *RunConfig) Normalize() {
	if c.Mode == "" {
		c.Mode = ModeBulkVisible
	}
	if c.Action == "" {
		c.Action = ActionFollow
	}
	if c.AvatarFilter == "" {
		c.AvatarFilter = AvatarAll
	}
	if c.NameFilter == "" {
		c.NameFilter = NameAll
	}
	if c.NameLanguage == "" {
		c.NameLanguage = ScriptAny
	}
	if c.OnlineFilter == "" {
		c.OnlineFilter = OnlineAll
	}
	if c.Mode == ModeListDriven && c.TargetCount <= 0 {
		c.TargetCount = len(c.Targets)
	}
}

// Validate 验证配置
func (c *RunConfig) Validate() error {
	switch c.Mode {
	case ModeBulkVisible, ModeListDriven:
	default:
		return fmt.Errorf("无效的运行模式: %s", c.Mode)
	}
	switch c.Action {
	case ActionFollow, ActionUnfollow:
	default:
		return fmt.Errorf("无效的操作类型: %s", c.Action)
	}
	if c.TargetCount < 1 || c.TargetCount > 10000 {
		return fmt.Errorf("目标数量必须在1-10000之间,当前值: %d", c.TargetCount)
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("延迟区间无效: [%s, %s]", c.DelayMin, c.DelayMax)
	}
	if c.Mode == ModeListDriven && len(c.Targets) == 0 {
		return fmt.Errorf("列表模式需要至少一个目标账号")
	}
	switch c.AvatarFilter {
	case AvatarAll, AvatarRequired, AvatarAbsent:
	default:
		return fmt.Errorf("无效的头像过滤: %s", c.AvatarFilter)
	}
	switch c.NameFilter {
	case NameAll, NameRequired, NameAbsent:
	default:
		return fmt.Errorf("无效的名称过滤: %s", c.NameFilter)
	}
	switch c.NameLanguage {
	case ScriptAny, ScriptCyrillic, ScriptArabic, ScriptLatin, ScriptMixed, ScriptOther:
	default:
		return fmt.Errorf("无效的名称语言: %s", c.NameLanguage)
	}
	switch c.OnlineFilter {
	case OnlineAll, OnlineOnly, OfflineOnly:
	default:
		return fmt.Errorf("无效的在线过滤: %s", c.OnlineFilter)
	}
	return nil
}

// Snapshot 生成过滤条件快照 (写入历史记录)
func (c *RunConfig) Snapshot() FilterSnapshot {
	return FilterSnapshot{
		Mode:         c.Mode,
		Action:       c.Action,
		AvatarFilter: c.AvatarFilter,
		NameFilter:   c.NameFilter,
		NameLanguage: c.NameLanguage,
		OnlineFilter: c.OnlineFilter,
		Whitelist:    c.Whitelist,
		Blacklist:    c.Blacklist,
	}
}

// TaskState 持久化的任务状态
// 每次变更后写入持久化存储,页面重载后读取以恢复
type TaskState struct {
	RunID          string          `json:"run_id"`
	Phase          Phase           `json:"phase"`
	Mode           RunMode         `json:"mode"`
	ProcessedCount int             `json:"processed_count"`
	TargetCount    int             `json:"target_count"`
	CurrentIndex   int             `json:"current_index"`   // ListDriven 当前目标下标
	PendingTargets []string        `json:"pending_targets"` // ListDriven 目标列表
	IsActive       bool            `json:"is_active"`
	NavAttempts    int             `json:"nav_attempts"` // 当前下标的导航重试次数
	FailedCount    int             `json:"failed_count"`
	SkippedCount   int             `json:"skipped_count"`
	StopReason     string          `json:"stop_reason,omitempty"`
	Failures       []FailureRecord `json:"failures,omitempty"` // 跨页面重载保留的失败记录
	Config         RunConfig       `json:"config"`             // 配置快照,恢复时使用
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewTaskState 根据配置创建新的任务状态
func NewTaskState(cfg RunConfig) *TaskState {
	now := time.Now()
	st := &TaskState{
		RunID:       generateID(),
		Phase:       PhaseIdle,
		Mode:        cfg.Mode,
		TargetCount: cfg.TargetCount,
		IsActive:    true,
		Config:      cfg,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if cfg.Mode == ModeListDriven {
		st.PendingTargets = append([]string(nil), cfg.Targets...)
	}
	return st
}

// Remaining 剩余需要处理的数量
func (s *TaskState) Remaining() int {
	if s.ProcessedCount >= s.TargetCount {
		return 0
	}
	return s.TargetCount - s.ProcessedCount
}

// CurrentTarget 返回ListDriven模式当前下标的目标
func (s *TaskState) CurrentTarget() (string, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.PendingTargets) {
		return "", false
	}
	return s.PendingTargets[s.CurrentIndex], true
}

// Clone 深拷贝
func (s *TaskState) Clone() *TaskState {
	cp := *s
	cp.PendingTargets = append([]string(nil), s.PendingTargets...)
	cp.Failures = append([]FailureRecord(nil), s.Failures...)
	cp.Config.Targets = append([]string(nil), s.Config.Targets...)
	cp.Config.Ignore = append([]string(nil), s.Config.Ignore...)
	return &cp
}

// ToJSON 序列化为JSON
func (s *TaskState) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON 从JSON反序列化
func (s *TaskState) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// Status 对外暴露的运行状态
type Status struct {
	IsRunning      bool    `json:"is_running"`
	ProcessedCount int     `json:"processed_count"`
	TargetCount    int     `json:"target_count"`
	Mode           RunMode `json:"mode"`
	Phase          Phase   `json:"phase,omitempty"`
	RunID          string  `json:"run_id,omitempty"`
	StopReason     string  `json:"stop_reason,omitempty"`
}

// StatusOf 由任务状态生成对外状态
func StatusOf(st *TaskState) Status {
	if st == nil {
		return Status{}
	}
	return Status{
		IsRunning:      st.IsActive,
		ProcessedCount: st.ProcessedCount,
		TargetCount:    st.TargetCount,
		Mode:           st.Mode,
		Phase:          st.Phase,
		RunID:          st.RunID,
		StopReason:     st.StopReason,
	}
}
