package models

import (
	"encoding/json"
	"time"
)

// RunReport 运行报告 (完成或停止时生成)
type RunReport struct {
	// 运行信息
	RunID      string     `json:"run_id"`
	Mode       RunMode    `json:"mode"`
	Action     ActionKind `json:"action"`
	FinalPhase Phase      `json:"final_phase"`
	StopReason string     `json:"stop_reason,omitempty"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	ProcessedCount int `json:"processed_count"`
	TargetCount    int `json:"target_count"`
	FailedCount    int `json:"failed_count"`
	SkippedCount   int `json:"skipped_count"`

	// 本次运行的操作记录
	Entries  []HistoryEntry   `json:"entries"`
	Failures []FailureRecord  `json:"failures"`
	Filters  FilterSnapshot   `json:"filters"`
}

// FailureRecord 操作失败记录
type FailureRecord struct {
	Handle    string    `json:"handle"`
	Phase     Phase     `json:"phase"`
	ErrorType string    `json:"error_type"` // control_unusable, confirm_timeout, navigation_mismatch等
	ErrorMsg  string    `json:"error_msg"`
	At        time.Time `json:"at"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
