package models

import (
	"encoding/json"
	"time"
)

// FilterSnapshot 执行操作时的过滤条件快照
type FilterSnapshot struct {
	Mode         RunMode      `json:"mode"`
	Action       ActionKind   `json:"action"`
	AvatarFilter AvatarFilter `json:"avatar_filter"`
	NameFilter   NameFilter   `json:"name_filter"`
	NameLanguage Script       `json:"name_language"`
	OnlineFilter OnlineFilter `json:"online_filter"`
	Whitelist    string       `json:"whitelist,omitempty"`
	Blacklist    string       `json:"blacklist,omitempty"`
}

// HistoryEntry 操作历史记录 (只追加)
type HistoryEntry struct {
	Handle      string         `json:"handle"`
	DisplayName string         `json:"display_name,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Timestamp   time.Time      `json:"timestamp"` // 单调递增
	Seq         int64          `json:"seq"`
	RunID       string         `json:"run_id"`
	Filters     FilterSnapshot `json:"filters"`
}

// ToJSON 序列化为JSON
func (h *HistoryEntry) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// FromJSON 从JSON反序列化
func (h *HistoryEntry) FromJSON(data []byte) error {
	return json.Unmarshal(data, h)
}
