package models

import "strings"

// Candidate 一次提取周期内的可操作列表项
// Ref 仅在当前快照内有效,翻页或重新提取后失效
type Candidate struct {
	Handle          string `json:"handle"`
	DisplayName     string `json:"display_name,omitempty"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	IsDefaultAvatar bool   `json:"is_default_avatar"`
	OnlineHint      bool   `json:"online_hint"`
	AlreadyRelated  bool   `json:"already_related"` // 控件显示为已建立关系
	Synthetic       bool   `json:"synthetic"`       // 无法推导账号时生成的占位账号
	Ref             string `json:"ref"`             // 快照中的控件引用
	ControlText     string `json:"control_text"`
	RawText         string `json:"raw_text"`
	ClassSignature  string `json:"class_signature"`
	Strategy        string `json:"strategy"` // 推导账号所用的提取策略
}

// HasAvatar 是否有真实头像
func (c *Candidate) HasAvatar() bool {
	return !c.IsDefaultAvatar && c.AvatarURL != ""
}

// EffectiveName 名称过滤使用的名称: 优先显示名,否则账号名
func (c *Candidate) EffectiveName() string {
	if strings.TrimSpace(c.DisplayName) != "" {
		return c.DisplayName
	}
	if c.Synthetic {
		return ""
	}
	return c.Handle
}

// IdentityKey 去重用复合键: 账号 + 原始文本 + class签名
func (c *Candidate) IdentityKey() string {
	return c.Handle + "\x1f" + c.RawText + "\x1f" + c.ClassSignature
}
