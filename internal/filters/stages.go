package filters

import (
	"strings"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

// 阶段名称
const (
	StageRelationship = "relationship"
	StageIgnore       = "ignore"
	StageAvatar       = "avatar"
	StageName         = "name"
	StageLanguage     = "language"
	StageWhitelist    = "whitelist"
	StageBlacklist    = "blacklist"
	StageOnline       = "online"
)

// keywordDelimiters 关键字分隔符
const keywordDelimiters = ",;\n|"

// IgnoreSet 过滤使用的忽略集合
type IgnoreSet interface {
	Contains(handle string) bool
	Add(handles ...string) (bool, error)
}

// Stage 过滤阶段,返回是否接受以及拒绝原因
type Stage interface {
	Name() string
	Accept(c *models.Candidate) (bool, string)
}

// RelationshipStage 已建立关系的候选直接拒绝,并加入忽略集合 (占位账号除外)
type RelationshipStage struct {
	Ignore IgnoreSet
}

func (RelationshipStage) Name() string { return StageRelationship }

func (s RelationshipStage) Accept(c *models.Candidate) (bool, string) {
	if !c.AlreadyRelated {
		return true, ""
	}
	if !c.Synthetic && s.Ignore != nil {
		if _, err := s.Ignore.Add(c.Handle); err != nil {
			log.Warn().Err(err).Str("handle", c.Handle).Msg("已关注账号加入忽略集合失败")
		}
	}
	return false, "已建立关系"
}

// IgnoreStage 忽略集合中的账号拒绝
type IgnoreStage struct {
	Ignore IgnoreSet
}

func (IgnoreStage) Name() string { return StageIgnore }

func (s IgnoreStage) Accept(c *models.Candidate) (bool, string) {
	if s.Ignore != nil && s.Ignore.Contains(c.Handle) {
		return false, "已在忽略集合中"
	}
	return true, ""
}

// AvatarStage 头像过滤
type AvatarStage struct {
	Mode models.AvatarFilter
}

func (AvatarStage) Name() string { return StageAvatar }

func (s AvatarStage) Accept(c *models.Candidate) (bool, string) {
	switch s.Mode {
	case models.AvatarRequired:
		if !c.HasAvatar() {
			return false, "没有真实头像"
		}
	case models.AvatarAbsent:
		if c.HasAvatar() {
			return false, "有真实头像"
		}
	}
	return true, ""
}

// NameStage 名称存在性过滤,显示名为空时回退到账号
type NameStage struct {
	Mode models.NameFilter
}

func (NameStage) Name() string { return StageName }

func (s NameStage) Accept(c *models.Candidate) (bool, string) {
	hasName := strings.TrimSpace(c.EffectiveName()) != ""
	switch s.Mode {
	case models.NameRequired:
		if !hasName {
			return false, "没有名称"
		}
	case models.NameAbsent:
		if hasName {
			return false, "有名称"
		}
	}
	return true, ""
}

// LanguageStage 名称语言过滤,只接受完全一致的书写体系
type LanguageStage struct {
	Script models.Script
}

func (LanguageStage) Name() string { return StageLanguage }

func (s LanguageStage) Accept(c *models.Candidate) (bool, string) {
	if s.Script == models.ScriptAny || s.Script == "" {
		return true, ""
	}
	got := DetectScript(c.EffectiveName())
	if got != s.Script {
		return false, "名称语言为 " + string(got)
	}
	return true, ""
}

// KeywordStage 白名单/黑名单关键字过滤
// 匹配账号和显示名,大小写不敏感的子串匹配
type KeywordStage struct {
	Keywords []string
	Block    bool // true为黑名单
}

// NewKeywordStage 由分隔符字符串创建关键字阶段
func NewKeywordStage(raw string, block bool) KeywordStage {
	return KeywordStage{Keywords: ParseKeywords(raw), Block: block}
}

func (s KeywordStage) Name() string {
	if s.Block {
		return StageBlacklist
	}
	return StageWhitelist
}

func (s KeywordStage) Accept(c *models.Candidate) (bool, string) {
	if len(s.Keywords) == 0 {
		return true, ""
	}
	kw, hit := matchKeyword(s.Keywords, c.Handle, c.DisplayName)
	if s.Block && hit {
		return false, "命中黑名单关键字 " + kw
	}
	if !s.Block && !hit {
		return false, "未命中白名单"
	}
	return true, ""
}

// OnlineStage 在线状态过滤
type OnlineStage struct {
	Mode models.OnlineFilter
}

func (OnlineStage) Name() string { return StageOnline }

func (s OnlineStage) Accept(c *models.Candidate) (bool, string) {
	switch s.Mode {
	case models.OnlineOnly:
		if !c.OnlineHint {
			return false, "不在线"
		}
	case models.OfflineOnly:
		if c.OnlineHint {
			return false, "在线"
		}
	}
	return true, ""
}

// ParseKeywords 按 , ; 换行 | 切分关键字,去空并做大小写折叠
func ParseKeywords(raw string) []string {
	fold := cases.Fold()
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(keywordDelimiters, r)
	})
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, fold.String(p))
		}
	}
	return result
}

func matchKeyword(keywords []string, fields ...string) (string, bool) {
	fold := cases.Fold()
	for _, f := range fields {
		if f == "" {
			continue
		}
		folded := fold.String(f)
		for _, kw := range keywords {
			if strings.Contains(folded, kw) {
				return kw, true
			}
		}
	}
	return "", false
}
