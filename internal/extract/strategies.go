package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// handleRun 账号文本: 至少3个字符,只含字母数字点下划线
var handleRun = regexp.MustCompile(`^[A-Za-z0-9._]{3,}$`)

// reservedPaths 站内非用户主页的一级路径
var reservedPaths = map[string]bool{
	"explore": true, "accounts": true, "p": true, "reel": true, "reels": true,
	"stories": true, "direct": true, "about": true, "legal": true, "developer": true,
	"web": true, "challenge": true, "emails": true, "tv": true,
}

// syntheticNamespace 占位账号的UUID命名空间
var syntheticNamespace = uuid.MustParse("6f1c52e4-5a0b-4c59-8a77-0d8a3f0d9c21")

// Scope 候选所在的祖先范围,只包含策略需要的数据
type Scope struct {
	Runs           []string // 短文本片段 (已排除控件文本)
	Hrefs          []string // 范围内链接
	Text           string   // 短文本片段拼接
	ClassSignature string
}

// Identity 策略推导出的身份
type Identity struct {
	Handle      string
	DisplayName string
	Synthetic   bool
}

// Strategy 账号推导策略,按优先级依次尝试
type Strategy interface {
	Name() string
	Derive(s *Scope) (Identity, bool)
}

// DefaultStrategies 默认策略链
func DefaultStrategies() []Strategy {
	return []Strategy{
		hrefStrategy{},
		compositeStrategy{},
		textRunStrategy{},
		syntheticStrategy{},
	}
}

// hrefStrategy 从用户主页链接推导账号
type hrefStrategy struct{}

func (hrefStrategy) Name() string { return "href" }

func (hrefStrategy) Derive(s *Scope) (Identity, bool) {
	for _, href := range s.Hrefs {
		handle, ok := handleFromHref(href)
		if !ok {
			continue
		}
		id := Identity{Handle: handle}
		for _, run := range s.Runs {
			if IsDisplayNameRun(run) && !strings.EqualFold(run, handle) {
				id.DisplayName = run
				break
			}
		}
		return id, true
	}
	return Identity{}, false
}

// compositeStrategy 拆分账号与显示名直接拼接的文本,如 "johndoeJohn Doe"
type compositeStrategy struct{}

func (compositeStrategy) Name() string { return "composite" }

func (compositeStrategy) Derive(s *Scope) (Identity, bool) {
	for _, run := range s.Runs {
		handle, name, ok := SplitComposite(run)
		if ok {
			return Identity{Handle: strings.ToLower(handle), DisplayName: name}, true
		}
	}
	return Identity{}, false
}

// textRunStrategy 按文本形态分别识别账号和显示名
type textRunStrategy struct{}

func (textRunStrategy) Name() string { return "text-runs" }

func (textRunStrategy) Derive(s *Scope) (Identity, bool) {
	var id Identity
	for _, run := range s.Runs {
		switch {
		case id.Handle == "" && IsHandleRun(run):
			id.Handle = strings.ToLower(run)
		case id.DisplayName == "" && IsDisplayNameRun(run):
			id.DisplayName = run
		}
	}
	if id.Handle == "" {
		return Identity{}, false
	}
	return id, true
}

// syntheticStrategy 无法推导账号时生成确定性的占位账号
// 同一范围在多次提取中得到相同的占位账号,翻页空闲检测依赖这一点
type syntheticStrategy struct{}

func (syntheticStrategy) Name() string { return "synthetic" }

func (syntheticStrategy) Derive(s *Scope) (Identity, bool) {
	id := Identity{Synthetic: true}
	for _, run := range s.Runs {
		if IsDisplayNameRun(run) {
			id.DisplayName = run
			break
		}
	}
	key := s.Text + "\x1f" + s.ClassSignature + "\x1f" + strings.Join(s.Hrefs, " ")
	id.Handle = "synthetic-" + uuid.NewSHA1(syntheticNamespace, []byte(key)).String()[:13]
	return id, true
}

// IsHandleRun 文本是否为账号形态
func IsHandleRun(run string) bool {
	return handleRun.MatchString(run)
}

// IsDisplayNameRun 文本是否为显示名形态: 含空格或非拉丁字母
func IsDisplayNameRun(run string) bool {
	if strings.ContainsRune(strings.TrimSpace(run), ' ') {
		return true
	}
	for _, r := range run {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// SplitComposite 在小写字母之后的第一个大写字母处拆分拼接文本
// 账号部分必须是小写账号形态,剩余部分作为显示名
func SplitComposite(run string) (handle, name string, ok bool) {
	runes := []rune(run)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			handle, name = string(runes[:i]), strings.TrimSpace(string(runes[i:]))
			break
		}
	}
	if handle == "" || name == "" {
		return "", "", false
	}
	if !IsHandleRun(handle) || strings.ToLower(handle) != handle {
		return "", "", false
	}
	return handle, name, true
}

// handleFromHref 从 "/name/" 或 "https://host/name/" 形式的链接中取账号
func handleFromHref(href string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) != 1 || segments[0] == "" {
		return "", false
	}
	seg := segments[0]
	if reservedPaths[strings.ToLower(seg)] || !IsHandleRun(seg) {
		return "", false
	}
	return strings.ToLower(seg), true
}
