// Package extract 从页面快照中提取可操作的候选列表项。
//
// 快照是驱动层序列化的HTML,其中可点击控件带有 data-af-ref 引用,
// 图片带有自然尺寸属性。提取过程不会返回错误: 找不到可操作范围时返回空列表。
package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/AutoFollow/internal/config"
	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

// 快照属性,由驱动层在序列化前写入
const (
	AttrRef      = "data-af-ref"
	AttrHidden   = "data-af-hidden"
	AttrNaturalW = "data-af-nw"
	AttrNaturalH = "data-af-nh"
)

const (
	// DefaultMaxDepth 从控件向上查找范围的最大层数
	DefaultMaxDepth = 8
	// maxRunLength 短文本片段的最大长度 (字符)
	maxRunLength = 60
)

// Control 快照中匹配词典的控件
type Control struct {
	Ref            string
	Text           string
	AlreadyRelated bool
}

// Extractor 候选提取器
type Extractor struct {
	actionTexts   map[string]bool
	settledTexts  map[string]bool
	confirmTexts  map[string]bool
	placeholders  []string
	onlineMarkers []string
	strategies    []Strategy
	maxDepth      int
}

// New 根据词典和操作类型创建提取器
func New(lex *config.Lexicon, action models.ActionKind) *Extractor {
	return &Extractor{
		actionTexts:   foldSet(lex.ActionTexts(action)),
		settledTexts:  foldSet(lex.SettledTexts(action)),
		confirmTexts:  foldSet(lex.Confirm),
		placeholders:  lex.PlaceholderAvatars,
		onlineMarkers: foldList(lex.OnlineMarkers),
		strategies:    DefaultStrategies(),
		maxDepth:      DefaultMaxDepth,
	}
}

// WithStrategies 替换策略链
func (e *Extractor) WithStrategies(strategies ...Strategy) *Extractor {
	e.strategies = strategies
	return e
}

// Extract 解析快照并提取候选
func (e *Extractor) Extract(snapshot string) []models.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		log.Warn().Err(err).Msg("快照解析失败,视为无候选")
		return nil
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument 按文档顺序提取并去重候选
func (e *Extractor) ExtractDocument(doc *goquery.Document) (out []models.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("提取候选时发生panic,视为无候选")
			out = nil
		}
	}()

	controls := e.listControls(doc.Selection)
	seen := make(map[string]bool)

	controls.Each(func(_ int, ctrl *goquery.Selection) {
		if ctrl.AttrOr(AttrHidden, "") == "1" {
			return
		}
		cand, ok := e.buildCandidate(ctrl)
		if !ok {
			return
		}
		key := cand.IdentityKey()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, cand)
	})

	metrics.CandidatesExtracted.Add(float64(len(out)))
	return out
}

// FindControl 在个人主页快照中查找主操作控件 (优先页头区域)
func (e *Extractor) FindControl(snapshot string) (Control, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return Control{}, false
	}

	for _, root := range []*goquery.Selection{doc.Find("header"), doc.Selection} {
		var found Control
		ok := false
		e.listControls(root).EachWithBreak(func(_ int, ctrl *goquery.Selection) bool {
			if ctrl.AttrOr(AttrHidden, "") == "1" {
				return true
			}
			text := controlText(ctrl)
			found = Control{Ref: ctrl.AttrOr(AttrRef, ""), Text: text, AlreadyRelated: e.settledTexts[foldText(text)]}
			ok = true
			return false
		})
		if ok {
			return found, true
		}
	}
	return Control{}, false
}

// FindConfirm 查找可见的确认控件,优先对话框内
func (e *Extractor) FindConfirm(snapshot string) (Control, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return Control{}, false
	}

	for _, root := range []*goquery.Selection{doc.Find(`[role="dialog"]`), doc.Selection} {
		var found Control
		ok := false
		root.Find("[" + AttrRef + "]").EachWithBreak(func(_ int, ctrl *goquery.Selection) bool {
			if ctrl.AttrOr(AttrHidden, "") == "1" {
				return true
			}
			text := controlText(ctrl)
			if !e.confirmTexts[foldText(text)] {
				return true
			}
			found = Control{Ref: ctrl.AttrOr(AttrRef, ""), Text: text}
			ok = true
			return false
		})
		if ok {
			return found, true
		}
	}
	return Control{}, false
}

// listControls 返回匹配操作词典或完成词典的控件
func (e *Extractor) listControls(root *goquery.Selection) *goquery.Selection {
	return root.Find("[" + AttrRef + "]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		key := foldText(controlText(s))
		return e.actionTexts[key] || e.settledTexts[key]
	})
}

func (e *Extractor) buildCandidate(ctrl *goquery.Selection) (models.Candidate, bool) {
	scopeSel, runs := e.findScope(ctrl)
	if scopeSel == nil {
		log.Debug().Str("control", controlText(ctrl)).Msg("控件附近没有可识别的范围,跳过")
		return models.Candidate{}, false
	}

	// 范围文本不含控件文本,操作后按钮文字变化不会改变候选身份
	scope := &Scope{
		Runs:           runs,
		Hrefs:          hrefs(scopeSel),
		Text:           strings.Join(runs, " "),
		ClassSignature: classSignature(scopeSel),
	}

	var id Identity
	strategy := ""
	for _, s := range e.strategies {
		if got, ok := s.Derive(scope); ok {
			id, strategy = got, s.Name()
			break
		}
	}
	if id.Handle == "" {
		return models.Candidate{}, false
	}

	text := controlText(ctrl)
	avatar := ClassifyAvatar(scopeSel.Find("img").First(), e.placeholders)

	return models.Candidate{
		Handle:          id.Handle,
		DisplayName:     id.DisplayName,
		AvatarURL:       avatar.URL,
		IsDefaultAvatar: avatar.IsDefault,
		OnlineHint:      e.onlineHint(scopeSel),
		AlreadyRelated:  e.settledTexts[foldText(text)],
		Synthetic:       id.Synthetic,
		Ref:             ctrl.AttrOr(AttrRef, ""),
		ControlText:     text,
		RawText:         scope.Text,
		ClassSignature:  scope.ClassSignature,
		Strategy:        strategy,
	}, true
}

// findScope 从控件向上查找同时包含图片和短文本的最近祖先
// 没有图片的最近文本祖先作为后备; 遇到包含多个控件的列表容器时停止
func (e *Extractor) findScope(ctrl *goquery.Selection) (*goquery.Selection, []string) {
	var fallback *goquery.Selection
	var fallbackRuns []string

	cur := ctrl.Parent()
	for depth := 0; depth < e.maxDepth && cur.Length() > 0; depth++ {
		name := goquery.NodeName(cur)
		if name == "body" || name == "html" {
			break
		}
		if e.listControls(cur).Length() > 1 {
			break
		}

		runs := e.textRuns(cur, ctrl.Get(0))
		if len(runs) > 0 {
			if cur.Find("img").Length() > 0 {
				return cur, runs
			}
			if fallback == nil {
				fallback, fallbackRuns = cur, runs
			}
		}
		cur = cur.Parent()
	}
	return fallback, fallbackRuns
}

// textRuns 收集范围内的短文本片段,跳过控件自身和词典文本
func (e *Extractor) textRuns(scope *goquery.Selection, skip *html.Node) []string {
	runs := make([]string, 0)
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == skip {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			run := collapse(n.Data)
			if e.keepRun(run) && !seen[run] {
				seen[run] = true
				runs = append(runs, run)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range scope.Nodes {
		walk(n)
	}
	return runs
}

func (e *Extractor) keepRun(run string) bool {
	if run == "" || utf8.RuneCountInString(run) > maxRunLength {
		return false
	}
	if !strings.ContainsFunc(run, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return false
	}
	key := foldText(run)
	if e.actionTexts[key] || e.settledTexts[key] || e.confirmTexts[key] {
		return false
	}
	for _, m := range e.onlineMarkers {
		if key == m {
			return false
		}
	}
	return true
}

// onlineHint 在范围内查找在线状态的class/aria/文本特征,不明确时为false
func (e *Extractor) onlineHint(scope *goquery.Selection) bool {
	if len(e.onlineMarkers) == 0 {
		return false
	}
	found := false
	scope.Find("*").AddSelection(scope).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"class", "aria-label", "title"} {
			v := foldText(s.AttrOr(attr, ""))
			for _, m := range e.onlineMarkers {
				if v != "" && strings.Contains(v, m) {
					found = true
					return false
				}
			}
		}
		return true
	})
	if found {
		return true
	}

	for _, n := range scope.Find("span, div, small").Nodes {
		text := foldText(nodeText(n))
		for _, m := range e.onlineMarkers {
			if text == m {
				return true
			}
		}
	}
	return false
}

func controlText(s *goquery.Selection) string {
	text := collapse(s.Text())
	if text == "" {
		text = collapse(s.AttrOr("aria-label", ""))
	}
	return text
}

func hrefs(scope *goquery.Selection) []string {
	result := make([]string, 0)
	scope.Find("a[href]").AddSelection(scope.Filter("a[href]")).Each(func(_ int, a *goquery.Selection) {
		result = append(result, a.AttrOr("href", ""))
	})
	return result
}

func classSignature(s *goquery.Selection) string {
	classes := strings.Fields(s.AttrOr("class", ""))
	return goquery.NodeName(s) + "." + strings.Join(classes, ".")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldText 折叠空白并做大小写折叠,用于词典匹配
func foldText(s string) string {
	return cases.Fold().String(collapse(s))
}

func foldSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		if k := foldText(s); k != "" {
			set[k] = true
		}
	}
	return set
}

func foldList(list []string) []string {
	result := make([]string, 0, len(list))
	for _, s := range list {
		if k := foldText(s); k != "" {
			result = append(result, k)
		}
	}
	return result
}
