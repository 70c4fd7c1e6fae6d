package driver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// snapshotJS 为可点击控件分配稳定引用,记录可见性和图片自然尺寸
const snapshotJS = `() => {
	window.__afRefSeq = window.__afRefSeq || 0;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	document.querySelectorAll('button, [role="button"], a, div[tabindex]').forEach((el) => {
		const text = (el.innerText || el.getAttribute('aria-label') || '').trim();
		if (!text || text.length > 40) return;
		if (!el.hasAttribute('data-af-ref')) {
			el.setAttribute('data-af-ref', String(++window.__afRefSeq));
		}
		el.toggleAttribute('data-af-hidden', false);
		if (!visible(el)) el.setAttribute('data-af-hidden', '1');
	});
	document.querySelectorAll('img').forEach((img) => {
		if (img.complete && img.naturalWidth > 0) {
			img.setAttribute('data-af-nw', String(img.naturalWidth));
			img.setAttribute('data-af-nh', String(img.naturalHeight));
		}
	});
	return document.documentElement.outerHTML;
}`

// scrollJS 在列表容器内找到滚动范围最大的元素并滚动
const scrollJS = `(sel, delta, synthetic) => {
	const container = (sel && document.querySelector(sel)) || document.querySelector('[role="dialog"]') || document.scrollingElement || document.body;
	let best = container;
	let bestRange = container.scrollHeight - container.clientHeight;
	container.querySelectorAll('*').forEach((el) => {
		const range = el.scrollHeight - el.clientHeight;
		if (range <= bestRange) return;
		const overflow = getComputedStyle(el).overflowY;
		if (overflow === 'auto' || overflow === 'scroll') {
			best = el;
			bestRange = range;
		}
	});
	if (synthetic) {
		best.dispatchEvent(new WheelEvent('wheel', { deltaY: delta, bubbles: true, cancelable: true }));
	}
	best.scrollBy(0, delta);
	const r = best.getBoundingClientRect();
	return {
		position: best.scrollTop,
		range: best.scrollHeight - best.clientHeight,
		viewport: best.clientHeight,
		x: r.left + r.width / 2,
		y: r.top + Math.min(r.height / 2, 300),
	};
}`

// controlStateJS 控件是否仍在文档中、可见、可用
const controlStateJS = `(ref) => {
	const el = document.querySelector('[data-af-ref="' + ref + '"]');
	if (!el || !el.isConnected) return { attached: false, visible: false, enabled: false };
	const r = el.getBoundingClientRect();
	const s = getComputedStyle(el);
	return {
		attached: true,
		visible: r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none',
		enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
	};
}`

// syntheticClickJS 非标准元素的合成点击
const syntheticClickJS = `function () {
	['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click'].forEach((type) => {
		this.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window }));
	});
}`

// RodPage 基于go-rod的页面实现
type RodPage struct {
	page            *rod.Page
	listingSelector string
	timeout         time.Duration
}

// NewRodPage 包装rod页面
func NewRodPage(page *rod.Page, listingSelector string, timeout time.Duration) *RodPage {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodPage{page: page, listingSelector: listingSelector, timeout: timeout}
}

func (p *RodPage) scoped(ctx context.Context) *rod.Page {
	return p.page.Context(ctx).Timeout(p.timeout)
}

// Snapshot 序列化当前文档
func (p *RodPage) Snapshot(ctx context.Context) (html string, err error) {
	defer recoverAs(&err, "快照")

	res, err := p.scoped(ctx).Evaluate(rod.Eval(snapshotJS))
	if err != nil {
		return "", fmt.Errorf("生成快照失败: %w", err)
	}
	return res.Value.Str(), nil
}

// Scroll 滚动列表区域,加大阶段额外使用真实滚轮和翻页键
func (p *RodPage) Scroll(ctx context.Context, req paginate.ScrollRequest) (m paginate.ScrollMetrics, err error) {
	defer recoverAs(&err, "滚动")

	page := p.scoped(ctx)
	res, err := page.Evaluate(rod.Eval(scrollJS, p.listingSelector, req.Delta, req.Synthetic))
	if err != nil {
		return m, fmt.Errorf("滚动失败: %w", err)
	}
	v := res.Value
	m = paginate.ScrollMetrics{
		Position: v.Get("position").Num(),
		Range:    v.Get("range").Num(),
		Viewport: v.Get("viewport").Num(),
	}

	if req.Synthetic {
		point := proto.Point{X: v.Get("x").Num(), Y: v.Get("y").Num()}
		if err := page.Mouse.MoveTo(point); err != nil {
			log.Debug().Err(err).Msg("移动鼠标失败")
		}
		if err := page.Mouse.Scroll(0, req.Delta, 4); err != nil {
			log.Debug().Err(err).Msg("滚轮事件失败")
		}
		if err := page.Keyboard.Press(input.PageDown); err != nil {
			log.Debug().Err(err).Msg("翻页键失败")
		}
	}
	return m, nil
}

// ScrollIntoView 将控件滚动到可见区域
func (p *RodPage) ScrollIntoView(ctx context.Context, ref string) (err error) {
	defer recoverAs(&err, "滚动到控件")

	el, err := p.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.ScrollIntoView()
}

// ControlState 查询控件状态
func (p *RodPage) ControlState(ctx context.Context, ref string) (st ControlState, err error) {
	defer recoverAs(&err, "控件状态")

	res, err := p.scoped(ctx).Evaluate(rod.Eval(controlStateJS, ref))
	if err != nil {
		return st, fmt.Errorf("查询控件状态失败: %w", err)
	}
	v := res.Value
	return ControlState{
		Attached: v.Get("attached").Bool(),
		Visible:  v.Get("visible").Bool(),
		Enabled:  v.Get("enabled").Bool(),
	}, nil
}

// Activate 原生点击,失败时派发合成事件
func (p *RodPage) Activate(ctx context.Context, ref string) (err error) {
	defer recoverAs(&err, "点击")

	el, err := p.element(ctx, ref)
	if err != nil {
		return err
	}
	clickErr := el.Click(proto.InputMouseButtonLeft, 1)
	if clickErr == nil {
		return nil
	}
	log.Debug().Err(clickErr).Str("ref", ref).Msg("原生点击失败,使用合成事件")
	if _, err := el.Eval(syntheticClickJS); err != nil {
		return fmt.Errorf("点击失败: %v; 合成事件失败: %w", clickErr, err)
	}
	return nil
}

// Navigate 整页导航
func (p *RodPage) Navigate(ctx context.Context, url string) (err error) {
	defer recoverAs(&err, "导航")

	if err := p.scoped(ctx).Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	return nil
}

// Location 当前页面地址
func (p *RodPage) Location(ctx context.Context) (loc string, err error) {
	defer recoverAs(&err, "读取地址")

	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("读取页面地址失败: %w", err)
	}
	return info.URL, nil
}

// WaitReady 等待页面加载完成
func (p *RodPage) WaitReady(ctx context.Context, timeout time.Duration) (err error) {
	defer recoverAs(&err, "等待加载")

	if err := p.page.Context(ctx).Timeout(timeout).WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

// ApplyHeaders 为页面设置额外请求头,User-Agent 通过覆盖设置
func (p *RodPage) ApplyHeaders(headers http.Header) (cleanup func(), err error) {
	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if http.CanonicalHeaderKey(name) == "User-Agent" {
			if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: values[0]}); err != nil {
				return nil, fmt.Errorf("设置User-Agent失败: %w", err)
			}
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) == 0 {
		return func() {}, nil
	}
	return p.page.SetExtraHeaders(dict)
}

// element 按引用查找控件,不存在时立即返回而不是重试到超时
func (p *RodPage) element(ctx context.Context, ref string) (*rod.Element, error) {
	el, err := p.scoped(ctx).Sleeper(rod.NotFoundSleeper).Element(fmt.Sprintf(`[data-af-ref="%s"]`, ref))
	if err != nil {
		return nil, fmt.Errorf("控件不存在 [ref=%s]: %w", ref, err)
	}
	return el, nil
}

// recoverAs 将rod的panic转换为错误
func recoverAs(err *error, op string) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("op", op).Msg("页面操作panic")
		*err = fmt.Errorf("%s时页面操作panic: %v: %w", op, r, ErrBrowserCrashed)
	}
}
