package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/config"
	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
)

const testBaseURL = "https://social.test"

type fakeUser struct {
	handle  string
	name    string
	related bool
}

// fakePage 内存页面: 列表弹窗或个人主页,根据当前地址渲染
type fakePage struct {
	mu sync.Mutex

	location string
	users    []*fakeUser
	visible  int
	pageSize int

	profiles  map[string]*fakeUser
	redirects map[string]string // 导航目标 → 实际到达的地址

	pending   *fakeUser // 等待确认的取消关注
	noConfirm bool
	disabled  map[string]bool
	detached  map[string]bool

	scrolledInto []string

	activations []string
	navigations []string
	scrolls     int

	onActivate func(handle string)
}

func newListingPage(users ...*fakeUser) *fakePage {
	return &fakePage{
		location: testBaseURL + "/me/followers/",
		users:    users,
		visible:  len(users),
		pageSize: len(users),
		profiles: make(map[string]*fakeUser),
		disabled: make(map[string]bool),
		detached: make(map[string]bool),
	}
}

func newProfilePage(users ...*fakeUser) *fakePage {
	p := newListingPage()
	p.location = testBaseURL + "/"
	for _, u := range users {
		p.profiles[u.handle] = u
	}
	return p
}

func users(handles ...string) []*fakeUser {
	out := make([]*fakeUser, 0, len(handles))
	for _, h := range handles {
		out = append(out, &fakeUser{handle: h, name: strings.ToUpper(h[:1]) + h[1:] + " Test"})
	}
	return out
}

func (p *fakePage) profileOwner() *fakeUser {
	path := strings.Trim(strings.TrimPrefix(p.location, testBaseURL), "/")
	return p.profiles[path]
}

func buttonText(related bool) string {
	if related {
		return "Following"
	}
	return "Follow"
}

func (p *fakePage) Snapshot(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	b.WriteString("<html><body>")
	if u := p.profileOwner(); u != nil {
		fmt.Fprintf(&b, `<header><h2>%s</h2><button data-af-ref="p-%s">%s</button></header>`,
			u.handle, u.handle, buttonText(u.related))
		fmt.Fprintf(&b, `<main><div class="suggested"><span>other.user</span><button data-af-ref="s-1">Follow</button></div></main>`)
	} else {
		b.WriteString(`<div role="dialog"><div class="list">`)
		for i, u := range p.users[:p.visible] {
			fmt.Fprintf(&b, `<div class="row"><img src="https://cdn.social.test/p/%s.jpg" data-af-nw="150" data-af-nh="150">`+
				`<div><a href="/%s/"><span>%s</span></a><span>%s</span></div>`+
				`<div><button data-af-ref="u%d">%s</button></div></div>`,
				u.handle, u.handle, u.handle, u.name, i, buttonText(u.related))
		}
		b.WriteString(`</div></div>`)
	}
	if p.pending != nil && !p.noConfirm {
		b.WriteString(`<div role="dialog"><span>Unfollow?</span><button data-af-ref="confirm">Unfollow</button><button data-af-ref="cancel">Cancel</button></div>`)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (p *fakePage) Scroll(ctx context.Context, req paginate.ScrollRequest) (paginate.ScrollMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scrolls++
	p.visible += p.pageSize
	if p.visible > len(p.users) {
		p.visible = len(p.users)
	}
	return paginate.ScrollMetrics{
		Position: float64(p.visible * 100),
		Range:    float64(len(p.users) * 100),
		Viewport: 800,
	}, nil
}

// ScrollIntoView 对脱离文档的控件失败,真实浏览器中要等到超时
func (p *fakePage) ScrollIntoView(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolledInto = append(p.scrolledInto, ref)
	if p.detached[ref] {
		return fmt.Errorf("element not found: %s", ref)
	}
	return ctx.Err()
}

func (p *fakePage) ControlState(ctx context.Context, ref string) (driver.ControlState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached[ref] {
		return driver.ControlState{}, nil
	}
	return driver.ControlState{Attached: true, Visible: true, Enabled: !p.disabled[ref]}, nil
}

func (p *fakePage) ScrolledInto() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scrolledInto...)
}

func (p *fakePage) userByRef(ref string) *fakeUser {
	switch {
	case strings.HasPrefix(ref, "p-"):
		return p.profiles[strings.TrimPrefix(ref, "p-")]
	case strings.HasPrefix(ref, "u"):
		i, err := strconv.Atoi(strings.TrimPrefix(ref, "u"))
		if err != nil || i >= len(p.users) {
			return nil
		}
		return p.users[i]
	}
	return nil
}

func (p *fakePage) Activate(ctx context.Context, ref string) error {
	p.mu.Lock()
	if ref == "confirm" {
		if p.pending != nil {
			p.pending.related = false
			p.pending = nil
		}
		p.mu.Unlock()
		return nil
	}
	u := p.userByRef(ref)
	if u == nil {
		p.mu.Unlock()
		return fmt.Errorf("unknown ref %s", ref)
	}
	p.activations = append(p.activations, u.handle)
	if u.related {
		p.pending = u
	} else {
		u.related = true
	}
	hook := p.onActivate
	p.mu.Unlock()

	if hook != nil {
		hook(u.handle)
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	if to, ok := p.redirects[url]; ok {
		url = to
	}
	p.location = url
	p.pending = nil
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) Activations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.activations...)
}

func (p *fakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// recordingNotifier 记录事件及处理数量
type recordingNotifier struct {
	mu        sync.Mutex
	events    []string
	processed []int
}

func (r *recordingNotifier) Emit(event string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if event == EventAction {
		r.processed = append(r.processed, payload["processed_count"].(int))
	}
}

func (r *recordingNotifier) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingNotifier) Processed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.processed...)
}

func testSettings() Settings {
	return Settings{
		Pagination: paginate.Config{
			StepFraction:     0.8,
			MaxIdleRounds:    4,
			StallRounds:      2,
			IdleFloor:        4,
			EscalateAfter:    2,
			EscalationFactor: 2,
		},
		Executor:          ExecutorConfig{ConfirmTimeout: 200 * time.Millisecond, PollInterval: 10 * time.Millisecond},
		ListDriven:        ListDrivenConfig{MaxNavRetries: 1, PageReadyTimeout: 100 * time.Millisecond},
		BaseURL:           testBaseURL,
		NavigationTimeout: time.Second,
	}
}

func testDeps(page driver.Page, db storage.Durable) Deps {
	return Deps{
		Page:     page,
		Store:    db,
		Lexicon:  config.DefaultLexicon(),
		Settings: testSettings(),
		Notifier: &recordingNotifier{},
	}
}

func bulkConfig(target int) models.RunConfig {
	cfg := models.DefaultRunConfig()
	cfg.TargetCount = target
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	return cfg
}

func listConfig(targets ...string) models.RunConfig {
	cfg := models.DefaultRunConfig()
	cfg.Mode = models.ModeListDriven
	cfg.Targets = targets
	cfg.TargetCount = len(targets)
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	return cfg
}

func lastRun(t *testing.T, db storage.Durable) *models.TaskState {
	t.Helper()
	st, err := storage.NewTaskStore(db).LoadLast()
	if err != nil {
		t.Fatalf("LoadLast() error = %v", err)
	}
	if st == nil {
		t.Fatal("没有已结束的运行")
	}
	return st
}

// recordingSleeper 记录等待时长,不真正等待
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// readOnlyStore 写入总是失败的存储
type readOnlyStore struct {
	*storage.MemoryStore
}

func (readOnlyStore) Set(map[string][]byte) error { return fmt.Errorf("disk full") }
