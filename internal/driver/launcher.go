package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"`
	ControlURL      string        `mapstructure:"control_url"`   // 连接已运行的浏览器(保留登录状态)
	UserDataDir     string        `mapstructure:"user_data_dir"` // 启动新浏览器时使用的用户目录
	Bin             string        `mapstructure:"bin"`
	ListingSelector string        `mapstructure:"listing_selector"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// DefaultBrowserConfig 默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:   false,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// Browser 浏览器会话,持有唯一的工作页面
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *RodPage
	cleanup  func()
}

// Launch 启动或连接浏览器,失败时按上限重试
func Launch(ctx context.Context, cfg BrowserConfig, headers *HeaderManager) (*Browser, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		b, err := launchOnce(ctx, cfg, headers)
		if err == nil {
			return b, nil
		}
		lastErr = err
		utils.Errorf("浏览器启动失败(重试%d/%d): %v", attempt, cfg.MaxRetries, err)
		if attempt == cfg.MaxRetries {
			break
		}
		utils.Warnf("准备重启浏览器(重试%d/%d)", attempt+1, cfg.MaxRetries)
		if err := utils.Sleep(ctx, cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("浏览器启动失败,已达最大重试次数: %w", lastErr)
}

func launchOnce(ctx context.Context, cfg BrowserConfig, headers *HeaderManager) (*Browser, error) {
	b := &Browser{cleanup: func() {}}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless).Set("ignore-certificate-errors")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	b.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.browser.Connect(); err != nil {
		b.killLauncher()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已连接: %s", controlURL)

	page, err := b.workPage()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.page = NewRodPage(page, cfg.ListingSelector, cfg.Timeout)

	if headers != nil {
		h, err := headers.GetHeaders()
		if err != nil {
			b.Close()
			return nil, err
		}
		cleanup, err := b.page.ApplyHeaders(h)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("设置页面请求头失败: %w", err)
		}
		b.cleanup = cleanup
		utils.Debugf("页面请求头: %v", headers.GetSafeHeaders())
	}
	return b, nil
}

// workPage 连接已有浏览器时复用第一个标签页,否则新建
func (b *Browser) workPage() (*rod.Page, error) {
	pages, err := b.browser.Pages()
	if err == nil && len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	return page, nil
}

// Page 工作页面
func (b *Browser) Page() *RodPage {
	return b.page
}

// Close 关闭浏览器. 连接外部浏览器时只断开连接
func (b *Browser) Close() {
	if b.cleanup != nil {
		b.cleanup()
	}
	if b.browser != nil {
		if b.launcher != nil {
			_ = b.browser.Close()
		}
	}
	b.killLauncher()
	utils.Debugf("浏览器已关闭")
}

func (b *Browser) killLauncher() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}
