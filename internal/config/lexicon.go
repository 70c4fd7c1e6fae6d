package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultLexiconFile 默认词典文件路径
	DefaultLexiconFile = "configs/lexicon.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed lexicon_template.yaml
var defaultLexiconTemplate string

// Lexicon 本地化控件词典
type Lexicon struct {
	Follow             []string `mapstructure:"follow"`
	Following          []string `mapstructure:"following"`
	Confirm            []string `mapstructure:"confirm"`
	PlaceholderAvatars []string `mapstructure:"placeholder_avatars"`
	OnlineMarkers      []string `mapstructure:"online_markers"`
}

// DefaultLexicon 内置词典 (英语 + 俄语)
func DefaultLexicon() *Lexicon {
	lex, err := parseLexicon(strings.NewReader(defaultLexiconTemplate))
	if err != nil {
		panic(fmt.Sprintf("内置词典模板无效: %v", err))
	}
	return lex
}

// ActionTexts 返回当前操作类型下需要点击的按钮文本
func (l *Lexicon) ActionTexts(action models.ActionKind) []string {
	if action == models.ActionUnfollow {
		return l.Following
	}
	return l.Follow
}

// SettledTexts 返回当前操作类型下表示"已完成"的按钮文本
func (l *Lexicon) SettledTexts(action models.ActionKind) []string {
	if action == models.ActionUnfollow {
		return l.Follow
	}
	return l.Following
}

// Validate 检查词典至少包含操作按钮和确认按钮
func (l *Lexicon) Validate() error {
	if len(l.Follow) == 0 {
		return fmt.Errorf("词典缺少 follow 按钮文本")
	}
	if len(l.Following) == 0 {
		return fmt.Errorf("词典缺少 following 按钮文本")
	}
	if len(l.Confirm) == 0 {
		return fmt.Errorf("词典缺少 confirm 按钮文本")
	}
	return nil
}

// LexiconLoader 词典文件加载器
type LexiconLoader struct {
	configPath string
}

// NewLexiconLoader 创建词典加载器
func NewLexiconLoader(configPath string) *LexiconLoader {
	if configPath == "" {
		configPath = DefaultLexiconFile
	}
	return &LexiconLoader{configPath: configPath}
}

// EnsureConfigExists 确保词典文件存在,如不存在则写入内置模板
func (ll *LexiconLoader) EnsureConfigExists() error {
	if _, err := os.Stat(ll.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(ll.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}
		if err := os.WriteFile(ll.configPath, []byte(defaultLexiconTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成词典文件 [%s]: %w", ll.configPath, err)
		}
		utils.Infof("已生成默认词典: %s", ll.configPath)
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (ll *LexiconLoader) ValidateFileSize() error {
	info, err := os.Stat(ll.configPath)
	if err != nil {
		return fmt.Errorf("无法读取词典文件信息 [%s]: %w", ll.configPath, err)
	}
	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: ll.configPath,
			Cause:    fmt.Errorf("词典文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}

// Load 加载词典
// 执行流程:
//  1. 确保文件存在 (不存在则写入模板)
//  2. 验证文件大小
//  3. 使用Viper解析YAML
//  4. 空字段回退到内置词典
func (ll *LexiconLoader) Load() (*Lexicon, error) {
	if err := ll.EnsureConfigExists(); err != nil {
		return nil, err
	}
	if err := ll.ValidateFileSize(); err != nil {
		return nil, err
	}

	f, err := os.Open(ll.configPath)
	if err != nil {
		// 文件被其他进程锁定时降级使用内置词典
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("词典文件被锁定 [%s], 使用内置词典", ll.configPath)
			return DefaultLexicon(), nil
		}
		return nil, &models.ConfigError{FilePath: ll.configPath, Cause: err}
	}
	defer f.Close()

	lex, err := parseLexicon(f)
	if err != nil {
		return nil, &models.ConfigError{FilePath: ll.configPath, Cause: err}
	}

	defaults := DefaultLexicon()
	if len(lex.Follow) == 0 {
		lex.Follow = defaults.Follow
	}
	if len(lex.Following) == 0 {
		lex.Following = defaults.Following
	}
	if len(lex.Confirm) == 0 {
		lex.Confirm = defaults.Confirm
	}
	if len(lex.PlaceholderAvatars) == 0 {
		lex.PlaceholderAvatars = defaults.PlaceholderAvatars
	}
	if len(lex.OnlineMarkers) == 0 {
		lex.OnlineMarkers = defaults.OnlineMarkers
	}

	utils.Debugf("词典加载完成: %d 个操作文本, %d 个确认文本", len(lex.Follow)+len(lex.Following), len(lex.Confirm))
	return lex, nil
}

func parseLexicon(r io.Reader) (*Lexicon, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("解析词典失败: %w", err)
	}

	var lex Lexicon
	if err := v.Unmarshal(&lex); err != nil {
		return nil, fmt.Errorf("词典绑定失败: %w", err)
	}
	return &lex, nil
}
