package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/comment"
	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/paginate"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Browser    BrowserConfig         `mapstructure:"browser"`
	Run        RunSection            `mapstructure:"run"`
	Pagination paginate.Config       `mapstructure:"pagination"`
	Executor   ExecutorConfig        `mapstructure:"executor"`
	ListDriven ListDrivenConfig      `mapstructure:"list_driven"`
	Storage    StorageConfig         `mapstructure:"storage"`
	Logging    LoggingConfig         `mapstructure:"logging"`
	Control    ControlConfig         `mapstructure:"control"`
	Lexicon    LexiconConfig         `mapstructure:"lexicon"`
	Comment    comment.Config        `mapstructure:"comment"`
	Resource   driver.ResourceConfig `mapstructure:"resource"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	driver.BrowserConfig `mapstructure:",squash"`

	BaseURL           string            `mapstructure:"base_url"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout"`
	Headers           map[string]string `mapstructure:"headers"`
}

// RunSection 运行参数 (配置文件中的形式)
type RunSection struct {
	Mode         string        `mapstructure:"mode"`
	Action       string        `mapstructure:"action"`
	TargetCount  int           `mapstructure:"target_count"`
	DelayMin     time.Duration `mapstructure:"delay_min"`
	DelayMax     time.Duration `mapstructure:"delay_max"`
	AvatarFilter string        `mapstructure:"avatar_filter"`
	NameFilter   string        `mapstructure:"name_filter"`
	NameLanguage string        `mapstructure:"name_language"`
	OnlineFilter string        `mapstructure:"online_filter"`
	Whitelist    string        `mapstructure:"whitelist"`
	Blacklist    string        `mapstructure:"blacklist"`
	Targets      []string      `mapstructure:"targets"`
	TargetsFile  string        `mapstructure:"targets_file"`
	Ignore       []string      `mapstructure:"ignore"`
	ListingURL   string        `mapstructure:"listing_url"`
}

// ExecutorConfig 操作执行配置
type ExecutorConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"` // 等待确认控件的上限
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// ListDrivenConfig 列表模式配置
type ListDrivenConfig struct {
	MaxNavRetries      int           `mapstructure:"max_nav_retries"`
	PageReadyTimeout   time.Duration `mapstructure:"page_ready_timeout"`
	ProfileURLTemplate string        `mapstructure:"profile_url_template"` // %s 替换为账号
}

// StorageConfig 存储配置
type StorageConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// ControlConfig 控制服务配置
type ControlConfig struct {
	Addr      string `mapstructure:"addr"`
	ReportDir string `mapstructure:"report_dir"`
}

// LexiconConfig 词典配置
type LexiconConfig struct {
	File string `mapstructure:"file"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".autofollow"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	browser := driver.DefaultBrowserConfig()
	v.SetDefault("browser.headless", browser.Headless)
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.listing_selector", "")
	v.SetDefault("browser.timeout", browser.Timeout)
	v.SetDefault("browser.max_retries", browser.MaxRetries)
	v.SetDefault("browser.retry_delay", browser.RetryDelay)
	v.SetDefault("browser.base_url", "https://www.instagram.com")
	v.SetDefault("browser.navigation_timeout", 30*time.Second)

	run := models.DefaultRunConfig()
	v.SetDefault("run.mode", string(run.Mode))
	v.SetDefault("run.action", string(run.Action))
	v.SetDefault("run.target_count", run.TargetCount)
	v.SetDefault("run.delay_min", time.Duration(run.DelayMin))
	v.SetDefault("run.delay_max", time.Duration(run.DelayMax))
	v.SetDefault("run.avatar_filter", string(run.AvatarFilter))
	v.SetDefault("run.name_filter", string(run.NameFilter))
	v.SetDefault("run.name_language", string(run.NameLanguage))
	v.SetDefault("run.online_filter", string(run.OnlineFilter))

	pg := paginate.DefaultConfig()
	v.SetDefault("pagination.step_fraction", pg.StepFraction)
	v.SetDefault("pagination.settle_delay", pg.SettleDelay)
	v.SetDefault("pagination.max_idle_rounds", pg.MaxIdleRounds)
	v.SetDefault("pagination.stall_rounds", pg.StallRounds)
	v.SetDefault("pagination.idle_floor", pg.IdleFloor)
	v.SetDefault("pagination.escalate_after", pg.EscalateAfter)
	v.SetDefault("pagination.escalation_factor", pg.EscalationFactor)

	v.SetDefault("executor.confirm_timeout", 6*time.Second)
	v.SetDefault("executor.poll_interval", 300*time.Millisecond)

	v.SetDefault("list_driven.max_nav_retries", 2)
	v.SetDefault("list_driven.page_ready_timeout", 15*time.Second)
	v.SetDefault("list_driven.profile_url_template", "")

	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("control.addr", "127.0.0.1:7878")
	v.SetDefault("control.report_dir", "output")

	v.SetDefault("lexicon.file", "configs/lexicon.yaml")

	cm := comment.DefaultConfig()
	v.SetDefault("comment.base_url", cm.BaseURL)
	v.SetDefault("comment.model", cm.Model)
	v.SetDefault("comment.prompt", cm.Prompt)
	v.SetDefault("comment.max_tokens", cm.MaxTokens)
	v.SetDefault("comment.timeout", cm.Timeout)

	res := driver.DefaultResourceConfig()
	v.SetDefault("resource.safety_reserve_memory", res.SafetyReserveMemory)
	v.SetDefault("resource.cpu_load_threshold", res.CPULoadThreshold)
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// RunConfig 转换为单次运行配置,并加载目标文件
func (c *Config) RunConfig() (models.RunConfig, error) {
	r := c.Run
	cfg := models.RunConfig{
		Mode:         models.RunMode(r.Mode),
		Action:       models.ActionKind(r.Action),
		TargetCount:  r.TargetCount,
		DelayMin:     models.Duration(r.DelayMin),
		DelayMax:     models.Duration(r.DelayMax),
		AvatarFilter: models.AvatarFilter(r.AvatarFilter),
		NameFilter:   models.NameFilter(r.NameFilter),
		NameLanguage: models.Script(r.NameLanguage),
		OnlineFilter: models.OnlineFilter(r.OnlineFilter),
		Whitelist:    r.Whitelist,
		Blacklist:    r.Blacklist,
		ListingURL:   r.ListingURL,
	}

	targets, err := utils.NormalizeTargets(r.Targets)
	if err != nil {
		return cfg, err
	}
	if r.TargetsFile != "" {
		fromFile, err := utils.ReadTargetsFromFile(r.TargetsFile)
		if err != nil {
			return cfg, err
		}
		targets, _ = utils.NormalizeTargets(append(targets, fromFile...))
	}
	cfg.Targets = targets

	ignore, err := utils.NormalizeTargets(r.Ignore)
	if err != nil {
		return cfg, err
	}
	cfg.Ignore = ignore

	// 列表模式的目标数量默认等于目标列表长度
	if cfg.Mode == models.ModeListDriven && len(cfg.Targets) > 0 &&
		(cfg.TargetCount <= 0 || cfg.TargetCount > len(cfg.Targets)) {
		cfg.TargetCount = len(cfg.Targets)
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

// Settings 会话控制器使用的配置子集
func (c *Config) Settings() Settings {
	return Settings{
		Pagination:        c.Pagination,
		Executor:          c.Executor,
		ListDriven:        c.ListDriven,
		BaseURL:           c.Browser.BaseURL,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ReportDir:         c.Control.ReportDir,
	}
}

// CLIFlags 命令行参数,零值表示未指定
type CLIFlags struct {
	Mode         string
	Action       string
	TargetCount  int
	DelayMin     time.Duration
	DelayMax     time.Duration
	AvatarFilter string
	NameFilter   string
	NameLanguage string
	OnlineFilter string
	Whitelist    string
	Blacklist    string
	Targets      []string
	TargetsFile  string
	ListingURL   string
	Headless     *bool
	ControlURL   string
	StorageDir   string
	LogLevel     string
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先
func (c *Config) MergeCLIFlags(f CLIFlags) {
	setString(&c.Run.Mode, f.Mode)
	setString(&c.Run.Action, f.Action)
	if f.TargetCount > 0 {
		c.Run.TargetCount = f.TargetCount
	}
	if f.DelayMin > 0 {
		c.Run.DelayMin = f.DelayMin
	}
	if f.DelayMax > 0 {
		c.Run.DelayMax = f.DelayMax
	}
	setString(&c.Run.AvatarFilter, f.AvatarFilter)
	setString(&c.Run.NameFilter, f.NameFilter)
	setString(&c.Run.NameLanguage, f.NameLanguage)
	setString(&c.Run.OnlineFilter, f.OnlineFilter)
	setString(&c.Run.Whitelist, f.Whitelist)
	setString(&c.Run.Blacklist, f.Blacklist)
	if len(f.Targets) > 0 {
		c.Run.Targets = f.Targets
	}
	setString(&c.Run.TargetsFile, f.TargetsFile)
	setString(&c.Run.ListingURL, f.ListingURL)
	if f.Headless != nil {
		c.Browser.Headless = *f.Headless
	}
	setString(&c.Browser.ControlURL, f.ControlURL)
	setString(&c.Storage.Dir, f.StorageDir)
	setString(&c.Logging.Level, f.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
