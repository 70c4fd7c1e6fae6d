package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/AutoFollow/internal/core"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	storageDir string

	// 页面请求头参数
	headers        []string
	validateConfig bool

	// 加载后的配置,由 PersistentPreRunE 设置
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "autofollow",
	Short: "可断点续跑的批量关注/取消关注工具",
	Long: `AutoFollow - 驱动网页控件的批量关注/取消关注工具

支持:
  • 可见列表批量模式 (bulk_visible) 和目标列表模式 (list_driven)
  • 头像/名称/语言/关键字/在线状态过滤
  • 随机操作间隔
  • 页面导航后从持久化状态恢复
  • 操作历史导出 (JSON/CSV)
  • 本地控制服务 (start/stop/getStatus, 指标)

示例:
  # 在当前粉丝列表中关注20个有头像的账号
  autofollow run -n 20 --avatar with_avatar

  # 按目标文件逐个关注
  autofollow run -m list_driven -f targets.txt

  # 查询/停止正在进行的运行
  autofollow status
  autofollow stop

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(core.CLIFlags{LogLevel: logLevel, StorageDir: storageDir})

		logConfig := config.LogConfig()
		if verbose {
			logConfig.Level = "debug"
		}
		// 进度条模式下日志只写文件
		logConfig.NoConsole = showsProgress(cmd)

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig()
		}
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AutoFollow %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage-dir", "", "持久化存储目录")

	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "页面请求头,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件、词典和请求头")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
