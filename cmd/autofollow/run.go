package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/config"
	"github.com/RecoveryAshes/AutoFollow/internal/core"
	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// 运行参数
var (
	runMode      string
	runAction    string
	targetCount  int
	delayMin     time.Duration
	delayMax     time.Duration
	avatarFilter string
	nameFilter   string
	nameLanguage string
	onlineFilter string
	whitelist    string
	blacklist    string
	targets      []string
	targetsFile  string
	listingURL   string
	headless     bool
	controlURL   string
	noProgress   bool
	noServer     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "开始新的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(runMode, runAction, targetCount, delayMin, delayMax); err != nil {
			return err
		}
		flags := core.CLIFlags{
			Mode:         runMode,
			Action:       runAction,
			TargetCount:  targetCount,
			DelayMin:     delayMin,
			DelayMax:     delayMax,
			AvatarFilter: avatarFilter,
			NameFilter:   nameFilter,
			NameLanguage: nameLanguage,
			OnlineFilter: onlineFilter,
			Whitelist:    whitelist,
			Blacklist:    blacklist,
			Targets:      targets,
			TargetsFile:  targetsFile,
			ListingURL:   listingURL,
			ControlURL:   controlURL,
		}
		if cmd.Flags().Changed("headless") {
			flags.Headless = &headless
		}
		appConfig.MergeCLIFlags(flags)

		runConfig, err := appConfig.RunConfig()
		if err != nil {
			return fmt.Errorf("运行配置无效: %w", err)
		}
		return runEngine(&runConfig)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "恢复上次未完成的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := core.CLIFlags{ControlURL: controlURL}
		if cmd.Flags().Changed("headless") {
			flags.Headless = &headless
		}
		appConfig.MergeCLIFlags(flags)
		return runEngine(nil)
	},
}

// runEngine 启动浏览器、存储、控制服务并运行到结束. cfg 为 nil 时恢复持久化的运行
func runEngine(cfg *models.RunConfig) error {
	monitor := driver.NewResourceMonitor(appConfig.Resource)
	if _, err := monitor.Preflight(); err != nil {
		return err
	}

	lexicon, err := config.NewLexiconLoader(appConfig.Lexicon.File).Load()
	if err != nil {
		return fmt.Errorf("加载词典失败: %w", err)
	}

	headerManager, err := driver.NewHeaderManager(appConfig.Browser.Headers, headers, appConfig.Browser.Headless)
	if err != nil {
		return fmt.Errorf("创建请求头管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("请求头配置无效: %w", err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	// 恢复前检查,避免无谓地启动浏览器
	if cfg == nil {
		st, err := core.PersistedStatus(db)
		if err != nil {
			return err
		}
		if !st.IsRunning {
			return models.ErrNoActiveRun
		}
		utils.Infof("🔄 恢复运行 %s: %d/%d", st.RunID, st.ProcessedCount, st.TargetCount)
	}

	metrics.Init()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	browser, err := driver.Launch(sigCtx, appConfig.Browser.BrowserConfig, headerManager)
	if err != nil {
		return err
	}
	defer browser.Close()

	var notifier core.Notifier = core.NopNotifier{}
	if !noProgress {
		notifier = core.NewProgressNotifier(os.Stderr)
	}
	host := core.NewHost(core.Deps{
		Page:     browser.Page(),
		Store:    db,
		Lexicon:  lexicon,
		Settings: appConfig.Settings(),
		Notifier: notifier,
		Reporter: utils.NewReporter(appConfig.Control.ReportDir),
	})

	history, err := storage.OpenHistory(db)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	dispatcher := core.NewDispatcher(gctx, host)

	g.Go(func() error {
		defer cancelRun()
		err := host.Run(gctx, cfg)
		if errors.Is(err, models.ErrStopped) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			utils.Warn("收到中断信号,正在停止...")
			host.Stop("收到中断信号")
		case <-gctx.Done():
		}
		return nil
	})

	if addr := appConfig.Control.Addr; addr != "" && !noServer {
		srv := &http.Server{
			Addr:              addr,
			Handler:           core.NewControlRouter(dispatcher, history),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			utils.Infof("🛰️ 控制服务监听 http://%s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("控制服务异常: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	err = g.Wait()
	dispatcher.Wait()
	printSummary(host.Status())
	return err
}

func printSummary(st models.Status) {
	fmt.Println("\n==================================================")
	fmt.Println("📊 运行统计")
	fmt.Println("==================================================")
	fmt.Printf("🆔 运行ID: %s\n", st.RunID)
	fmt.Printf("📋 模式: %s\n", st.Mode)
	fmt.Printf("✅ 已处理: %d/%d\n", st.ProcessedCount, st.TargetCount)
	fmt.Printf("🏁 结束阶段: %s\n", st.Phase)
	if st.StopReason != "" {
		fmt.Printf("💬 原因: %s\n", st.StopReason)
	}
	fmt.Println("==================================================")
}

// openStore 打开持久化存储. badger 目录同时只能被一个进程打开
func openStore() (*storage.BadgerStore, error) {
	if appConfig.Storage.InMemory {
		return storage.OpenBadgerInMemory()
	}
	if err := os.MkdirAll(appConfig.Storage.Dir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	db, err := storage.OpenBadger(appConfig.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w (是否有运行正在使用该目录? 可通过控制服务 %s 操作)", err, appConfig.Control.Addr)
	}
	return db, nil
}

// showsProgress 运行命令且未关闭进度条
func showsProgress(cmd *cobra.Command) bool {
	return (cmd == runCmd || cmd == resumeCmd) && !noProgress && !verbose
}

// runValidateConfig 验证配置、词典和请求头并输出生效的值
func runValidateConfig() error {
	utils.Info("🔍 验证配置...")

	if _, err := appConfig.RunConfig(); err != nil {
		return fmt.Errorf("运行配置无效: %w", err)
	}

	lexicon, err := config.NewLexiconLoader(appConfig.Lexicon.File).Load()
	if err != nil {
		return fmt.Errorf("加载词典失败: %w", err)
	}
	if err := lexicon.Validate(); err != nil {
		return fmt.Errorf("词典无效: %w", err)
	}

	headerManager, err := driver.NewHeaderManager(appConfig.Browser.Headers, headers, appConfig.Browser.Headless)
	if err != nil {
		return fmt.Errorf("创建请求头管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("请求头配置无效: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("词典: %d 个关注文本, %d 个已关注文本, %d 个确认文本",
		len(lexicon.Follow), len(lexicon.Following), len(lexicon.Confirm))
	utils.Infof("当前有效的请求头 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&headless, "headless", false, "无头浏览器模式")
	cmd.Flags().StringVar(&controlURL, "control-url", "", "连接已运行浏览器的调试地址 (ws://...)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "关闭进度条,日志输出到控制台")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "不启动本地控制服务")
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "运行模式 (bulk_visible|list_driven)")
	runCmd.Flags().StringVarP(&runAction, "action", "a", "", "操作类型 (follow|unfollow)")
	runCmd.Flags().IntVarP(&targetCount, "count", "n", 0, "目标数量 (1-10000)")
	runCmd.Flags().DurationVar(&delayMin, "delay-min", 0, "操作最小间隔 (如 20s)")
	runCmd.Flags().DurationVar(&delayMax, "delay-max", 0, "操作最大间隔 (如 40s)")
	runCmd.Flags().StringVar(&avatarFilter, "avatar", "", "头像过滤 (all|with_avatar|without_avatar)")
	runCmd.Flags().StringVar(&nameFilter, "name", "", "名称过滤 (all|with_name|without_name)")
	runCmd.Flags().StringVar(&nameLanguage, "lang", "", "名称语言 (all|cyrillic|arabic|latin|mixed|other)")
	runCmd.Flags().StringVar(&onlineFilter, "online", "", "在线状态过滤 (all|online|offline)")
	runCmd.Flags().StringVar(&whitelist, "whitelist", "", "白名单关键字,用 , ; | 分隔")
	runCmd.Flags().StringVar(&blacklist, "blacklist", "", "黑名单关键字,用 , ; | 分隔")
	runCmd.Flags().StringSliceVarP(&targets, "target", "t", []string{}, "目标账号,可多次指定 (list_driven)")
	runCmd.Flags().StringVarP(&targetsFile, "targets-file", "f", "", "目标账号文件,每行一个 (list_driven)")
	runCmd.Flags().StringVar(&listingURL, "listing-url", "", "开始前导航到的列表页面 (bulk_visible)")
	addRunFlags(runCmd)
	addRunFlags(resumeCmd)

	rootCmd.AddCommand(runCmd, resumeCmd)
}
