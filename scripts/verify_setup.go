package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/AutoFollow/internal/config"
	"github.com/RecoveryAshes/AutoFollow/internal/core"
	"github.com/RecoveryAshes/AutoFollow/internal/driver"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  AutoFollow 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	if strings.HasPrefix(goVersion, "go1.2") && goVersion < "go1.24" {
		fmt.Println("⚠️  警告: 建议使用Go 1.24+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 加载配置
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 配置文件无效: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ 配置加载成功")

	// 检查浏览器
	switch {
	case cfg.Browser.ControlURL != "":
		fmt.Printf("✅ 使用已运行的浏览器: %s\n", cfg.Browser.ControlURL)
	case cfg.Browser.Bin != "":
		if _, err := os.Stat(cfg.Browser.Bin); err == nil {
			fmt.Printf("✅ 浏览器: %s\n", cfg.Browser.Bin)
		} else {
			fmt.Printf("❌ 配置的浏览器不存在: %s\n", cfg.Browser.Bin)
			allOK = false
		}
	default:
		if path, found := launcher.LookPath(); found {
			fmt.Printf("✅ 找到本机浏览器: %s\n", path)
		} else {
			fmt.Println("⚠️  未找到本机Chromium/Chrome - 首次运行时将自动下载")
		}
	}

	// 检查词典
	lexicon, err := config.NewLexiconLoader(cfg.Lexicon.File).Load()
	if err != nil {
		fmt.Printf("❌ 词典无效: %v\n", err)
		allOK = false
	} else if err := lexicon.Validate(); err != nil {
		fmt.Printf("❌ 词典无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 词典: %s\n", cfg.Lexicon.File)
	}

	// 检查存储目录可写
	if cfg.Storage.InMemory {
		fmt.Println("⚠️  使用内存存储 - 页面导航后无法恢复跨进程运行")
	} else if err := checkWritable(cfg.Storage.Dir); err != nil {
		fmt.Printf("❌ 存储目录不可写: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 存储目录: %s\n", cfg.Storage.Dir)
	}

	// 检查系统资源
	status, err := driver.NewResourceMonitor(cfg.Resource).Preflight()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 可用内存: %dMB (%s), CPU: %.1f%%\n",
			status.AvailableMemory/(1024*1024), status.Pressure, status.CPUUsage)
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o autofollow ./cmd/autofollow' 构建项目")
		fmt.Println("  2. 运行 './autofollow --validate-config' 检查配置")
		fmt.Println("  3. 运行 './autofollow run --help' 查看运行参数")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkWritable 创建目录并写入探测文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".verify_setup")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
