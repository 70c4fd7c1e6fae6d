package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/core"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/cobra"
)

var (
	stopReason    string
	exportFormat  string
	exportOutput  string
	controlClient = &http.Client{Timeout: 3 * time.Second}
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查询运行状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := sendCommand(core.Command{Type: core.CmdGetStatus})
		if err == nil && resp.Status != nil {
			printStatus(*resp.Status)
			return nil
		}
		utils.Debugf("控制服务不可达,读取持久化状态: %v", err)

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := core.PersistedStatus(db)
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "停止正在进行的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := sendCommand(core.Command{Type: core.CmdStop, Reason: stopReason})
		if err == nil {
			if !resp.OK {
				return fmt.Errorf("停止失败: %s", resp.Error)
			}
			utils.Info("⏹️ 已发送停止命令")
			if resp.Status != nil {
				printStatus(*resp.Status)
			}
			return nil
		}
		utils.Debugf("控制服务不可达,直接结束持久化的运行: %v", err)

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := core.StopPersisted(db, stopReason)
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "操作历史",
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出操作历史 (json|csv)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateExportFormat(exportFormat); err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("创建导出文件失败: %w", err)
			}
			defer f.Close()
			out = f
		}

		db, err := openStore()
		if err != nil {
			// 运行中存储被占用,改从控制服务导出
			utils.Debugf("存储不可用,尝试控制服务: %v", err)
			return exportFromServer(out)
		}
		defer db.Close()

		history, err := storage.OpenHistory(db)
		if err != nil {
			return err
		}
		n, err := history.Export(out, exportFormat)
		if err != nil {
			return err
		}
		if exportOutput != "" {
			utils.Infof("📄 已导出 %d 条历史到 %s", n, exportOutput)
		}
		return nil
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "管理忽略集合",
}

var ignoreAddCmd = &cobra.Command{
	Use:   "add <账号或主页URL>...",
	Short: "添加账号到忽略集合",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handles, err := utils.NormalizeTargets(args)
		if err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ignore, err := storage.LoadIgnoreSet(db)
		if err != nil {
			return err
		}
		before := ignore.Len()
		if _, err := ignore.Add(handles...); err != nil {
			return err
		}
		utils.Infof("✅ 新增 %d 个忽略账号,共 %d 个", ignore.Len()-before, ignore.Len())
		return nil
	},
}

var ignoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出忽略集合",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ignore, err := storage.LoadIgnoreSet(db)
		if err != nil {
			return err
		}
		for _, h := range ignore.List() {
			fmt.Println(h)
		}
		return nil
	},
}

// controlBaseURL 控制服务地址
func controlBaseURL() string {
	addr := appConfig.Control.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// sendCommand 通过控制服务发送命令
func sendCommand(cmd core.Command) (*core.Response, error) {
	if appConfig.Control.Addr == "" {
		return nil, fmt.Errorf("未配置控制服务地址")
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	resp, err := controlClient.Post(controlBaseURL()+"/command", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out core.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("解析控制服务响应失败: %w", err)
	}
	return &out, nil
}

func exportFromServer(out io.Writer) error {
	resp, err := controlClient.Get(controlBaseURL() + "/history?format=" + exportFormat)
	if err != nil {
		return fmt.Errorf("存储被占用且控制服务不可达: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("控制服务返回 %s", resp.Status)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func printStatus(st models.Status) {
	if st.RunID == "" {
		fmt.Println("没有运行记录")
		return
	}
	state := "已结束"
	if st.IsRunning {
		state = "进行中"
	}
	fmt.Printf("🆔 运行ID: %s (%s)\n", st.RunID, state)
	fmt.Printf("📋 模式: %s  阶段: %s\n", st.Mode, st.Phase)
	fmt.Printf("✅ 已处理: %d/%d\n", st.ProcessedCount, st.TargetCount)
	if st.StopReason != "" {
		fmt.Printf("💬 原因: %s\n", st.StopReason)
	}
}

func init() {
	stopCmd.Flags().StringVar(&stopReason, "reason", "", "停止原因")
	historyExportCmd.Flags().StringVar(&exportFormat, "format", storage.FormatJSON, "导出格式 (json|csv)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "导出文件路径,默认标准输出")

	historyCmd.AddCommand(historyExportCmd)
	ignoreCmd.AddCommand(ignoreAddCmd, ignoreListCmd)
	rootCmd.AddCommand(statusCmd, stopCmd, historyCmd, ignoreCmd)
}
