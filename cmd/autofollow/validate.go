package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
)

// ValidateFlags 验证命令行标志,零值表示未指定 (使用配置文件的值)
func ValidateFlags(
	mode string,
	action string,
	targetCount int,
	delayMin time.Duration,
	delayMax time.Duration,
) error {
	// 验证模式
	if mode != "" {
		validModes := map[string]bool{
			string(models.ModeBulkVisible): true,
			string(models.ModeListDriven):  true,
		}
		if !validModes[mode] {
			return fmt.Errorf("无效的运行模式: %s (有效值: bulk_visible, list_driven)", mode)
		}
	}

	// 验证操作类型
	if action != "" && action != string(models.ActionFollow) && action != string(models.ActionUnfollow) {
		return fmt.Errorf("无效的操作类型: %s (有效值: follow, unfollow)", action)
	}

	// 验证目标数量
	if targetCount < 0 || targetCount > 10000 {
		return fmt.Errorf("目标数量必须在1-10000之间,当前值: %d", targetCount)
	}

	// 验证间隔
	if delayMin < 0 || delayMax < 0 {
		return fmt.Errorf("操作间隔不能为负数")
	}
	if delayMin > 0 && delayMax > 0 && delayMax < delayMin {
		return fmt.Errorf("最大间隔 %s 小于最小间隔 %s", delayMax, delayMin)
	}

	return nil
}

// ValidateExportFormat 验证历史导出格式
func ValidateExportFormat(format string) error {
	switch strings.ToLower(format) {
	case storage.FormatJSON, storage.FormatCSV:
		return nil
	default:
		return fmt.Errorf("不支持的导出格式: %s (有效值: json, csv)", format)
	}
}
