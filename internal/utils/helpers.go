package utils

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
)

// ReadTargetsFromFile 从文件中读取目标账号列表
// 每行一个账号名或主页URL,支持 # 注释,重复账号只保留第一次出现
func ReadTargetsFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开目标文件失败: %w", err)
	}
	defer file.Close()

	targets := make([]string, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		handle, err := models.NormalizeHandle(line)
		if err != nil {
			Warnf("跳过无效目标 (行 %d): %s - %v", lineNum, line, err)
			continue
		}
		if seen[handle] {
			Debugf("跳过重复目标 (行 %d): %s", lineNum, handle)
			continue
		}
		seen[handle] = true
		targets = append(targets, handle)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取目标文件失败: %w", err)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("目标文件中没有有效的账号")
	}

	Infof("从文件加载了 %d 个目标账号", len(targets))
	return targets, nil
}

// NormalizeTargets 规范化命令行传入的目标,保持顺序并去重
func NormalizeTargets(raw []string) ([]string, error) {
	targets := make([]string, 0, len(raw))
	seen := make(map[string]bool)
	for _, r := range raw {
		handle, err := models.NormalizeHandle(r)
		if err != nil {
			return nil, err
		}
		if !seen[handle] {
			seen[handle] = true
			targets = append(targets, handle)
		}
	}
	return targets, nil
}

// RandomDuration 在 [min, max] 内均匀取值
func RandomDuration(rnd *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	var n int64
	if rnd != nil {
		n = rnd.Int63n(span + 1)
	} else {
		n = rand.Int63n(span + 1)
	}
	return min + time.Duration(n)
}
