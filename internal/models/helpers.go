package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handlePattern 合法账号名
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// NormalizeHandle 将账号名或主页URL统一为账号名
// 支持 "@name", "name", "https://host/name/" 三种写法
func NormalizeHandle(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("账号为空")
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		parsed, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("无效的主页URL: %w", err)
		}
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(segments) == 0 || segments[0] == "" {
			return "", fmt.Errorf("主页URL中没有账号: %s", raw)
		}
		s = segments[0]
	}
	s = strings.TrimPrefix(s, "@")
	s = strings.ToLower(s)
	if !handlePattern.MatchString(s) {
		return "", fmt.Errorf("账号格式无效: %s", raw)
	}
	return s, nil
}

// Duration 支持 "30s" 形式的JSON/YAML时长
type Duration time.Duration

// String 实现Stringer
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON 序列化为字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON 兼容字符串和纳秒整数
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("无效的时长: %w", err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("无效的时长: %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
