package utils

import (
	"net/http"
	"strings"
	"testing"
)

func TestHeaderValidator_ValidateName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "User-Agent", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"合法名称-连字符", "Accept-Language", false},
		{"非法名称-空格", "User Agent", true},
		{"非法名称-下划线", "User_Agent", true},
		{"非法名称-特殊字符", "User@Agent", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_ValidateValue(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerValue string
		expectError bool
	}{
		{"合法值-ASCII", "Mozilla/5.0", false},
		{"合法值-空字符串", "", false},
		{"合法值-长字符串", strings.Repeat(" ", 8000), false},
		{"非法值-超长", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法值-控制字符", "value\x00with\x01null", true},
		{"非法值-非ASCII", "ru-RU,русский", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateValue("X-Test", tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_IsForbidden(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name       string
		headerName string
		expected   bool
	}{
		{"Host-禁止", "Host", true},
		{"host-禁止-不区分大小写", "host", true},
		{"Cookie-禁止", "Cookie", true},
		{"User-Agent-允许", "User-Agent", false},
		{"Accept-Language-允许", "Accept-Language", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := validator.IsForbidden(tt.headerName); result != tt.expected {
				t.Errorf("期望=%v, 实际=%v", tt.expected, result)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	t.Run("验证合法的http.Header", func(t *testing.T) {
		headers := http.Header{
			"User-Agent":      []string{"Mozilla/5.0"},
			"Accept-Language": []string{"en-US,en;q=0.9"},
		}
		if err := validator.Validate(headers); err != nil {
			t.Errorf("期望无错误, 实际错误=%v", err)
		}
	})

	t.Run("验证包含禁止头部的http.Header", func(t *testing.T) {
		headers := http.Header{
			"User-Agent": []string{"Mozilla/5.0"},
			"Cookie":     []string{"sessionid=1"},
		}
		if err := validator.Validate(headers); err == nil {
			t.Error("期望返回错误, 但无错误")
		}
	})
}

func TestHeaderRedactor(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"普通头部不脱敏", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Bearer令牌", "Authorization", "Bearer abcdefghijkl", "Bearer ***"},
		{"长密钥保留首尾", "X-Api-Key", "sk-1234567890abcd", "sk-1***abcd"},
		{"短密钥完全隐藏", "X-Token", "abc", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactor.RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactHeaderValue() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("格式化输出有序", func(t *testing.T) {
		headers := http.Header{"X-B": []string{"2"}, "X-A": []string{"1"}}
		if got := redactor.RedactToString(headers); got != "X-A: 1, X-B: 2" {
			t.Errorf("RedactToString() = %q", got)
		}
	})
}
