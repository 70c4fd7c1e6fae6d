package models

import (
	"fmt"
	"net/http"
	"strings"
)

// CliHeaders 命令行传递的页面请求头列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 缺少冒号分隔符,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 头部名称不能为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// MergeHeaders 按优先级合并头部,后者覆盖前者
func MergeHeaders(layers ...http.Header) http.Header {
	result := make(http.Header)
	for _, layer := range layers {
		for name, values := range layer {
			result[http.CanonicalHeaderKey(name)] = values
		}
	}
	return result
}
