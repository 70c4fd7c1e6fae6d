package driver

import (
	"errors"
	"testing"
)

func TestHeaderManager_Priority(t *testing.T) {
	hm, err := NewHeaderManager(
		map[string]string{"Accept-Language": "en-US", "X-Trace": "config"},
		[]string{"X-Trace: cli"},
		true,
	)
	if err != nil {
		t.Fatalf("NewHeaderManager() error = %v", err)
	}

	headers, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("GetHeaders() error = %v", err)
	}
	if got := headers.Get("X-Trace"); got != "cli" {
		t.Errorf("命令行应覆盖配置文件: got %q", got)
	}
	if got := headers.Get("Accept-Language"); got != "en-US" {
		t.Errorf("Accept-Language = %q", got)
	}
	if got := headers.Get("User-Agent"); got != DefaultUserAgent {
		t.Errorf("无头模式应使用默认User-Agent: got %q", got)
	}
}

func TestHeaderManager_HeadedKeepsBrowserUA(t *testing.T) {
	hm, err := NewHeaderManager(nil, nil, false)
	if err != nil {
		t.Fatalf("NewHeaderManager() error = %v", err)
	}
	headers, _ := hm.GetHeaders()
	if headers.Get("User-Agent") != "" {
		t.Error("有界面模式不应覆盖User-Agent")
	}
}

func TestHeaderManager_RejectsForbidden(t *testing.T) {
	hm, err := NewHeaderManager(map[string]string{"Cookie": "sessionid=1"}, nil, false)
	if err != nil {
		t.Fatalf("NewHeaderManager() error = %v", err)
	}
	if _, err := hm.GetHeaders(); err == nil {
		t.Error("Cookie头应被拒绝")
	}
}

func TestHeaderManager_BadCliHeader(t *testing.T) {
	if _, err := NewHeaderManager(nil, []string{"missing-colon"}, false); err == nil {
		t.Error("格式错误的命令行头部应返回错误")
	}
}

func TestHeaderManager_SafeHeadersRedacted(t *testing.T) {
	hm, _ := NewHeaderManager(map[string]string{"Authorization": "Bearer abcdefghijklmnop"}, nil, false)
	safe := hm.GetSafeHeaders()
	if safe["Authorization"] == "Bearer abcdefghijklmnop" {
		t.Error("敏感头部应被脱敏")
	}
}

func TestPressureLevel(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		available int64
		want      string
	}{
		{100 * mb, PressureEmergency},
		{250 * mb, PressureCritical},
		{400 * mb, PressureWarning},
		{2048 * mb, PressureNormal},
	}
	for _, tt := range tests {
		if got := pressureLevel(tt.available); got != tt.want {
			t.Errorf("pressureLevel(%dMB) = %s, want %s", tt.available/mb, got, tt.want)
		}
	}
}

func TestResourceMonitor_Preflight(t *testing.T) {
	const mb = 1024 * 1024
	rm := NewResourceMonitor(ResourceConfig{SafetyReserveMemory: 100 * mb, CPULoadThreshold: 90})
	rm.cpu = func() (float64, error) { return 99, nil }

	rm.memory = func() (uint64, uint64, error) { return 8192 * mb, 250 * mb, nil }
	if _, err := rm.Preflight(); err == nil {
		t.Error("扣除保留后不足200MB应拒绝启动")
	}

	rm.memory = func() (uint64, uint64, error) { return 8192 * mb, 4096 * mb, nil }
	st, err := rm.Preflight()
	if err != nil {
		t.Fatalf("内存充足时不应拒绝: %v", err)
	}
	if st.Pressure != PressureNormal || st.CPUUsage != 99 {
		t.Errorf("采样结果错误: %+v", st)
	}

	rm.memory = func() (uint64, uint64, error) { return 0, 0, errors.New("unsupported") }
	if _, err := rm.Preflight(); err != nil {
		t.Errorf("内存采样失败时不应拒绝启动: %v", err)
	}
}

func TestControlState_Usable(t *testing.T) {
	if (ControlState{Attached: true, Visible: true}).Usable() {
		t.Error("禁用的控件不可用")
	}
	if !(ControlState{Attached: true, Visible: true, Enabled: true}).Usable() {
		t.Error("可见且启用的控件应可用")
	}
}
