package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout 轮询在超时前未满足条件
var ErrPollTimeout = errors.New("等待条件超时")

// PollUntil 按固定间隔检查条件,直到满足、超时或ctx取消
// cond 返回的错误会立即终止轮询
func PollUntil(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrPollTimeout
		case <-ticker.C:
		}
	}
}

// Sleep 可取消的等待,返回ctx的错误
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
