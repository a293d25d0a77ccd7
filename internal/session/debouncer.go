// Package session 负责把抓取客户端的变更通知合并成一次次协调触发。
package session

import (
	"context"
	"time"
)

// Debouncer 在静默窗口内合并变更通知：每次通知都会重置计时器，窗口内没有新通知时才发出一次触发。
type Debouncer struct {
	window time.Duration
	notify chan struct{}
	fire   chan struct{}
}

// NewDebouncer 创建一个静默窗口为 window 的 Debouncer。
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		notify: make(chan struct{}, 1),
		fire:   make(chan struct{}, 1),
	}
}

// Notify 投递一次变更通知，不会阻塞。
func (d *Debouncer) Notify() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// C 返回触发通道。
func (d *Debouncer) C() <-chan struct{} {
	return d.fire
}

// Run 驱动计时器直到 ctx 结束。
func (d *Debouncer) Run(ctx context.Context) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.notify:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(d.window)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			select {
			case d.fire <- struct{}{}:
			default:
			}
		}
	}
}
