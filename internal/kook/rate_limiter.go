package kook

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kook 在每个响应上返回当前桶的限速状态
const (
	headerRateRemaining = "X-Rate-Limit-Remaining"
	headerRateReset     = "X-Rate-Limit-Reset"
	headerRateBucket    = "X-Rate-Limit-Bucket"
	headerRateGlobal    = "X-Rate-Limit-Global"
)

// 服务端要求的等待时长上限
const maxPause = time.Minute

// RateLimiter 本地令牌桶 + 服务端限速头
//
// 令牌桶控制平均速率；Observe/Pause 在服务端报告桶耗尽或返回 429 时
// 让所有调用方等待到重置时间
type RateLimiter struct {
	tokens   chan struct{}
	stopCh   chan struct{}
	interval time.Duration
	once     sync.Once

	mu         sync.Mutex
	pauseUntil time.Time
	now        func() time.Time
}

// NewRateLimiter 创建速率限制器
// ratePerSecond: 每秒允许的请求数，小于 1 时按 1 处理
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}

	limiter := &RateLimiter{
		tokens:   make(chan struct{}, ratePerSecond),
		stopCh:   make(chan struct{}),
		interval: time.Second / time.Duration(ratePerSecond),
		now:      time.Now,
	}

	for i := 0; i < ratePerSecond; i++ {
		limiter.tokens <- struct{}{}
	}

	go limiter.refill()

	return limiter
}

// Wait 阻塞直到暂停结束并取得令牌，或 ctx 结束
func (r *RateLimiter) Wait(ctx context.Context) error {
	if d := r.pauseRemaining(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.tokens:
		return nil
	}
}

// Pause 在 d 之内不再发出请求；多次调用取较晚的结束时间
func (r *RateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > maxPause {
		d = maxPause
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if until := r.now().Add(d); until.After(r.pauseUntil) {
		r.pauseUntil = until
	}
}

// Observe 读取响应的限速头；剩余次数为 0 时暂停到桶重置，返回暂停时长
func (r *RateLimiter) Observe(h http.Header) time.Duration {
	remaining := strings.TrimSpace(h.Get(headerRateRemaining))
	if remaining == "" {
		return 0
	}
	if n, err := strconv.Atoi(remaining); err != nil || n > 0 {
		return 0
	}

	d, ok := resetAfter(h)
	if !ok {
		return 0
	}
	r.Pause(d)
	return d
}

func (r *RateLimiter) pauseRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseUntil.Sub(r.now())
}

// resetAfter 解析 X-Rate-Limit-Reset（秒，可带小数）
func resetAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get(headerRateReset))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (r *RateLimiter) refill() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Close 停止补充令牌；可重复调用
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.stopCh) })
}
