// Package ratelimit 提供出站 RPC 调用的令牌桶准入控制。
//
// 所有等待者进入同一个 FIFO 队列，由唯一的处理循环按提交顺序放行，
// 与调用方到达时间的抖动无关。
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"multisig-core/pkg/monitor"
)

// Limiter 令牌桶限流器
type Limiter struct {
	rate      float64 // 每秒补充的令牌数
	maxTokens float64
	backoff   time.Duration // 令牌不足时的等待间隔 ceil(1000/rate) ms
	clock     clock.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	queue      []*waiter
	running    bool
}

type waiter struct {
	ready chan struct{}
	// enqueued 用于统计等待耗时
	enqueued time.Time
}

// Option 配置 Limiter
type Option func(*Limiter)

// WithClock 注入时钟 (测试中使用 clock.NewMock())
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New 创建限流器，rate 必须大于 0；桶初始为满
func New(rate, maxTokens float64, opts ...Option) *Limiter {
	if rate <= 0 {
		panic("ratelimit: rate must be positive")
	}
	if maxTokens < 1 {
		maxTokens = 1
	}

	l := &Limiter{
		rate:      rate,
		maxTokens: maxTokens,
		backoff:   time.Duration(math.Ceil(1000/rate)) * time.Millisecond,
		clock:     clock.New(),
		tokens:    maxTokens,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastRefill = l.clock.Now()
	return l
}

// Acquire 阻塞直到拿到一个令牌。
// 限流器本身不会失败；只有调用方的 ctx 被取消时才返回错误，且只撤回该等待者。
func (l *Limiter) Acquire(ctx context.Context) error {
	w := l.enqueue()

	select {
	case <-w.ready:
		monitor.ObserveRateLimitWait(l.clock.Since(w.enqueued))
		return nil
	case <-ctx.Done():
		if l.withdraw(w) {
			return ctx.Err()
		}
		// 已经被放行 (与取消竞争)，令牌已扣除，视为成功
		return nil
	}
}

// Tokens 返回当前令牌数 (先按时间补充)
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Pending 返回排队中的等待者数量
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Limiter) enqueue() *waiter {
	w := &waiter{ready: make(chan struct{}), enqueued: l.clock.Now()}

	l.mu.Lock()
	l.queue = append(l.queue, w)
	start := !l.running
	l.running = true
	l.mu.Unlock()

	// 同一时刻只允许一个处理循环；重复启动是 no-op
	if start {
		go l.process()
	}
	return w
}

// withdraw 从队列中移除尚未放行的等待者，返回是否移除成功
func (l *Limiter) withdraw(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// process 唯一的处理循环: 有令牌就放行队头，否则睡眠 backoff 后重试
func (l *Limiter) process() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}

		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			w := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			close(w.ready)
			continue
		}
		l.mu.Unlock()

		l.clock.Sleep(l.backoff)
	}
}

// refill 按流逝时间连续补充令牌，上限 maxTokens。调用方需持有 mu。
func (l *Limiter) refill() {
	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.maxTokens, l.tokens+elapsed*l.rate)
	l.lastRefill = now
}
