package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// RefreshFunc 一次画廊刷新
type RefreshFunc func(ctx context.Context) error

// Refresher 在协程池中执行画廊刷新
// 同一时刻最多一个刷新在排队或执行，其余触发直接合并
type Refresher struct {
	pool     *Pool
	refresh  RefreshFunc
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	pending atomic.Bool
	runs    atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewRefresher 创建刷新调度器，interval <= 0 时只响应手动触发
func NewRefresher(pool *Pool, interval, timeout time.Duration, refresh RefreshFunc) *Refresher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		pool:     pool,
		refresh:  refresh,
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Trigger 提交一次刷新，已有刷新未完成时返回 false
func (r *Refresher) Trigger() bool {
	if r.ctx.Err() != nil {
		return false
	}
	if !r.pending.CompareAndSwap(false, true) {
		return false
	}
	ok := r.pool.Submit(func() {
		defer r.pending.Store(false)
		r.run()
	})
	if !ok {
		r.pending.Store(false)
	}
	return ok
}

// Runs 已执行的刷新次数
func (r *Refresher) Runs() uint64 {
	return r.runs.Load()
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.refresh(ctx)
	r.runs.Add(1)
	switch {
	case err == nil:
		log.Printf("[Refresher] Gallery refreshed in %v", time.Since(start).Round(time.Millisecond))
	case errors.Is(err, context.Canceled):
	default:
		log.Printf("[Refresher] Gallery refresh failed: %v", err)
	}
}

// Start 启动定时刷新
func (r *Refresher) Start() {
	r.startOnce.Do(func() {
		if r.interval <= 0 {
			close(r.done)
			return
		}
		go r.loop()
		log.Printf("[Refresher] Refreshing gallery every %v", r.interval)
	})
}

func (r *Refresher) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Trigger()
		case <-r.ctx.Done():
			return
		}
	}
}

// Stop 停止定时刷新并取消正在执行的刷新
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.startOnce.Do(func() { close(r.done) })
		<-r.done
	})
}
