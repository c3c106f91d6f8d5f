package worker

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool 后台任务协程池，画廊刷新等耗时操作在这里执行
type Pool struct {
	workers int
	queue   chan func()
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Stats 协程池统计
type Stats struct {
	WorkerCount int
	QueueLen    int
	QueueCap    int
	Submitted   uint64
	Executed    uint64
	Failed      uint64
	Dropped     uint64
}

var (
	globalPool *Pool
	globalMu   sync.Mutex
)

// InitGlobalPool 初始化全局协程池，重复调用无效
func InitGlobalPool(workers, queueSize int) *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool == nil {
		globalPool = NewPool(workers, queueSize)
	}
	return globalPool
}

// GetGlobalPool 获取全局协程池，未初始化时返回 nil
func GetGlobalPool() *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalPool
}

// StopGlobalPool 停止全局协程池
func StopGlobalPool() {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool != nil {
		pool.Stop()
	}
}

// NewPool 创建并启动协程池
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Printf("[Worker] Pool started with %d workers", workers)
	return p
}

// Submit 非阻塞提交，队列已满或已停止时返回 false
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		log.Println("[Worker] Queue is full, task dropped")
		return false
	}
}

// Stop 停止接收新任务，等待队列中的任务执行完
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	log.Println("[Worker] Pool stopped")
}

// GetStats 当前统计
func (p *Pool) GetStats() Stats {
	return Stats{
		WorkerCount: p.workers,
		QueueLen:    len(p.queue),
		QueueCap:    cap(p.queue),
		Submitted:   p.submitted.Load(),
		Executed:    p.executed.Load(),
		Failed:      p.failed.Load(),
		Dropped:     p.dropped.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		if task == nil {
			continue
		}
		p.execute(task)
	}
}

// execute 执行任务并捕获 panic
func (p *Pool) execute(task func()) {
	defer func() {
		p.executed.Add(1)
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Printf("[Worker] Panic recovered in task: %v", r)
		}
	}()
	task()
}
