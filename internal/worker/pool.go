// Package worker 固定大小的任务池
package worker

import (
	"context"
	"runtime/debug"
	"sync"

	"dc2kook/internal/logger"
)

// Task 池中执行的任务
type Task struct {
	Ctx  context.Context
	Name string
	Run  func(ctx context.Context)
}

// Pool 工作池：固定 worker 数量，队列有界，队列满时丢弃任务
type Pool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	workers   int

	mu     sync.RWMutex
	closed bool
}

// NewPool 创建并启动工作池
// workers: worker 协程数量
// queueSize: 任务队列大小
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &Pool{
		taskQueue: make(chan Task, queueSize),
		workers:   workers,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger.L().Debugf("Worker %d started", id)

	for task := range p.taskQueue {
		p.run(id, task)
	}

	logger.L().Debugf("Worker %d stopped", id)
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("Worker %d: task %q panic recovered: %v\n%s", id, task.Name, r, debug.Stack())
		}
	}()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	task.Run(ctx)
}

// Submit 提交任务；队列已满或池已关闭时丢弃并返回 false
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		logger.L().Warnf("Worker pool is shut down, task %q dropped", task.Name)
		return false
	}

	select {
	case p.taskQueue <- task:
		return true
	default:
		logger.L().Warnf("Worker pool queue is full, task %q dropped", task.Name)
		return false
	}
}

// Shutdown 停止接收新任务并等待队列中的任务执行完
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	logger.L().Info("Shutting down worker pool...")
	p.wg.Wait()
	logger.L().Info("Worker pool shut down successfully")
}
