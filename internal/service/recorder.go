package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"shorturl-engine/internal/model"
	"shorturl-engine/internal/store"
)

const (
	DefaultRecorderWorkers   = 4
	DefaultRecorderQueueSize = 1024
)

// AccessRecorder 在后台异步执行缓存命中后的访问计数自增
//
// 队列满或已停止时退化为同步执行。存储故障时本次自增只记录错误日志，不重试，
// 因此异步模式下存储不可用期间的计数可能偏少。
// 自增本身仍由存储原子完成，这里不维护任何进程内计数。
type AccessRecorder struct {
	store   store.RecordStore
	queue   chan string
	workers int
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
	pending sync.WaitGroup
}

// NewAccessRecorder 创建异步计数器，参数非正时使用默认值
func NewAccessRecorder(recordStore store.RecordStore, logger *zap.SugaredLogger, workers, queueSize int, timeout time.Duration) *AccessRecorder {
	if workers <= 0 {
		workers = DefaultRecorderWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultRecorderQueueSize
	}
	if timeout <= 0 {
		timeout = store.DefaultTimeout
	}
	return &AccessRecorder{
		store:   recordStore,
		queue:   make(chan string, queueSize),
		workers: workers,
		timeout: timeout,
		logger:  logger.Named("access_recorder"),
	}
}

// Start 启动后台 worker
func (r *AccessRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.logger.Infof("启动访问计数 worker: %d 个, 队列容量 %d", r.workers, cap(r.queue))
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
}

// Stop 停止接收新任务并等待队列排空
func (r *AccessRecorder) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("访问计数 worker 已停止")
}

// Record 提交一次自增
func (r *AccessRecorder) Record(code string) {
	r.mu.RLock()
	if !r.started || r.stopped {
		r.mu.RUnlock()
		r.apply(code)
		return
	}

	r.pending.Add(1)
	select {
	case r.queue <- code:
		r.mu.RUnlock()
	default:
		r.mu.RUnlock()
		r.apply(code)
		r.pending.Done()
	}
}

// Flush 等待已提交的自增全部完成，调用期间不应再有新的 Record
func (r *AccessRecorder) Flush() {
	r.pending.Wait()
}

func (r *AccessRecorder) run() {
	defer r.wg.Done()
	for code := range r.queue {
		r.apply(code)
		r.pending.Done()
	}
}

func (r *AccessRecorder) apply(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.store.IncrementAccess(ctx, code); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.logger.Debugf("短码已被删除，忽略计数: %s", code)
			return
		}
		r.logger.Errorf("访问计数自增失败: %s: %v", code, err)
	}
}
