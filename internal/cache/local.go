package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultLocalSize = 10000
	DefaultTTL       = time.Hour
)

// Local 进程内 LRU 缓存，条目同时受容量和 TTL 约束
//
// 令牌是全局的失效计数：任意短码失效都会让进行中的回填放弃写入，
// 代价是写多时命中率略降。
type Local struct {
	mu    sync.Mutex
	lru   *expirable.LRU[string, string]
	epoch uint64
}

// NewLocal 创建本地缓存，size 和 ttl 非正时使用默认值
func NewLocal(size int, ttl time.Duration) *Local {
	if size <= 0 {
		size = DefaultLocalSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Local{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (l *Local) Get(_ context.Context, code string) (string, bool, error) {
	url, ok := l.lru.Get(code)
	return url, ok, nil
}

func (l *Local) Generation(context.Context, string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch, nil
}

func (l *Local) Fill(_ context.Context, code, url string, gen uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.epoch {
		return nil
	}
	l.lru.Add(code, url)
	return nil
}

func (l *Local) Invalidate(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	l.lru.Remove(code)
	return nil
}

// Len 当前条目数
func (l *Local) Len() int {
	return l.lru.Len()
}
