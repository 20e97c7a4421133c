// Package store 定义短链接记录的持久化契约及其实现（内存、GORM、Redis）
//
// 所有操作都在单条记录粒度上原子；CreateIfAbsent 和 IncrementAccess
// 必须在存储层一次完成，不允许调用方先查后写。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shorturl-engine/internal/model"
)

// DefaultTimeout 单次存储操作的默认超时
const DefaultTimeout = 3 * time.Second

// RecordStore 短码到记录的持久化映射
type RecordStore interface {
	// CreateIfAbsent 原子地创建记录，短码已被占用时返回 model.ErrConflict
	CreateIfAbsent(ctx context.Context, code, url string) (*model.ShortURL, error)
	// Get 读取记录，不存在返回 model.ErrNotFound
	Get(ctx context.Context, code string) (*model.ShortURL, error)
	// UpdateURL 原子替换目标 URL 并刷新 UpdatedAt
	UpdateURL(ctx context.Context, code, url string) (*model.ShortURL, error)
	// IncrementAccess 原子地把访问计数加一，不刷新 UpdatedAt
	IncrementAccess(ctx context.Context, code string) (*model.ShortURL, error)
	// Delete 删除记录，删除后短码可以被重新分配
	Delete(ctx context.Context, code string) error
	// ListAll 按 ID 升序返回所有记录
	ListAll(ctx context.Context) ([]*model.ShortURL, error)
}

// Option 存储实现的公共配置
type Option func(*options)

type options struct {
	timeout time.Duration
	now     func() time.Time
}

// WithTimeout 设置单次操作超时，非正值表示使用默认值
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// unavailable 把底层故障包装为 ErrStoreUnavailable，领域错误原样透传
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
