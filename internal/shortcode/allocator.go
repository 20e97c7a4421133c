package shortcode

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shorturl-engine/internal/model"
	"shorturl-engine/internal/store"
)

// DefaultMaxRetries 分配短码的默认最大尝试次数
const DefaultMaxRetries = 10

// Allocator 负责分配在有效记录中唯一的短码
//
// 候选短码直接交给存储做原子的 CreateIfAbsent，冲突时换一个候选重试，
// 从不先查询再插入。
type Allocator struct {
	source     Source
	store      store.RecordStore
	length     int
	maxRetries int
	reserved   map[string]struct{}
	logger     *zap.SugaredLogger
}

// AllocatorOption 配置 Allocator
type AllocatorOption func(*Allocator)

// WithLength 设置默认短码长度
func WithLength(length int) AllocatorOption {
	return func(a *Allocator) {
		if length > 0 {
			a.length = length
		}
	}
}

// WithMaxRetries 设置最大尝试次数
func WithMaxRetries(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

// WithReserved 排除与路由等保留字冲突的短码
func WithReserved(codes ...string) AllocatorOption {
	return func(a *Allocator) {
		for _, code := range codes {
			a.reserved[code] = struct{}{}
		}
	}
}

// NewAllocator 创建短码分配器
func NewAllocator(source Source, recordStore store.RecordStore, logger *zap.SugaredLogger, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		source:     source,
		store:      recordStore,
		length:     DefaultLength,
		maxRetries: DefaultMaxRetries,
		reserved:   make(map[string]struct{}),
		logger:     logger.Named("shortcode_allocator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Length 返回默认短码长度
func (a *Allocator) Length() int {
	return a.length
}

// Allocate 为 url 分配短码并持久化记录，length 非正时使用默认长度
// 返回时记录已经写入存储，短码即被占用
func (a *Allocator) Allocate(ctx context.Context, url string, length int) (*model.ShortURL, error) {
	const op = "shortcode.Allocator.Allocate"

	if length <= 0 {
		length = a.length
	}
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("%s: 短码长度 %d 超出范围 [%d, %d]: %w",
			op, length, MinLength, MaxLength, model.ErrInvalidInput)
	}

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
		}

		code := a.source.Generate(length)
		if _, ok := a.reserved[code]; ok {
			a.logger.Debugf("短码为保留字，重新生成: %s", code)
			continue
		}
		rec, err := a.store.CreateIfAbsent(ctx, code, url)
		if err == nil {
			if attempt > 1 {
				a.logger.Debugf("第 %d 次尝试分配短码成功: %s", attempt, code)
			}
			return rec, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.logger.Debugf("短码冲突，重新生成: %s (第 %d 次)", code, attempt)
	}

	a.logger.Warnf("已尝试 %d 次生成长度为 %d 的短码，但均存在冲突", a.maxRetries, length)
	return nil, fmt.Errorf("%s: %w", op, model.ErrExhaustedKeyspace)
}
