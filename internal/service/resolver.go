package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shorturl-engine/internal/cache"
	"shorturl-engine/internal/model"
	"shorturl-engine/internal/store"
)

// Resolver 重定向路径：缓存 + 存储，解析成功时访问计数加一
type Resolver struct {
	store    store.RecordStore
	cache    cache.Cache
	recorder *AccessRecorder
	logger   *zap.SugaredLogger
}

// NewResolver 创建解析服务，recorder 为 nil 时缓存命中也同步自增
func NewResolver(recordStore store.RecordStore, c cache.Cache, recorder *AccessRecorder, logger *zap.SugaredLogger) *Resolver {
	if c == nil {
		c = cache.Nop{}
	}
	return &Resolver{
		store:    recordStore,
		cache:    c,
		recorder: recorder,
		logger:   logger.Named("resolver"),
	}
}

// Resolve 返回短码对应的目标地址
//
// 未命中时一次 IncrementAccess 同时完成计数和读取，再用事先取得的令牌回填缓存。
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	const op = "service.Resolver.Resolve"

	url, ok, err := r.cache.Get(ctx, code)
	if err != nil {
		r.logger.Warnf("读取缓存失败，回退到存储: %s: %v", code, err)
	} else if ok {
		return r.resolveHit(ctx, code, url)
	}

	gen, genErr := r.cache.Generation(ctx, code)
	rec, err := r.store.IncrementAccess(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if genErr != nil {
		r.logger.Warnf("获取缓存令牌失败，跳过回填: %s: %v", code, genErr)
	} else if err := r.cache.Fill(ctx, code, rec.OriginalURL, gen); err != nil {
		r.logger.Warnf("回填缓存失败: %s: %v", code, err)
	}
	return rec.OriginalURL, nil
}

func (r *Resolver) resolveHit(ctx context.Context, code, url string) (string, error) {
	const op = "service.Resolver.resolveHit"

	if r.recorder != nil {
		r.recorder.Record(code)
		return url, nil
	}

	rec, err := r.store.IncrementAccess(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.invalidate(ctx, code)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	// 其他实例改过目标，以存储为准
	if rec.OriginalURL != url {
		r.invalidate(ctx, code)
	}
	return rec.OriginalURL, nil
}

func (r *Resolver) invalidate(ctx context.Context, code string) {
	if err := r.cache.Invalidate(ctx, code); err != nil {
		r.logger.Errorf("删除过期缓存失败: %s: %v", code, err)
	}
}
