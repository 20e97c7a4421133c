// Package service 组合短码分配、解析和统计，是 HTTP 层调用的唯一入口
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shorturl-engine/internal/cache"
	"shorturl-engine/internal/model"
	"shorturl-engine/internal/shortcode"
	"shorturl-engine/internal/store"
)

// Service 短链接核心服务
type Service struct {
	store     store.RecordStore
	allocator *shortcode.Allocator
	resolver  *Resolver
	stats     *StatsAggregator
	cache     cache.Cache
	validator URLValidator
	logger    *zap.SugaredLogger
}

// Deps 服务依赖，Cache 和 Recorder 可为空
type Deps struct {
	Store     store.RecordStore
	Allocator *shortcode.Allocator
	Cache     cache.Cache
	Recorder  *AccessRecorder
	Validator URLValidator
	Logger    *zap.SugaredLogger
}

// New 创建服务
func New(d Deps) *Service {
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.Validator == nil {
		d.Validator = NewURLValidator()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     d.Store,
		allocator: d.Allocator,
		resolver:  NewResolver(d.Store, d.Cache, d.Recorder, d.Logger),
		stats:     NewStatsAggregator(d.Store),
		cache:     d.Cache,
		validator: d.Validator,
		logger:    d.Logger.Named("service"),
	}
}

// CreateShortURL 使用默认长度创建短链接
func (s *Service) CreateShortURL(ctx context.Context, url string) (*model.ShortURL, error) {
	return s.CreateShortURLWithLength(ctx, url, 0)
}

// CreateShortURLWithLength 指定短码长度创建短链接，冲突率升高时可调大
func (s *Service) CreateShortURLWithLength(ctx context.Context, url string, length int) (*model.ShortURL, error) {
	const op = "service.Service.CreateShortURL"

	if !s.validator.IsValidURL(url) {
		return nil, fmt.Errorf("%s: 非法 URL: %w", op, model.ErrInvalidInput)
	}
	rec, err := s.allocator.Allocate(ctx, url, length)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debugf("创建短链接: %s -> %s", rec.ShortCode, rec.OriginalURL)
	return rec, nil
}

// GetRecord 读取记录，不计数
func (s *Service) GetRecord(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "service.Service.GetRecord"

	if !shortcode.Valid(code) {
		return nil, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	rec, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// Resolve 返回目标地址并使访问计数加一
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	if !shortcode.Valid(code) {
		return "", fmt.Errorf("service.Service.Resolve: %w", model.ErrNotFound)
	}
	return s.resolver.Resolve(ctx, code)
}

// UpdateRecord 替换目标地址，随后使缓存失效
//
// 缓存删除失败时返回 ErrStoreUnavailable：存储已更新，但重定向可能仍指向旧值，
// 调用方重试即可（更新是幂等的）。
func (s *Service) UpdateRecord(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "service.Service.UpdateRecord"

	// 先确认记录存在，不存在的短码一律 404
	if !shortcode.Valid(code) {
		return nil, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	if _, err := s.store.Get(ctx, code); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.validator.IsValidURL(url) {
		return nil, fmt.Errorf("%s: 非法 URL: %w", op, model.ErrInvalidInput)
	}
	rec, err := s.store.UpdateURL(ctx, code, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		s.logger.Errorf("更新后删除缓存失败: %s: %v", code, err)
		return nil, fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// DeleteRecord 删除记录并使缓存失效，之后短码可以被重新分配
func (s *Service) DeleteRecord(ctx context.Context, code string) error {
	const op = "service.Service.DeleteRecord"

	if !shortcode.Valid(code) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	if err := s.store.Delete(ctx, code); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		s.logger.Errorf("删除后删除缓存失败: %s: %v", code, err)
		return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
	}
	return nil
}

// GetStats 读取记录统计
func (s *Service) GetStats(ctx context.Context, code string) (*model.ShortURL, error) {
	if !shortcode.Valid(code) {
		return nil, fmt.Errorf("service.Service.GetStats: %w", model.ErrNotFound)
	}
	return s.stats.StatsFor(ctx, code)
}

// ListAll 列出所有记录的对外视图
func (s *Service) ListAll(ctx context.Context) ([]model.PublicView, error) {
	return s.stats.ListAll(ctx)
}

// Summary 全局统计
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.stats.Summary(ctx)
}
