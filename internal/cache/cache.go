// Package cache 提供重定向路径上的读穿透缓存（code -> URL）
//
// 缓存只是加速层，权威数据始终在 RecordStore。更新或删除之后必须 Invalidate，
// 否则会重定向到错误的目标。为避免“未命中回填”与失效并发时写回旧值，
// 回填前先取 Generation，Fill 只在期间没有发生失效时才写入。
package cache

import "context"

// Cache 读穿透缓存
type Cache interface {
	// Get 命中返回 (url, true, nil)
	Get(ctx context.Context, code string) (string, bool, error)
	// Generation 返回回填令牌，必须在读取存储之前获取
	Generation(ctx context.Context, code string) (uint64, error)
	// Fill 仅当令牌仍然有效时写入
	Fill(ctx context.Context, code, url string, gen uint64) error
	// Invalidate 删除条目并使之前发放的令牌失效
	Invalidate(ctx context.Context, code string) error
}

// Nop 不缓存任何内容
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Generation(context.Context, string) (uint64, error) { return 0, nil }
func (Nop) Fill(context.Context, string, string, uint64) error { return nil }
func (Nop) Invalidate(context.Context, string) error { return nil }
